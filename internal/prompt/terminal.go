// Package prompt answers decision requests interactively on a terminal.
package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/pipeline"
)

// Terminal is a pipeline.Reviewer that prints each request and reads the
// answer from a line-oriented input.
//
// Accepted answers: a candidate number, "o" to keep the original place,
// "s" to skip and "q" to stop reviewing.
type Terminal struct {
	in   *bufio.Reader
	out  io.Writer
	once sync.Once
	read chan line
}

type line struct {
	text string
	err  error
}

var _ pipeline.Reviewer = (*Terminal)(nil)

// NewTerminal creates a reviewer reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, read: make(chan line)}
}

// readLine waits for the next input line. The reader goroutine outlives a
// cancelled call and hands its line to the next one.
func (t *Terminal) readLine(ctx context.Context) (string, error) {
	t.once.Do(func() {
		go func() {
			for {
				text, err := t.in.ReadString('\n')
				t.read <- line{text: text, err: err}
				if err != nil {
					close(t.read)
					return
				}
			}
		}()
	})

	select {
	case l, ok := <-t.read:
		if !ok {
			return "", io.EOF
		}
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Review implements pipeline.Reviewer.
func (t *Terminal) Review(ctx context.Context, req domain.DecisionRequest) (pipeline.Answer, error) {
	t.render(req)

	for {
		fmt.Fprintf(t.out, "Choice [1-%d, o, s, q]: ", len(req.Candidates))

		text, err := t.readLine(ctx)
		if err != nil && (err != io.EOF || text == "") {
			if err == io.EOF {
				return pipeline.Answer{}, pipeline.ErrStopReview
			}
			return pipeline.Answer{}, err
		}

		answer, ok, stop := parse(strings.TrimSpace(text), len(req.Candidates))
		if stop {
			return pipeline.Answer{}, pipeline.ErrStopReview
		}
		if ok {
			return answer, nil
		}
		fmt.Fprintln(t.out, "Invalid choice.")
	}
}

func parse(input string, candidates int) (answer pipeline.Answer, ok, stop bool) {
	switch strings.ToLower(input) {
	case "o", "original":
		return pipeline.Answer{Decision: domain.ConfirmOriginal()}, true, false
	case "s", "skip":
		return pipeline.Answer{Skip: true}, true, false
	case "q", "quit":
		return pipeline.Answer{}, false, true
	}

	n, err := strconv.Atoi(input)
	if err != nil || n < 1 || n > candidates {
		return pipeline.Answer{}, false, false
	}
	return pipeline.Answer{Decision: domain.SelectCandidate(n - 1)}, true, false
}

func (t *Terminal) render(req domain.DecisionRequest) {
	rec := req.Record
	fmt.Fprintf(t.out, "\n%s (%d waiting)\n", rec.DisplayName, req.Remaining)
	if rec.Address != "" {
		fmt.Fprintf(t.out, "  %s\n", rec.Address)
	}
	if rec.CategoryHint != "" {
		fmt.Fprintf(t.out, "  category: %s\n", rec.CategoryHint)
	}
	if !math.IsNaN(rec.Coordinates.Lat) {
		fmt.Fprintf(t.out, "  at %.6f, %.6f\n", rec.Coordinates.Lat, rec.Coordinates.Lon)
	}

	if len(req.Candidates) == 0 {
		fmt.Fprintln(t.out, "  no candidates found")
		return
	}
	for i, m := range req.Candidates {
		name := m.Candidate.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(t.out, "  %d. %s [%s] score %.2f, %.0f m\n",
			i+1, name, m.Candidate.Ref(), m.Score, m.Breakdown.DistanceMeters)
	}
}
