package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

// ErrStopReview is returned by a Reviewer to end the review loop early.
// Records still queued remain scored and can be reviewed later.
var ErrStopReview = errors.New("review stopped")

// Answer is a reviewer's reply to a decision request.
type Answer struct {
	Decision domain.Decision
	// Skip defers the record to the end of the queue.
	Skip bool
}

// Reviewer answers decision requests, one at a time.
type Reviewer interface {
	Review(ctx context.Context, req domain.DecisionRequest) (Answer, error)
}

// ReviewerFunc adapts a function to the Reviewer interface.
type ReviewerFunc func(ctx context.Context, req domain.DecisionRequest) (Answer, error)

// Review implements Reviewer.
func (f ReviewerFunc) Review(ctx context.Context, req domain.DecisionRequest) (Answer, error) {
	return f(ctx, req)
}

// Review serves the session's decision queue to reviewer in FIFO order
// until the queue is empty and producersDone is closed. A nil producersDone
// means no more records will be queued. Invalid answers are logged and the
// same request is presented again.
func Review(ctx context.Context, sess *decision.Session, reviewer Reviewer, producersDone <-chan struct{}, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("session_id", sess.ID())

	if producersDone == nil {
		closed := make(chan struct{})
		close(closed)
		producersDone = closed
	}

	for {
		changed := sess.Changed()
		req, ok := sess.Head()
		if !ok {
			select {
			case <-producersDone:
				if sess.QueueLen() == 0 {
					return nil
				}
				continue
			case <-changed:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		answer, err := reviewer.Review(ctx, req)
		if errors.Is(err, ErrStopReview) {
			log.Info("review stopped", "remaining", sess.QueueLen())
			return nil
		}
		if err != nil {
			return err
		}

		if answer.Skip {
			if err := sess.Skip(ctx, req.Record.ID); err != nil {
				return err
			}
			continue
		}

		outcome, err := sess.Decide(ctx, req.Record.ID, answer.Decision)
		var de *domainerrors.Error
		if errors.As(err, &de) && de.Code == domainerrors.CodeInvalidDecision {
			log.Warn("invalid decision", "record_id", req.Record.ID, "error", err)
			continue
		}
		if err != nil {
			return err
		}
		log.Debug("record decided", "record_id", req.Record.ID, "outcome", outcome.Kind)
	}
}

// Process runs the workers and the review loop together: automatic
// resolutions continue while the reviewer works through the queue.
func (p *Pipeline) Process(ctx context.Context, sess *decision.Session, records []domain.SourceRecord, reviewer Reviewer) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return p.Run(gctx, sess, records)
	})
	g.Go(func() error {
		return Review(gctx, sess, reviewer, done, p.logger)
	})
	return g.Wait()
}
