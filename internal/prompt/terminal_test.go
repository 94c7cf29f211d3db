package prompt

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/pipeline"
)

func request() domain.DecisionRequest {
	return domain.DecisionRequest{
		SessionID: "ses-1",
		Record: domain.SourceRecord{
			ID:           "rec-1",
			DisplayName:  "Old Mill Cafe",
			Address:      "1 Mill Lane",
			CategoryHint: "Cafe",
			Coordinates:  domain.Coordinates{Lat: 51.5, Lon: -0.14},
		},
		Candidates: []domain.MatchResult{
			{Candidate: domain.Candidate{ExternalID: "1", Kind: domain.KindNode, Name: "Old Mill Café"}, Score: 0.62},
			{Candidate: domain.Candidate{ExternalID: "2", Kind: domain.KindWay}, Score: 0.4},
		},
		Remaining: 3,
	}
}

func TestTerminal_Review(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  pipeline.Answer
	}{
		{"select first", "1\n", pipeline.Answer{Decision: domain.SelectCandidate(0)}},
		{"select second", " 2 \n", pipeline.Answer{Decision: domain.SelectCandidate(1)}},
		{"original", "o\n", pipeline.Answer{Decision: domain.ConfirmOriginal()}},
		{"skip", "skip\n", pipeline.Answer{Skip: true}},
		{"retries invalid input", "9\nfoo\n2\n", pipeline.Answer{Decision: domain.SelectCandidate(1)}},
		{"last line without newline", "1", pipeline.Answer{Decision: domain.SelectCandidate(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			term := NewTerminal(strings.NewReader(tt.input), &out)

			got, err := term.Review(context.Background(), request())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminal_Stop(t *testing.T) {
	for _, input := range []string{"q\n", ""} {
		term := NewTerminal(strings.NewReader(input), &bytes.Buffer{})
		_, err := term.Review(context.Background(), request())
		assert.ErrorIs(t, err, pipeline.ErrStopReview)
	}
}

func TestTerminal_Render(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("o\n"), &out)
	_, err := term.Review(context.Background(), request())
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Old Mill Cafe (3 waiting)")
	assert.Contains(t, text, "1 Mill Lane")
	assert.Contains(t, text, "1. Old Mill Café [node/1] score 0.62")
	assert.Contains(t, text, "2. (unnamed) [way/2]")
	assert.Contains(t, text, "Choice [1-2, o, s, q]: ")
}

func TestTerminal_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	term := NewTerminal(r, &bytes.Buffer{})
	_, err := term.Review(ctx, request())
	assert.ErrorIs(t, err, context.Canceled)
}
