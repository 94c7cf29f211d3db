package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

func ranked(scores ...float64) []domain.MatchResult {
	out := make([]domain.MatchResult, 0, len(scores))
	for i, s := range scores {
		out = append(out, domain.MatchResult{
			Candidate: domain.Candidate{
				ExternalID:  fmt.Sprint(100 + i),
				Kind:        domain.KindNode,
				Name:        fmt.Sprintf("Candidate %d", i),
				Coordinates: domain.Coordinates{Lat: 51.5, Lon: -0.1},
				Order:       i,
			},
			Score: s,
		})
	}
	return out
}

func record(id string, seq int) domain.SourceRecord {
	return domain.SourceRecord{
		ID:          id,
		ListName:    "Favourites",
		DisplayName: "Old Mill Cafe",
		Coordinates: domain.Coordinates{Lat: 51.5, Lon: -0.1},
		Seq:         seq,
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		policy      domain.Policy
		matches     []domain.MatchResult
		wantSuspend bool
		wantKind    domain.OutcomeKind
		wantScore   float64
	}{
		{"best picks top", domain.Best(), ranked(0.92, 0.4), false, domain.OutcomeMatched, 0.92},
		{"best without candidates", domain.Best(), nil, false, domain.OutcomeFallback, 0},
		{"threshold met", domain.Threshold(0.8), ranked(0.85), false, domain.OutcomeMatched, 0.85},
		{"threshold met exactly", domain.Threshold(0.8), ranked(0.8), false, domain.OutcomeMatched, 0.8},
		{"threshold missed", domain.Threshold(0.8), ranked(0.55, 0.3), true, "", 0},
		{"threshold without candidates", domain.Threshold(0.8), nil, false, domain.OutcomeFallback, 0},
		{"all always suspends", domain.All(), ranked(0.99), true, "", 0},
		{"all suspends without candidates", domain.All(), nil, true, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, suspend := Resolve(tt.matches, tt.policy)
			assert.Equal(t, tt.wantSuspend, suspend)
			if suspend {
				return
			}
			assert.Equal(t, tt.wantKind, outcome.Kind)
			assert.Equal(t, domain.ResolvedAuto, outcome.By)
			assert.InDelta(t, tt.wantScore, outcome.Score, 1e-9)
		})
	}
}

func TestResolve_BestNeverSuspends(t *testing.T) {
	for n := 0; n <= 4; n++ {
		scores := make([]float64, n)
		for i := range scores {
			scores[i] = 1 - float64(i)*0.2
		}
		_, suspend := Resolve(ranked(scores...), domain.Best())
		assert.False(t, suspend, "n=%d", n)
	}
}

func TestResolve_ThresholdMonotonic(t *testing.T) {
	// Raising the threshold can only turn auto-resolutions into suspensions.
	tops := []float64{0, 0.1, 0.3, 0.5, 0.55, 0.7, 0.79, 0.8, 0.95, 1}
	thresholds := []float64{0, 0.25, 0.5, 0.75, 0.8, 0.9, 1}

	for _, top := range tops {
		suspendedAt := -1.0
		for _, th := range thresholds {
			_, suspend := Resolve(ranked(top), domain.Threshold(th))
			if suspendedAt >= 0 {
				assert.True(t, suspend, "top=%.2f resolved at %.2f after suspending at %.2f", top, th, suspendedAt)
			}
			if suspend && suspendedAt < 0 {
				suspendedAt = th
			}
		}
	}
}

func TestApply(t *testing.T) {
	presented := ranked(0.55, 0.3)

	out, ok := Apply(domain.ConfirmOriginal(), presented)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeFallback, out.Kind)
	assert.Equal(t, domain.ResolvedHuman, out.By)

	out, ok = Apply(domain.SelectCandidate(1), presented)
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeMatched, out.Kind)
	assert.Equal(t, "101", out.Candidate.ExternalID)
	assert.InDelta(t, 0.3, out.Score, 1e-9)

	for _, d := range []domain.Decision{
		domain.SelectCandidate(2),
		domain.SelectCandidate(-1),
		{Action: "reject"},
	} {
		_, ok := Apply(d, presented)
		assert.False(t, ok, "%+v", d)
	}
}

type recordingStore struct {
	mu      sync.Mutex
	changes []Change
	fail    error
}

func (s *recordingStore) Apply(_ context.Context, _ string, c Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.changes = append(s.changes, c)
	return nil
}

func newSession(t *testing.T, policy domain.Policy, store Store, ids ...string) *Session {
	t.Helper()
	s := NewSession("ses-test", policy, Options{Store: store})
	for i, id := range ids {
		require.NoError(t, s.Add(context.Background(), record(id, i)))
	}
	return s
}

func TestSession_ThresholdSuspendAndConfirmOriginal(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.Threshold(0.8), nil, "rec-1")

	_, suspend, err := s.Submit(ctx, "rec-1", ranked(0.55), nil)
	require.NoError(t, err)
	require.True(t, suspend)

	req, ok := s.Head()
	require.True(t, ok)
	assert.Equal(t, "rec-1", req.Record.ID)
	assert.Len(t, req.Candidates, 1)
	assert.Equal(t, 1, req.Remaining)

	_, err = s.Finalize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, &domainerrors.Error{Code: domainerrors.CodeUnresolvedAtFinalization}))

	out, err := s.Decide(ctx, "rec-1", domain.ConfirmOriginal())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFallback, out.Kind)

	entries, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OutcomeFallback, entries[0].Outcome.Kind)
}

func TestSession_ThresholdSuspendAndSelect(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.Threshold(0.8), nil, "rec-1")

	_, suspend, err := s.Submit(ctx, "rec-1", ranked(0.55), nil)
	require.NoError(t, err)
	require.True(t, suspend)

	out, err := s.Decide(ctx, "rec-1", domain.SelectCandidate(0))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeMatched, out.Kind)
	assert.InDelta(t, 0.55, out.Score, 1e-9)
	assert.Equal(t, domain.ResolvedHuman, out.By)
}

func TestSession_AllQueuesEveryRecordInOrder(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.All(), nil, "rec-1", "rec-2", "rec-3")

	for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
		_, suspend, err := s.Submit(ctx, id, ranked(0.99), nil)
		require.NoError(t, err)
		assert.True(t, suspend)
	}
	assert.Equal(t, 3, s.QueueLen())

	queue := s.Queue()
	require.Len(t, queue, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{queue[0].Remaining, queue[1].Remaining, queue[2].Remaining})

	for _, id := range []string{"rec-1", "rec-2", "rec-3"} {
		req, ok := s.Head()
		require.True(t, ok)
		assert.Equal(t, id, req.Record.ID)
		_, err := s.Decide(ctx, id, domain.SelectCandidate(0))
		require.NoError(t, err)
	}

	_, ok := s.Head()
	assert.False(t, ok)
	assert.Empty(t, s.Unresolved())
}

func TestSession_DecideRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.All(), nil, "rec-1", "rec-2")
	for _, id := range []string{"rec-1", "rec-2"} {
		_, _, err := s.Submit(ctx, id, ranked(0.6, 0.4), nil)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		recordID string
		decision domain.Decision
	}{
		{"index out of range", "rec-1", domain.SelectCandidate(2)},
		{"negative index", "rec-1", domain.SelectCandidate(-1)},
		{"unknown action", "rec-1", domain.Decision{Action: "maybe"}},
		{"not the head", "rec-2", domain.ConfirmOriginal()},
		{"unknown record", "rec-9", domain.ConfirmOriginal()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Decide(ctx, tt.recordID, tt.decision)
			require.Error(t, err)
			var de *domainerrors.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, domainerrors.CodeInvalidDecision, de.Code)
		})
	}

	e, err := s.Entry("rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateScored, e.State)
	assert.Equal(t, 2, s.QueueLen())
}

func TestSession_DecideOnlyFromPresentedCandidates(t *testing.T) {
	ctx := context.Background()
	s := NewSession("ses-test", domain.All(), Options{TopK: 2})
	require.NoError(t, s.Add(ctx, record("rec-1", 0)))
	_, _, err := s.Submit(ctx, "rec-1", ranked(0.9, 0.8, 0.7), nil)
	require.NoError(t, err)

	req, ok := s.Head()
	require.True(t, ok)
	assert.Len(t, req.Candidates, 2)

	_, err = s.Decide(ctx, "rec-1", domain.SelectCandidate(2))
	assert.Error(t, err)
}

func TestSession_SkipMovesToTail(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.All(), nil, "rec-1", "rec-2")
	for _, id := range []string{"rec-1", "rec-2"} {
		_, _, err := s.Submit(ctx, id, ranked(0.5), nil)
		require.NoError(t, err)
	}

	require.NoError(t, s.Skip(ctx, "rec-1"))

	req, ok := s.Head()
	require.True(t, ok)
	assert.Equal(t, "rec-2", req.Record.ID)

	e, err := s.Entry("rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateScored, e.State)

	assert.Error(t, s.Skip(ctx, "rec-9"))
}

func TestSession_RejectedRecordsDoNotBlockFinalize(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.Best(), nil, "rec-1", "rec-2")

	require.NoError(t, s.Reject(ctx, "rec-1", "missing coordinates"))
	_, _, err := s.Submit(ctx, "rec-2", nil, nil)
	require.NoError(t, err)

	entries, err := s.Finalize()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rec-2", entries[0].Record.ID)

	st := s.Stats()
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 1, st.Fallback)
}

func TestSession_SubmitRequiresPending(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.Best(), nil, "rec-1")

	_, _, err := s.Submit(ctx, "rec-1", ranked(0.9), nil)
	require.NoError(t, err)

	_, _, err = s.Submit(ctx, "rec-1", ranked(0.9), nil)
	assert.Error(t, err)

	_, _, err = s.Submit(ctx, "rec-404", nil, nil)
	assert.Error(t, err)
}

func TestSession_UnresolvedListsPendingAndScored(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, domain.All(), nil, "rec-1", "rec-2", "rec-3")
	_, _, err := s.Submit(ctx, "rec-2", ranked(0.5), nil)
	require.NoError(t, err)

	_, err = s.Finalize()
	var de *domainerrors.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, map[string]any{"record_ids": []string{"rec-1", "rec-2", "rec-3"}}, de.Details)
}

func TestSession_PersistsChanges(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	s := newSession(t, domain.Threshold(0.8), store, "rec-1")

	_, _, err := s.Submit(ctx, "rec-1", ranked(0.55), errors.New("timeout"))
	require.NoError(t, err)
	require.NoError(t, s.Skip(ctx, "rec-1"))
	_, err = s.Decide(ctx, "rec-1", domain.ConfirmOriginal())
	require.NoError(t, err)

	require.Len(t, store.changes, 4)
	assert.Equal(t, domain.StatePending, store.changes[0].Entry.State)
	assert.Equal(t, QueuePush, store.changes[1].Queue)
	assert.Equal(t, "timeout", store.changes[1].Entry.RetrievalError)
	assert.Equal(t, QueueRequeue, store.changes[2].Queue)
	assert.Equal(t, QueueRemove, store.changes[3].Queue)
	assert.Equal(t, domain.StateResolved, store.changes[3].Entry.State)
}

func TestSession_StoreFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{}
	s := newSession(t, domain.All(), store, "rec-1")
	_, _, err := s.Submit(ctx, "rec-1", ranked(0.5), nil)
	require.NoError(t, err)

	store.fail = errors.New("disk full")
	_, err = s.Decide(ctx, "rec-1", domain.ConfirmOriginal())
	require.Error(t, err)

	e, err := s.Entry("rec-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateScored, e.State)
	assert.Equal(t, 1, s.QueueLen())
}

func TestSession_ListenerAndChanged(t *testing.T) {
	ctx := context.Background()
	var events []Event
	s := NewSession("ses-test", domain.Threshold(0.8), Options{
		Listener: func(e Event) { events = append(events, e) },
	})
	require.NoError(t, s.Add(ctx, record("rec-1", 0), record("rec-2", 1)))

	changed := s.Changed()
	_, _, err := s.Submit(ctx, "rec-1", ranked(0.9), nil)
	require.NoError(t, err)

	select {
	case <-changed:
	default:
		t.Fatal("changed channel not closed")
	}

	_, _, err = s.Submit(ctx, "rec-2", ranked(0.2), nil)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventRecordResolved, events[0].Type)
	assert.Equal(t, EventRecordSuspended, events[1].Type)
	assert.Equal(t, 1, events[1].Queued)
	assert.Equal(t, 1, events[1].Stats.Matched)
}

func TestSession_ConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("rec-%02d", i)
	}
	s := newSession(t, domain.Threshold(0.5), nil, ids...)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score := 0.9
			if i%2 == 0 {
				score = 0.1
			}
			_, _, err := s.Submit(ctx, id, ranked(score), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st := s.Stats()
	assert.Equal(t, 25, st.Matched)
	assert.Equal(t, 25, st.Scored)
	assert.Equal(t, 25, s.QueueLen())
}

func TestRestore(t *testing.T) {
	o := domain.Fallback(domain.ResolvedHuman)
	entries := []domain.RecordEntry{
		{Record: record("rec-1", 0), State: domain.StateResolved, Outcome: &o},
		{Record: record("rec-2", 1), State: domain.StateScored, Matches: ranked(0.4)},
		{Record: record("rec-3", 2), State: domain.StateScored, Matches: ranked(0.3)},
		{Record: record("rec-4", 3), State: domain.StatePending},
	}

	s := Restore("ses-test", domain.All(), entries, []string{"rec-3", "rec-1", "rec-gone"}, Options{})

	queue := s.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, "rec-3", queue[0].Record.ID)
	assert.Equal(t, "rec-2", queue[1].Record.ID)
	assert.Equal(t, []string{"rec-2", "rec-3", "rec-4"}, s.Unresolved())
}
