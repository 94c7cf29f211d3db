package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/logger"
	"github.com/geoproapp/geopro-server/internal/match"
	"github.com/geoproapp/geopro-server/internal/validation"
)

type fakeRetriever struct {
	mu       sync.Mutex
	results  map[string][]domain.Candidate
	failures map[string]error
	calls    int
	block    chan struct{}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, rec domain.SourceRecord, _, _ int) ([]domain.Candidate, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.failures[rec.ID]; err != nil {
		return nil, err
	}
	return f.results[rec.ID], nil
}

type scoreRanker map[string]float64

func (r scoreRanker) Rank(_ domain.SourceRecord, cands []domain.Candidate) []domain.MatchResult {
	out := make([]domain.MatchResult, 0, len(cands))
	for _, c := range cands {
		out = append(out, domain.MatchResult{Candidate: c, Score: r[c.ExternalID]})
	}
	match.SortRanked(out)
	return out
}

func oldMillCafe() domain.SourceRecord {
	return domain.SourceRecord{
		ID:           "rec-mill",
		ListName:     "Coffee",
		DisplayName:  "Old Mill Cafe",
		Coordinates:  domain.Coordinates{Lat: 51.50140, Lon: -0.14190},
		CategoryHint: "cafe",
		Seq:          0,
	}
}

func millCandidate() domain.Candidate {
	return domain.Candidate{
		ExternalID:  "1001",
		Kind:        domain.KindNode,
		Name:        "Old Mill Café",
		Coordinates: domain.Coordinates{Lat: 51.50145, Lon: -0.14180},
		Tags:        map[string]string{"amenity": "cafe", "name": "Old Mill Café"},
	}
}

func realScorer(t *testing.T) *match.Scorer {
	t.Helper()
	table, err := category.Default()
	require.NoError(t, err)
	return match.NewScorer(match.DefaultOptions(), category.NewMapper(table, logger.Discard()))
}

func newPipeline(r Retriever, rk Ranker, opts Options) *Pipeline {
	opts.Logger = logger.Discard()
	if opts.Radius == 0 {
		opts.Radius = 500
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = 10
	}
	return New(r, rk, opts)
}

func TestRun_BestMatchesOldMillCafe(t *testing.T) {
	ctx := context.Background()
	rec := oldMillCafe()
	r := &fakeRetriever{results: map[string][]domain.Candidate{rec.ID: {millCandidate()}}}
	sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})

	require.NoError(t, newPipeline(r, realScorer(t), Options{Workers: 2}).Run(ctx, sess, []domain.SourceRecord{rec}))

	e, err := sess.Entry(rec.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StateResolved, e.State)
	require.True(t, e.Outcome.IsMatched())
	assert.Equal(t, "1001", e.Outcome.Candidate.ExternalID)
	assert.Greater(t, e.Outcome.Score, 0.9)
}

func TestRun_ZeroCandidatesFallsBackWithHintCategory(t *testing.T) {
	ctx := context.Background()
	rec := oldMillCafe()
	r := &fakeRetriever{}
	sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})

	require.NoError(t, newPipeline(r, realScorer(t), Options{}).Run(ctx, sess, []domain.SourceRecord{rec}))

	entries, err := sess.Finalize()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.OutcomeFallback, entries[0].Outcome.Kind)

	table, err := category.Default()
	require.NoError(t, err)
	a := category.NewMapper(table, logger.Discard()).Map(*entries[0].Outcome, entries[0].Record)
	assert.Equal(t, "amenity-cafe", a.CategoryID)
	assert.False(t, a.Miss)
}

func TestRun_ThresholdSuspendsThenReviewerDecides(t *testing.T) {
	tests := []struct {
		name     string
		answer   Answer
		wantKind domain.OutcomeKind
	}{
		{"confirm original", Answer{Decision: domain.ConfirmOriginal()}, domain.OutcomeFallback},
		{"select candidate 0", Answer{Decision: domain.SelectCandidate(0)}, domain.OutcomeMatched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			rec := oldMillCafe()
			cand := millCandidate()
			r := &fakeRetriever{results: map[string][]domain.Candidate{rec.ID: {cand}}}
			sess := decision.NewSession("ses-1", domain.Threshold(0.8), decision.Options{})
			p := newPipeline(r, scoreRanker{"1001": 0.55}, Options{})

			require.NoError(t, p.Run(ctx, sess, []domain.SourceRecord{rec}))
			req, ok := sess.Head()
			require.True(t, ok, "record must be suspended")
			assert.InDelta(t, 0.55, req.Candidates[0].Score, 1e-9)

			_, err := sess.Finalize()
			require.Error(t, err)

			reviewer := ReviewerFunc(func(context.Context, domain.DecisionRequest) (Answer, error) {
				return tt.answer, nil
			})
			require.NoError(t, Review(ctx, sess, reviewer, nil, logger.Discard()))

			entries, err := sess.Finalize()
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, entries[0].Outcome.Kind)
			assert.Equal(t, domain.ResolvedHuman, entries[0].Outcome.By)
		})
	}
}

func TestRun_RejectsMalformedRecords(t *testing.T) {
	ctx := context.Background()
	good := oldMillCafe()
	bad := oldMillCafe()
	bad.ID = "rec-bad"
	bad.Seq = 1
	bad.Coordinates = domain.Coordinates{Lat: math.NaN(), Lon: math.NaN()}

	r := &fakeRetriever{}
	sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})
	p := newPipeline(r, scoreRanker{}, Options{Validator: validation.New()})

	require.NoError(t, p.Run(ctx, sess, []domain.SourceRecord{good, bad}))

	e, err := sess.Entry("rec-bad")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRejected, e.State)
	assert.NotEmpty(t, e.RejectedReason)
	assert.Equal(t, 1, r.calls, "malformed record must not be retrieved")

	entries, err := sess.Finalize()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	pr := p.Progress().Get()
	assert.Equal(t, 2, pr.Processed)
	assert.Equal(t, 1, pr.Rejected)
}

func TestRun_RetrievalFailureDegradesToFallback(t *testing.T) {
	ctx := context.Background()
	rec := oldMillCafe()
	r := &fakeRetriever{failures: map[string]error{rec.ID: errors.New("gateway timeout")}}
	sess := decision.NewSession("ses-1", domain.Threshold(0.8), decision.Options{})
	p := newPipeline(r, scoreRanker{}, Options{})

	require.NoError(t, p.Run(ctx, sess, []domain.SourceRecord{rec}))

	e, err := sess.Entry(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, e.State)
	assert.Equal(t, domain.OutcomeFallback, e.Outcome.Kind)
	assert.Contains(t, e.RetrievalError, "retrieval failed")
	assert.Equal(t, 1, sess.Stats().RetrievalFailures)
	assert.Equal(t, 1, p.Progress().Get().RetrievalFailures)
}

func TestRun_EveryRecordEndsInExactlyOneOutcome(t *testing.T) {
	ctx := context.Background()
	var records []domain.SourceRecord
	results := map[string][]domain.Candidate{}
	for i := range 40 {
		rec := oldMillCafe()
		rec.ID = "rec-" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		rec.Seq = i
		records = append(records, rec)
		if i%3 != 0 {
			results[rec.ID] = []domain.Candidate{millCandidate()}
		}
	}
	r := &fakeRetriever{results: results}
	sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})

	require.NoError(t, newPipeline(r, realScorer(t), Options{Workers: 8}).Run(ctx, sess, records))

	entries, err := sess.Finalize()
	require.NoError(t, err)
	require.Len(t, entries, 40)
	for i, e := range entries {
		assert.Equal(t, i, e.Record.Seq)
		require.NotNil(t, e.Outcome)
		assert.Equal(t, i%3 != 0, e.Outcome.IsMatched(), e.Record.ID)
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() []domain.RecordEntry {
		rec := oldMillCafe()
		other := millCandidate()
		other.ExternalID = "2002"
		other.Name = "Mill Bakery"
		other.Tags = map[string]string{"shop": "bakery"}
		r := &fakeRetriever{results: map[string][]domain.Candidate{rec.ID: {other, millCandidate()}}}
		sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})
		require.NoError(t, newPipeline(r, realScorer(t), Options{}).Run(context.Background(), sess, []domain.SourceRecord{rec}))
		return sess.Entries()
	}
	assert.Equal(t, run(), run())
}

func TestRun_CancellationKeepsResolvedRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := oldMillCafe()
	second := oldMillCafe()
	second.ID = "rec-slow"
	second.Seq = 1

	block := make(chan struct{})
	r := &blockingRetriever{slowID: second.ID, block: block}
	sess := decision.NewSession("ses-1", domain.Best(), decision.Options{})
	p := newPipeline(r, scoreRanker{}, Options{Workers: 1})

	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx, sess, []domain.SourceRecord{first, second}) }()

	require.Eventually(t, func() bool { return r.started.Load() }, time.Second, 5*time.Millisecond)
	cancel()

	err := <-errc
	assert.ErrorIs(t, err, context.Canceled)

	e, err := sess.Entry(first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateResolved, e.State)

	e, err = sess.Entry(second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, e.State)
	assert.Len(t, sess.Resolved(), 1)
}

type blockingRetriever struct {
	slowID  string
	block   chan struct{}
	started atomic.Bool
}

func (b *blockingRetriever) Retrieve(ctx context.Context, rec domain.SourceRecord, _, _ int) ([]domain.Candidate, error) {
	if rec.ID != b.slowID {
		return nil, nil
	}
	b.started.Store(true)
	select {
	case <-b.block:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestResume_ProcessesOnlyPending(t *testing.T) {
	ctx := context.Background()
	rec := oldMillCafe()
	o := domain.Fallback(domain.ResolvedHuman)
	done := domain.RecordEntry{Record: rec, State: domain.StateResolved, Outcome: &o}

	pending := oldMillCafe()
	pending.ID = "rec-2"
	pending.Seq = 1

	sess := decision.Restore("ses-1", domain.Best(), []domain.RecordEntry{
		done,
		{Record: pending, State: domain.StatePending},
	}, nil, decision.Options{})

	r := &fakeRetriever{}
	require.NoError(t, newPipeline(r, scoreRanker{}, Options{}).Resume(ctx, sess))
	assert.Equal(t, 1, r.calls)
	assert.Empty(t, sess.Unresolved())
}

type recordingObserver struct {
	mu      sync.Mutex
	results []string
}

func (o *recordingObserver) ObserveRecord(result string, _ time.Duration, _ bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func TestProcess_ReviewsWhileWorkersRun(t *testing.T) {
	ctx := context.Background()
	var records []domain.SourceRecord
	results := map[string][]domain.Candidate{}
	for i, id := range []string{"rec-1", "rec-2", "rec-3"} {
		rec := oldMillCafe()
		rec.ID = id
		rec.Seq = i
		records = append(records, rec)
		results[id] = []domain.Candidate{millCandidate()}
	}

	obs := &recordingObserver{}
	var seen []string
	reviewer := ReviewerFunc(func(_ context.Context, req domain.DecisionRequest) (Answer, error) {
		seen = append(seen, req.Record.ID)
		return Answer{Decision: domain.SelectCandidate(0)}, nil
	})

	sess := decision.NewSession("ses-1", domain.All(), decision.Options{})
	p := newPipeline(&fakeRetriever{results: results}, scoreRanker{"1001": 0.9}, Options{Workers: 1, Observer: obs})

	require.NoError(t, p.Process(ctx, sess, records, reviewer))
	assert.Equal(t, []string{"rec-1", "rec-2", "rec-3"}, seen)
	assert.Equal(t, []string{"suspended", "suspended", "suspended"}, obs.results)
	assert.Empty(t, sess.Unresolved())
}

func TestReview_InvalidAnswerIsAskedAgain(t *testing.T) {
	ctx := context.Background()
	rec := oldMillCafe()
	sess := decision.NewSession("ses-1", domain.All(), decision.Options{})
	require.NoError(t, sess.Add(ctx, rec))
	_, _, err := sess.Submit(ctx, rec.ID, []domain.MatchResult{{Candidate: millCandidate(), Score: 0.5}}, nil)
	require.NoError(t, err)

	calls := 0
	reviewer := ReviewerFunc(func(context.Context, domain.DecisionRequest) (Answer, error) {
		calls++
		if calls == 1 {
			return Answer{Decision: domain.SelectCandidate(7)}, nil
		}
		return Answer{Decision: domain.ConfirmOriginal()}, nil
	})

	require.NoError(t, Review(ctx, sess, reviewer, nil, nil))
	assert.Equal(t, 2, calls)
	assert.Empty(t, sess.Unresolved())
}

func TestReview_SkipAndStop(t *testing.T) {
	ctx := context.Background()
	sess := decision.NewSession("ses-1", domain.All(), decision.Options{})
	for i, id := range []string{"rec-1", "rec-2"} {
		rec := oldMillCafe()
		rec.ID = id
		rec.Seq = i
		require.NoError(t, sess.Add(ctx, rec))
		_, _, err := sess.Submit(ctx, id, nil, nil)
		require.NoError(t, err)
	}

	var seen []string
	reviewer := ReviewerFunc(func(_ context.Context, req domain.DecisionRequest) (Answer, error) {
		seen = append(seen, req.Record.ID)
		switch len(seen) {
		case 1:
			return Answer{Skip: true}, nil
		case 2:
			return Answer{Decision: domain.ConfirmOriginal()}, nil
		default:
			return Answer{}, ErrStopReview
		}
	})

	require.NoError(t, Review(ctx, sess, reviewer, nil, nil))
	assert.Equal(t, []string{"rec-1", "rec-2", "rec-1"}, seen)
	assert.Equal(t, []string{"rec-1"}, sess.Unresolved())
}

func TestReview_WaitsForProducers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess := decision.NewSession("ses-1", domain.All(), decision.Options{})
	rec := oldMillCafe()
	require.NoError(t, sess.Add(ctx, rec))

	done := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- Review(ctx, sess, ReviewerFunc(func(context.Context, domain.DecisionRequest) (Answer, error) {
			return Answer{Decision: domain.ConfirmOriginal()}, nil
		}), done, nil)
	}()

	_, _, err := sess.Submit(ctx, rec.ID, nil, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(sess.Unresolved()) == 0 }, time.Second, 5*time.Millisecond)

	close(done)
	require.NoError(t, <-errc)
}
