// Package pipeline runs candidate retrieval and scoring for the records of a
// session on a bounded worker pool and drives the human review loop.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

// Retriever fetches candidates near a record. Implemented by the Overpass
// client and the offline index.
type Retriever interface {
	Retrieve(ctx context.Context, rec domain.SourceRecord, radius, maxResults int) ([]domain.Candidate, error)
}

// Ranker scores and orders candidates. Implemented by match.Scorer.
type Ranker interface {
	Rank(rec domain.SourceRecord, cands []domain.Candidate) []domain.MatchResult
}

// RecordValidator rejects malformed records before any retrieval.
type RecordValidator interface {
	ValidateRecord(rec domain.SourceRecord) error
}

// Observer receives per-record measurements.
type Observer interface {
	ObserveRecord(result string, elapsed time.Duration, retrievalFailed bool)
}

type result string

const (
	resultMatched   result = "matched"
	resultFallback  result = "fallback"
	resultSuspended result = "suspended"
	resultRejected  result = "rejected"
)

// Options configures a Pipeline. Every session gets its own value.
type Options struct {
	// Workers bounds concurrent retrievals; defaults to NumCPU.
	Workers int
	// Radius is the retrieval radius in metres.
	Radius int
	// MaxResults caps the candidates retrieved per record.
	MaxResults int
	Validator  RecordValidator
	Observer   Observer
	Progress   *ProgressTracker
	Logger     *slog.Logger
}

// Pipeline turns pending records into scored, resolved or queued records.
type Pipeline struct {
	retriever Retriever
	ranker    Ranker
	opts      Options
	logger    *slog.Logger
}

// New creates a pipeline.
func New(retriever Retriever, ranker Ranker, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Progress == nil {
		opts.Progress = NewProgressTracker(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{retriever: retriever, ranker: ranker, opts: opts, logger: opts.Logger}
}

// Progress returns the pipeline's progress tracker.
func (p *Pipeline) Progress() *ProgressTracker {
	return p.opts.Progress
}

// Run adds records to the session and processes every pending entry.
func (p *Pipeline) Run(ctx context.Context, sess *decision.Session, records []domain.SourceRecord) error {
	if err := sess.Add(ctx, records...); err != nil {
		return err
	}
	return p.Resume(ctx, sess)
}

// Resume processes the session's pending entries. When ctx is cancelled
// in-flight records are abandoned and stay pending; everything already
// resolved stays resolved.
func (p *Pipeline) Resume(ctx context.Context, sess *decision.Session) error {
	var pending []domain.SourceRecord
	for _, e := range sess.Entries() {
		if e.State == domain.StatePending {
			pending = append(pending, e.Record)
		}
	}
	p.opts.Progress.SetTotal(len(pending))

	log := p.logger.With("session_id", sess.ID())
	log.Info("processing records", "pending", len(pending), "workers", p.opts.Workers, "policy", sess.Policy().String())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, rec := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return p.process(gctx, sess, rec)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st := sess.Stats()
	log.Info("records processed",
		"matched", st.Matched,
		"fallback", st.Fallback,
		"queued", sess.QueueLen(),
		"rejected", st.Rejected,
		"retrieval_failures", st.RetrievalFailures,
	)
	return nil
}

func (p *Pipeline) process(ctx context.Context, sess *decision.Session, rec domain.SourceRecord) error {
	started := time.Now()
	log := p.logger.With("session_id", sess.ID(), "record_id", rec.ID)

	if p.opts.Validator != nil {
		if err := p.opts.Validator.ValidateRecord(rec); err != nil {
			log.Warn("rejecting malformed record", "error", err)
			if err := sess.Reject(ctx, rec.ID, err.Error()); err != nil {
				return err
			}
			p.finish(rec.ID, resultRejected, started, false)
			return nil
		}
	}

	cands, err := p.retriever.Retrieve(ctx, rec, p.opts.Radius, p.opts.MaxResults)
	var retrievalErr error
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retrievalErr = domainerrors.RetrievalFailure(err, rec.ID)
		log.Warn("candidate retrieval failed, continuing without candidates", "error", err)
		cands = nil
	}

	ranked := p.ranker.Rank(rec, cands)

	outcome, suspend, err := sess.Submit(ctx, rec.ID, ranked, retrievalErr)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.Error("failed to record result", "error", err)
		return err
	}

	r := resultFallback
	switch {
	case suspend:
		r = resultSuspended
		log.Debug("record queued for review", "candidates", len(ranked))
	case outcome.IsMatched():
		r = resultMatched
		log.Debug("record matched", "candidate", outcome.Candidate.Ref(), "score", outcome.Score)
	default:
		log.Debug("record kept as original", "candidates", len(ranked))
	}
	p.finish(rec.ID, r, started, retrievalErr != nil)
	return nil
}

func (p *Pipeline) finish(recordID string, r result, started time.Time, retrievalFailed bool) {
	p.opts.Progress.record(recordID, r, retrievalFailed)
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveRecord(string(r), time.Since(started), retrievalFailed)
	}
}
