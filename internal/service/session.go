package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
	"github.com/geoproapp/geopro-server/internal/export"
	"github.com/geoproapp/geopro-server/internal/id"
	"github.com/geoproapp/geopro-server/internal/metrics"
	"github.com/geoproapp/geopro-server/internal/pipeline"
	"github.com/geoproapp/geopro-server/internal/source"
	"github.com/geoproapp/geopro-server/internal/sse"
	"github.com/geoproapp/geopro-server/internal/store"
)

// SessionDefaults are applied to every session the service creates.
type SessionDefaults struct {
	Policy     domain.Policy
	TopK       int
	Workers    int
	Radius     int
	MaxResults int
}

// SessionService runs matching sessions: it feeds records through the
// pipeline in the background, serves the review queue and exports the
// result. Sessions that are running or under review are kept in memory;
// everything else is read back from the store.
type SessionService struct {
	store      store.Store
	retriever  pipeline.Retriever
	ranker     pipeline.Ranker
	mapper     *category.Mapper
	validator  pipeline.RecordValidator
	sseManager *sse.Manager
	observer   pipeline.Observer
	defaults   SessionDefaults
	logger     *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	active map[string]*activeSession
}

type activeSession struct {
	sess     *decision.Session
	progress *pipeline.ProgressTracker
	cancel   context.CancelFunc
	done     chan struct{}

	settleMu sync.Mutex
	statusMu sync.Mutex

	mu      sync.Mutex
	session domain.Session
}

func (a *activeSession) snapshot() domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *activeSession) pipelineDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// SessionView is a session with its live state.
type SessionView struct {
	Session  domain.Session      `json:"session"`
	Stats    domain.SessionStats `json:"stats"`
	Queued   int                 `json:"queued"`
	Active   bool                `json:"active"`
	Progress *pipeline.Progress  `json:"progress,omitempty"`
}

// CreateSessionRequest starts a session over records.
type CreateSessionRequest struct {
	Name string
	// Policy is parsed with domain.ParsePolicy; empty uses the default.
	Policy  string
	Records []domain.SourceRecord
}

// ExportOptions controls Export.
type ExportOptions struct {
	// Partial exports only the resolved records and leaves the session open.
	Partial  bool
	KeepHTML bool
}

// ExportResult is an assembled document and the category misses found
// while building it.
type ExportResult struct {
	Document *export.Document
	Misses   []category.Miss
	Partial  bool
}

// NewSessionService creates a session service. Call Shutdown to stop
// background pipelines.
func NewSessionService(
	store store.Store,
	retriever pipeline.Retriever,
	ranker pipeline.Ranker,
	mapper *category.Mapper,
	validator pipeline.RecordValidator,
	sseManager *sse.Manager,
	observer pipeline.Observer,
	defaults SessionDefaults,
	logger *slog.Logger,
) *SessionService {
	if defaults.Policy.Kind == "" {
		defaults.Policy = domain.Best()
	}
	if defaults.TopK <= 0 {
		defaults.TopK = decision.DefaultTopK
	}
	ctx, stop := context.WithCancel(context.Background())
	return &SessionService{
		store:      store,
		retriever:  retriever,
		ranker:     ranker,
		mapper:     mapper,
		validator:  validator,
		sseManager: sseManager,
		observer:   observer,
		defaults:   defaults,
		logger:     logger,
		baseCtx:    ctx,
		stop:       stop,
		active:     make(map[string]*activeSession),
	}
}

// Create persists a new session and starts matching its records in the
// background.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*SessionView, error) {
	policy := s.defaults.Policy
	if strings.TrimSpace(req.Policy) != "" {
		p, err := domain.ParsePolicy(req.Policy, s.defaults.Policy.Threshold)
		if err != nil {
			return nil, domainerrors.Validation(err.Error())
		}
		policy = p
	}
	if len(req.Records) == 0 {
		return nil, domainerrors.Validation("session has no records")
	}

	records := make([]domain.SourceRecord, len(req.Records))
	seen := make(map[string]struct{}, len(req.Records))
	for i, rec := range req.Records {
		if rec.ID == "" {
			rid, err := id.Generate(id.PrefixRecord)
			if err != nil {
				return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate record id")
			}
			rec.ID = rid
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, domainerrors.Validationf("duplicate record id %q", rec.ID)
		}
		seen[rec.ID] = struct{}{}
		records[i] = rec
	}

	sid, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate session id")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Saved places"
	}

	now := time.Now().UTC()
	sess := domain.Session{
		ID:        sid,
		Name:      name,
		Policy:    policy,
		Status:    domain.SessionRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return nil, err
	}

	// Records are registered before the pipeline starts so that an early
	// export sees them as pending.
	ds := decision.NewSession(sid, policy, s.sessionOptions(sid))
	if err := ds.Add(ctx, records...); err != nil {
		if delErr := s.store.DeleteSession(context.WithoutCancel(ctx), sid); delErr != nil {
			s.logger.Warn("failed to remove incomplete session", "session_id", sid, "error", delErr)
		}
		return nil, err
	}

	a := s.activate(sess, ds)
	s.logger.Info("session created",
		"session_id", sid,
		"records", len(records),
		"policy", policy.String(),
	)
	s.emitSession(a)
	s.start(a, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Resume(ctx, a.sess)
	})

	return s.view(a), nil
}

// Import reads GeoJSON or record JSON from r and creates a session from it.
func (s *SessionService) Import(ctx context.Context, name, policy string, r io.Reader) (*SessionView, error) {
	records, err := source.Read(r, source.Options{DefaultList: name})
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	return s.Create(ctx, CreateSessionRequest{Name: name, Policy: policy, Records: records})
}

// ResumeAll restores every session that was running or under review when
// the process stopped and resumes its pending records. Returns the number
// of sessions restored.
func (s *SessionService) ResumeAll(ctx context.Context) (int, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, sess := range sessions {
		if !resumable(sess.Status) || s.lookup(sess.ID) != nil {
			continue
		}
		if err := s.resume(ctx, sess); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Resume reactivates a single stored session. Resuming an active session
// is a no-op.
func (s *SessionService) Resume(ctx context.Context, sessionID string) (*SessionView, error) {
	if s.lookup(sessionID) == nil {
		sess, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !resumable(sess.Status) {
			return nil, domainerrors.Conflictf("session %s is %s", sessionID, sess.Status)
		}
		if err := s.resume(ctx, sess); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, sessionID)
}

// Review answers the session's decision requests with reviewer until the
// pipeline has finished and the queue is empty, or the reviewer stops.
func (s *SessionService) Review(ctx context.Context, sessionID string, reviewer pipeline.Reviewer) error {
	a, err := s.require(sessionID)
	if err != nil {
		return err
	}
	err = pipeline.Review(ctx, a.sess, reviewer, a.done, s.logger)
	s.settle(ctx, a)
	return err
}

func (s *SessionService) resume(ctx context.Context, sess *domain.Session) error {
	entries, queue, err := s.store.LoadRecords(ctx, sess.ID)
	if err != nil {
		return err
	}
	restored := decision.Restore(sess.ID, sess.Policy, entries, queue, s.sessionOptions(sess.ID))
	a := s.activate(*sess, restored)
	s.start(a, func(ctx context.Context, p *pipeline.Pipeline) error {
		return p.Resume(ctx, a.sess)
	})

	s.logger.Info("session resumed",
		"session_id", sess.ID,
		"status", sess.Status,
		"queued", restored.QueueLen(),
	)
	return nil
}

func resumable(status domain.SessionStatus) bool {
	switch status {
	case domain.SessionRunning, domain.SessionReviewing, domain.SessionReady:
		return true
	}
	return false
}

// Get returns a session with its statistics.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	if a := s.lookup(sessionID); a != nil {
		return s.view(a), nil
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entries, queue, err := s.store.LoadRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *sess, Stats: domain.Tally(entries), Queued: len(queue)}, nil
}

// List returns all sessions, newest first.
func (s *SessionService) List(ctx context.Context) ([]*domain.Session, error) {
	return s.store.ListSessions(ctx)
}

// Records returns every record entry of a session in source order.
func (s *SessionService) Records(ctx context.Context, sessionID string) ([]domain.RecordEntry, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Entries(), nil
}

// Queue returns the pending decision requests in FIFO order.
func (s *SessionService) Queue(_ context.Context, sessionID string) ([]domain.DecisionRequest, error) {
	a, err := s.require(sessionID)
	if err != nil {
		return nil, err
	}
	return a.sess.Queue(), nil
}

// Head returns the decision request at the front of the queue.
func (s *SessionService) Head(_ context.Context, sessionID string) (domain.DecisionRequest, bool, error) {
	a, err := s.require(sessionID)
	if err != nil {
		return domain.DecisionRequest{}, false, err
	}
	req, ok := a.sess.Head()
	return req, ok, nil
}

// Decide applies a reviewer decision to the record at the head of the queue.
func (s *SessionService) Decide(ctx context.Context, sessionID, recordID string, d domain.Decision) (domain.Outcome, error) {
	a, err := s.require(sessionID)
	if err != nil {
		return domain.Outcome{}, err
	}
	outcome, err := a.sess.Decide(ctx, recordID, d)
	if err != nil {
		return domain.Outcome{}, err
	}
	s.settle(ctx, a)
	return outcome, nil
}

// Skip moves the record at the head of the queue to its tail.
func (s *SessionService) Skip(ctx context.Context, sessionID, recordID string) error {
	a, err := s.require(sessionID)
	if err != nil {
		return err
	}
	return a.sess.Skip(ctx, recordID)
}

// Cancel stops a session's pipeline. Resolved records are kept and can
// still be exported partially.
func (s *SessionService) Cancel(ctx context.Context, sessionID string) error {
	a, err := s.require(sessionID)
	if err != nil {
		return err
	}
	a.cancel()
	<-a.done

	if err := s.setStatus(ctx, a, domain.SessionCancelled); err != nil {
		return err
	}
	s.deactivate(sessionID)
	s.logger.Info("session cancelled", "session_id", sessionID, "resolved", len(a.sess.Resolved()))
	return nil
}

// Export assembles the session's resolved records into a document. A full
// export fails with UNRESOLVED_AT_FINALIZATION while any record is pending
// or awaiting review, and marks the session finalized on success.
func (s *SessionService) Export(ctx context.Context, sessionID string, opts ExportOptions) (*ExportResult, error) {
	var (
		sess *decision.Session
		meta domain.Session
	)
	if a := s.lookup(sessionID); a != nil {
		sess, meta = a.sess, a.snapshot()
	} else {
		stored, err := s.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		restored, err := s.restore(ctx, stored)
		if err != nil {
			return nil, err
		}
		sess, meta = restored, *stored
	}

	var entries []domain.RecordEntry
	if opts.Partial {
		entries = sess.Resolved()
	} else {
		resolved, err := sess.Finalize()
		if err != nil {
			return nil, err
		}
		entries = resolved
	}

	misses := category.NewMissReport()
	records := make([]domain.ExportRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, s.mapper.ExportRecord(e.Record, *e.Outcome, misses))
	}
	doc := export.Assemble(records, export.Options{
		Name:      meta.Name,
		SessionID: sessionID,
		KeepHTML:  opts.KeepHTML,
	})

	snapshot := misses.Snapshot()
	if err := s.store.SaveMisses(ctx, sessionID, snapshot); err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		s.logger.Warn("category mapping misses",
			"session_id", sessionID,
			"distinct", len(snapshot),
			"records", misses.Len(),
		)
	}

	if !opts.Partial && meta.Status != domain.SessionFinalized {
		if a := s.lookup(sessionID); a != nil {
			if err := s.setStatus(ctx, a, domain.SessionFinalized); err != nil {
				return nil, err
			}
			s.deactivate(sessionID)
		} else if err := s.store.UpdateSessionStatus(ctx, sessionID, domain.SessionFinalized); err != nil {
			return nil, err
		}
		s.logger.Info("session finalized", "session_id", sessionID, "placemarks", doc.Len())
	}

	return &ExportResult{Document: doc, Misses: snapshot, Partial: opts.Partial}, nil
}

// Misses returns the category misses recorded by the last export.
func (s *SessionService) Misses(ctx context.Context, sessionID string) ([]category.Miss, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMisses(ctx, sessionID)
}

// Delete stops a session if it is active and removes it with all records.
func (s *SessionService) Delete(ctx context.Context, sessionID string) error {
	if a := s.lookup(sessionID); a != nil {
		a.cancel()
		<-a.done
		s.deactivate(sessionID)
	}
	return s.store.DeleteSession(ctx, sessionID)
}

// ActiveSessions reports the in-memory sessions for the metrics collector.
func (s *SessionService) ActiveSessions() []metrics.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.SessionSnapshot, 0, len(s.active))
	for sid, a := range s.active {
		out = append(out, metrics.SessionSnapshot{
			ID:     sid,
			Stats:  a.sess.Stats(),
			Queued: a.sess.QueueLen(),
		})
	}
	return out
}

// Shutdown stops every background pipeline and waits for them to return.
// Records in flight stay pending and are resumed by ResumeAll.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionService) sessionOptions(sessionID string) decision.Options {
	return decision.Options{
		TopK:  s.defaults.TopK,
		Store: s.store,
		Listener: func(e decision.Event) {
			if s.sseManager != nil {
				s.sseManager.Emit(sse.NewDecisionEvent(e))
			}
		},
		Logger: s.logger.With("session_id", sessionID),
	}
}

func (s *SessionService) activate(meta domain.Session, sess *decision.Session) *activeSession {
	a := &activeSession{
		sess:     sess,
		progress: pipeline.NewProgressTracker(nil),
		cancel:   func() {},
		done:     make(chan struct{}),
		session:  meta,
	}
	s.mu.Lock()
	s.active[meta.ID] = a
	s.mu.Unlock()
	return a
}

func (s *SessionService) deactivate(sessionID string) {
	s.mu.Lock()
	delete(s.active, sessionID)
	s.mu.Unlock()
}

func (s *SessionService) lookup(sessionID string) *activeSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[sessionID]
}

// require returns the active session or explains why it is not active.
func (s *SessionService) require(sessionID string) (*activeSession, error) {
	if a := s.lookup(sessionID); a != nil {
		return a, nil
	}
	sess, err := s.store.GetSession(context.Background(), sessionID)
	if err != nil {
		return nil, err
	}
	return nil, domainerrors.Conflictf("session %s is %s", sessionID, sess.Status)
}

// session returns the active session or a read-only copy restored from
// the store.
func (s *SessionService) session(ctx context.Context, sessionID string) (*decision.Session, error) {
	if a := s.lookup(sessionID); a != nil {
		return a.sess, nil
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.restore(ctx, sess)
}

func (s *SessionService) restore(ctx context.Context, sess *domain.Session) (*decision.Session, error) {
	entries, queue, err := s.store.LoadRecords(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return decision.Restore(sess.ID, sess.Policy, entries, queue, decision.Options{
		TopK:   s.defaults.TopK,
		Store:  decision.MemoryStore{},
		Logger: s.logger,
	}), nil
}

// start runs the pipeline for a session in the background. When it
// completes the session moves to reviewing or ready.
func (s *SessionService) start(a *activeSession, run func(context.Context, *pipeline.Pipeline) error) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	a.cancel = cancel

	p := pipeline.New(s.retriever, s.ranker, pipeline.Options{
		Workers:    s.defaults.Workers,
		Radius:     s.defaults.Radius,
		MaxResults: s.defaults.MaxResults,
		Validator:  s.validator,
		Observer:   s.observer,
		Progress:   a.progress,
		Logger:     s.logger,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		err := run(ctx, p)
		close(a.done)

		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			// The stored status stays running, so Resume picks up the
			// records that are still pending.
			s.logger.Error("session pipeline failed", "session_id", a.sess.ID(), "error", err)
			s.deactivate(a.sess.ID())
			s.emitSession(a)
			return
		}
		s.settle(s.baseCtx, a)
	}()
}

// settle moves a session whose pipeline has finished to reviewing while
// decisions are outstanding and to ready once the queue is empty.
func (s *SessionService) settle(ctx context.Context, a *activeSession) {
	if !a.pipelineDone() {
		return
	}
	a.settleMu.Lock()
	defer a.settleMu.Unlock()

	status := domain.SessionReviewing
	if a.sess.QueueLen() == 0 {
		status = domain.SessionReady
	}
	current := a.snapshot().Status
	if current == status || current.Terminal() {
		return
	}
	if err := s.setStatus(ctx, a, status); err != nil {
		s.logger.Error("failed to update session status", "session_id", a.sess.ID(), "status", status, "error", err)
	}
}

// setStatus persists a status change. Finalized and cancelled sessions
// keep their status.
func (s *SessionService) setStatus(ctx context.Context, a *activeSession, status domain.SessionStatus) error {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()

	if current := a.snapshot().Status; current.Terminal() && current != status {
		return domainerrors.Conflictf("session %s is %s", a.sess.ID(), current)
	}
	if err := s.store.UpdateSessionStatus(ctx, a.sess.ID(), status); err != nil {
		return err
	}
	a.mu.Lock()
	a.session.Status = status
	a.session.UpdatedAt = time.Now().UTC()
	a.mu.Unlock()

	s.emitSession(a)
	return nil
}

func (s *SessionService) emitSession(a *activeSession) {
	if s.sseManager == nil {
		return
	}
	meta := a.snapshot()
	stats := a.sess.Stats()
	s.sseManager.Emit(sse.NewSessionEvent(&meta, &stats))
}

func (s *SessionService) view(a *activeSession) *SessionView {
	progress := a.progress.Get()
	return &SessionView{
		Session:  a.snapshot(),
		Stats:    a.sess.Stats(),
		Queued:   a.sess.QueueLen(),
		Active:   true,
		Progress: &progress,
	}
}
