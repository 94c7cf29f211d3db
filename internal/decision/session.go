package decision

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

// DefaultTopK is the number of candidates presented to a reviewer.
const DefaultTopK = 5

// Options configures a Session.
type Options struct {
	// TopK caps the candidates presented per decision request.
	TopK     int
	Store    Store
	Listener Listener
	Logger   *slog.Logger
}

// Session holds the state of every record of one matching run. Automatic
// resolutions may be submitted concurrently from any goroutine; decision
// requests are served strictly in FIFO order.
type Session struct {
	id     string
	policy domain.Policy
	topK   int
	store  Store
	listen Listener
	logger *slog.Logger

	// opMu serializes transitions so that a persisted change and the
	// in-memory update are never interleaved with another transition.
	opMu    sync.Mutex
	mu      sync.Mutex
	entries map[string]*domain.RecordEntry
	queue   []string
	changed chan struct{}
}

// NewSession creates an empty session.
func NewSession(id string, policy domain.Policy, opts Options) *Session {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Store == nil {
		opts.Store = MemoryStore{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		id:      id,
		policy:  policy,
		topK:    opts.TopK,
		store:   opts.Store,
		listen:  opts.Listener,
		logger:  opts.Logger.With("session_id", id),
		entries: make(map[string]*domain.RecordEntry),
		changed: make(chan struct{}),
	}
}

// Restore rebuilds a session from persisted entries and queue order. Records
// marked scored but missing from the queue are appended to it so that no
// record becomes unreachable.
func Restore(id string, policy domain.Policy, entries []domain.RecordEntry, queue []string, opts Options) *Session {
	s := NewSession(id, policy, opts)
	for i := range entries {
		e := entries[i]
		s.entries[e.Record.ID] = &e
	}

	queued := make(map[string]bool, len(queue))
	for _, recID := range queue {
		if e, ok := s.entries[recID]; ok && e.State == domain.StateScored && !queued[recID] {
			s.queue = append(s.queue, recID)
			queued[recID] = true
		}
	}
	for _, e := range s.sortedLocked() {
		if e.State == domain.StateScored && !queued[e.Record.ID] {
			s.queue = append(s.queue, e.Record.ID)
		}
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Policy returns the session's resolution policy.
func (s *Session) Policy() domain.Policy { return s.policy }

// Add registers records as pending. Re-adding a known record is a no-op.
func (s *Session) Add(ctx context.Context, records ...domain.SourceRecord) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	for _, rec := range records {
		s.mu.Lock()
		_, known := s.entries[rec.ID]
		s.mu.Unlock()
		if known {
			continue
		}

		e := domain.RecordEntry{Record: rec, State: domain.StatePending}
		if err := s.store.Apply(ctx, s.id, Change{Entry: e}); err != nil {
			return err
		}

		s.mu.Lock()
		s.entries[rec.ID] = &e
		s.mu.Unlock()
	}
	return nil
}

// Reject marks a pending record as malformed. Rejected records are never
// exported and do not block finalization.
func (s *Session) Reject(ctx context.Context, recordID, reason string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	e, err := s.entryLocked(recordID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if e.State != domain.StatePending {
		s.mu.Unlock()
		return domainerrors.Conflictf("record %s is %s, only pending records can be rejected", recordID, e.State)
	}
	next := *e
	s.mu.Unlock()

	next.State = domain.StateRejected
	next.RejectedReason = reason
	if err := s.store.Apply(ctx, s.id, Change{Entry: next}); err != nil {
		return err
	}

	s.commit(next, QueueNone)
	s.emit(EventRecordRejected, recordID, nil)
	return nil
}

// Submit moves a pending record to scored with its ranked matches and
// applies the policy. It returns the outcome when resolved automatically,
// or suspend=true when the record was queued for review. retrievalErr is
// recorded for statistics; the record proceeds with the given matches.
func (s *Session) Submit(ctx context.Context, recordID string, ranked []domain.MatchResult, retrievalErr error) (domain.Outcome, bool, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	e, err := s.entryLocked(recordID)
	if err != nil {
		s.mu.Unlock()
		return domain.Outcome{}, false, err
	}
	if e.State != domain.StatePending {
		s.mu.Unlock()
		return domain.Outcome{}, false, domainerrors.Conflictf("record %s is %s, expected pending", recordID, e.State)
	}
	next := *e
	s.mu.Unlock()

	next.State = domain.StateScored
	next.Matches = ranked
	if retrievalErr != nil {
		next.RetrievalError = retrievalErr.Error()
	}

	outcome, suspend := Resolve(ranked, s.policy)
	op := QueuePush
	if !suspend {
		next.State = domain.StateResolved
		next.Outcome = &outcome
		op = QueueNone
	}

	if err := s.store.Apply(ctx, s.id, Change{Entry: next, Queue: op}); err != nil {
		return domain.Outcome{}, false, err
	}
	s.commit(next, op)

	if suspend {
		s.emit(EventRecordSuspended, recordID, nil)
	} else {
		s.emit(EventRecordResolved, recordID, &outcome)
	}
	return outcome, suspend, nil
}

// Head returns the decision request at the front of the queue.
func (s *Session) Head() (domain.DecisionRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.DecisionRequest{}, false
	}
	return s.requestLocked(s.entries[s.queue[0]]), true
}

// Queue returns the decision requests in queue order.
func (s *Session) Queue() []domain.DecisionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DecisionRequest, 0, len(s.queue))
	for i, recID := range s.queue {
		req := s.requestLocked(s.entries[recID])
		req.Remaining = len(s.queue) - i
		out = append(out, req)
	}
	return out
}

func (s *Session) requestLocked(e *domain.RecordEntry) domain.DecisionRequest {
	return domain.DecisionRequest{
		SessionID:  s.id,
		Record:     e.Record,
		Candidates: s.presented(e),
		Remaining:  len(s.queue),
	}
}

func (s *Session) presented(e *domain.RecordEntry) []domain.MatchResult {
	if len(e.Matches) > s.topK {
		return slices.Clone(e.Matches[:s.topK])
	}
	return slices.Clone(e.Matches)
}

// Decide resolves the record at the head of the queue. Anything but a valid
// decision for the head record is rejected with INVALID_DECISION and leaves
// the record scored.
func (s *Session) Decide(ctx context.Context, recordID string, d domain.Decision) (domain.Outcome, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if len(s.queue) == 0 || s.queue[0] != recordID {
		s.mu.Unlock()
		if s.isQueued(recordID) {
			return domain.Outcome{}, domainerrors.InvalidDecisionf("record %s is not at the head of the review queue", recordID)
		}
		return domain.Outcome{}, domainerrors.InvalidDecisionf("record %s is not awaiting a decision", recordID)
	}
	e := s.entries[recordID]
	outcome, ok := Apply(d, s.presented(e))
	if !ok {
		s.mu.Unlock()
		return domain.Outcome{}, domainerrors.InvalidDecisionf("invalid decision %q (candidate %d) for record %s", d.Action, d.CandidateIndex, recordID)
	}
	next := *e
	s.mu.Unlock()

	next.State = domain.StateResolved
	next.Outcome = &outcome
	if err := s.store.Apply(ctx, s.id, Change{Entry: next, Queue: QueueRemove}); err != nil {
		return domain.Outcome{}, err
	}
	s.commit(next, QueueRemove)
	s.emit(EventRecordResolved, recordID, &outcome)
	return outcome, nil
}

// Skip defers a queued record: it stays scored and moves to the tail.
func (s *Session) Skip(ctx context.Context, recordID string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.isQueued(recordID) {
		return domainerrors.InvalidDecisionf("record %s is not awaiting a decision", recordID)
	}

	s.mu.Lock()
	next := *s.entries[recordID]
	s.mu.Unlock()

	if err := s.store.Apply(ctx, s.id, Change{Entry: next, Queue: QueueRequeue}); err != nil {
		return err
	}
	s.commit(next, QueueRequeue)
	s.emit(EventRecordSkipped, recordID, nil)
	return nil
}

func (s *Session) isQueued(recordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.queue, recordID)
}

// commit stores the entry, updates the queue and wakes waiters.
func (s *Session) commit(e domain.RecordEntry, op QueueOp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.Record.ID] = &e
	switch op {
	case QueuePush:
		s.queue = append(s.queue, e.Record.ID)
	case QueueRemove:
		s.queue = slices.DeleteFunc(s.queue, func(id string) bool { return id == e.Record.ID })
	case QueueRequeue:
		s.queue = slices.DeleteFunc(s.queue, func(id string) bool { return id == e.Record.ID })
		s.queue = append(s.queue, e.Record.ID)
	}

	close(s.changed)
	s.changed = make(chan struct{})
}

// Changed returns a channel closed at the next state change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Session) emit(t EventType, recordID string, outcome *domain.Outcome) {
	if s.listen == nil {
		return
	}
	s.listen(Event{
		Type:      t,
		SessionID: s.id,
		RecordID:  recordID,
		Outcome:   outcome,
		Stats:     s.Stats(),
		Queued:    s.QueueLen(),
	})
}

func (s *Session) entryLocked(recordID string) (*domain.RecordEntry, error) {
	e, ok := s.entries[recordID]
	if !ok {
		return nil, domainerrors.NotFoundf("record %s not found in session %s", recordID, s.id)
	}
	return e, nil
}

// Entry returns a copy of one record entry.
func (s *Session) Entry(recordID string) (domain.RecordEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entryLocked(recordID)
	if err != nil {
		return domain.RecordEntry{}, err
	}
	return *e, nil
}

// Entries returns copies of all entries in source order.
func (s *Session) Entries() []domain.RecordEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Session) sortedLocked() []domain.RecordEntry {
	out := make([]domain.RecordEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b domain.RecordEntry) int {
		if c := cmp.Compare(a.Record.Seq, b.Record.Seq); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})
	return out
}

// QueueLen returns the number of records awaiting a decision.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats tallies the current record states.
func (s *Session) Stats() domain.SessionStats {
	return domain.Tally(s.Entries())
}

// Unresolved returns the IDs of records that are neither resolved nor
// rejected, in source order.
func (s *Session) Unresolved() []string {
	var ids []string
	for _, e := range s.Entries() {
		if !e.State.Terminal() {
			ids = append(ids, e.Record.ID)
		}
	}
	return ids
}

// Resolved returns the resolved entries in source order. Used for partial
// exports after cancellation.
func (s *Session) Resolved() []domain.RecordEntry {
	var out []domain.RecordEntry
	for _, e := range s.Entries() {
		if e.State == domain.StateResolved {
			out = append(out, e)
		}
	}
	return out
}

// Finalize returns the resolved entries, or UNRESOLVED_AT_FINALIZATION
// listing every record that is still pending or scored.
func (s *Session) Finalize() ([]domain.RecordEntry, error) {
	if ids := s.Unresolved(); len(ids) > 0 {
		return nil, domainerrors.Unresolved(ids)
	}
	return s.Resolved(), nil
}
