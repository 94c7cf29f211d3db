package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geoproapp/geopro-server/internal/id"
)

const (
	queueSize         = 1000
	clientBufferSize  = 100
	defaultBacklog    = 256
	heartbeatInterval = 30 * time.Second
)

// Client is one connected event stream.
type Client struct {
	ID          string
	ConnectedAt time.Time
	// SessionID limits delivery to one session's events plus global events.
	// Empty receives everything.
	SessionID string
	EventChan chan Event
	Done      chan struct{}
}

func (c *Client) wants(e Event) bool {
	return e.SessionID == "" || c.SessionID == "" || e.SessionID == c.SessionID
}

// Manager fans events out to connected clients. It numbers every event and
// keeps the most recent ones so that a reviewer reconnecting with
// Last-Event-ID receives what it missed.
type Manager struct {
	logger    *slog.Logger
	queue     chan Event
	heartbeat time.Duration

	mu          sync.Mutex
	clients     map[string]*Client
	backlog     []Event
	backlogSize int
	seq         uint64

	closeMu sync.RWMutex
	closed  bool
	running sync.WaitGroup
}

// NewManager creates a manager. Call Start to begin delivery.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:      logger,
		queue:       make(chan Event, queueSize),
		heartbeat:   heartbeatInterval,
		clients:     make(map[string]*Client),
		backlogSize: defaultBacklog,
	}
}

// Start delivers queued events and heartbeats until ctx is cancelled or
// Shutdown drains the queue.
func (m *Manager) Start(ctx context.Context) {
	m.running.Add(1)
	defer m.running.Done()

	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-m.queue:
			if !ok {
				return
			}
			m.publish(e)
		case <-ticker.C:
			m.publish(NewHeartbeatEvent())
		case <-ctx.Done():
			m.dropAll()
			return
		}
	}
}

// Shutdown stops accepting events, delivers what is queued and closes every
// client.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.closeMu.Unlock()

	drained := make(chan struct{})
	go func() {
		m.running.Wait()
		// Start may have returned on ctx before the queue was empty.
		for e := range m.queue {
			m.publish(e)
		}
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		m.logger.Warn("SSE drain timed out, pending events dropped")
	}

	m.dropAll()
	return nil
}

// Emit queues an event. Events emitted after Shutdown, or while the queue
// is full, are dropped.
func (m *Manager) Emit(e Event) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.queue <- e:
	default:
		m.logger.Error("SSE queue full, dropping event", slog.String("event_type", string(e.Type)))
	}
}

// publish numbers e, records it in the backlog and hands it to every
// interested client without blocking.
func (m *Manager) publish(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Type != EventHeartbeat {
		m.seq++
		e.ID = m.seq
		m.backlog = append(m.backlog, e)
		if over := len(m.backlog) - m.backlogSize; over > 0 {
			m.backlog = append(m.backlog[:0], m.backlog[over:]...)
		}
	}

	var sent, slow int
	for _, c := range m.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.EventChan <- e:
			sent++
		default:
			slow++
		}
	}

	if slow > 0 {
		m.logger.Warn("SSE clients too slow, event dropped",
			slog.String("event_type", string(e.Type)),
			slog.Int("clients", slow))
	}
	if e.Type != EventHeartbeat {
		m.logger.Debug("SSE event published",
			slog.Uint64("id", e.ID),
			slog.String("event_type", string(e.Type)),
			slog.Int("sent", sent))
	}
}

// Connect registers a client for sessionID (empty for all sessions) and
// returns the backlog events after lastEventID it should replay first.
// Registration and the backlog snapshot happen atomically, so replayed and
// live events neither overlap nor leave a gap.
func (m *Manager) Connect(sessionID string, lastEventID uint64) (*Client, []Event, error) {
	clientID, err := id.Generate(id.PrefixClient)
	if err != nil {
		return nil, nil, err
	}
	c := &Client{
		ID:          clientID,
		ConnectedAt: time.Now(),
		SessionID:   sessionID,
		EventChan:   make(chan Event, clientBufferSize),
		Done:        make(chan struct{}),
	}

	m.mu.Lock()
	var replay []Event
	if lastEventID > 0 {
		if len(m.backlog) > 0 && m.backlog[0].ID > lastEventID+1 {
			m.logger.Debug("SSE backlog no longer covers last event",
				slog.String("client_id", clientID),
				slog.Uint64("last_event_id", lastEventID))
		}
		for _, e := range m.backlog {
			if e.ID > lastEventID && c.wants(e) {
				replay = append(replay, e)
			}
		}
	}
	m.clients[clientID] = c
	n := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("session_id", sessionID),
		slog.Int("replayed", len(replay)),
		slog.Int("total_clients", n))
	return c, replay, nil
}

// Disconnect removes a client. Unknown IDs are ignored.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	c, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	n := len(m.clients)
	m.mu.Unlock()
	if !ok {
		return
	}

	close(c.Done)
	close(c.EventChan)

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(c.ConnectedAt)),
		slog.Int("total_clients", n))
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// LastEventID returns the ID of the most recently published event.
func (m *Manager) LastEventID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

func (m *Manager) dropAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, c := range clients {
		close(c.Done)
		close(c.EventChan)
	}
}
