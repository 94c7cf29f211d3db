package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/geoproapp/geopro-server/internal/domain"
)

var (
	recordsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "session", "records"),
		"Records of an active session by state.",
		[]string{"session", "state"},
		nil,
	)
	queueDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "session", "review_queue_length"),
		"Records of an active session waiting for a decision.",
		[]string{"session"},
		nil,
	)
)

// SessionSnapshot is the state of one active session at scrape time.
type SessionSnapshot struct {
	ID     string
	Stats  domain.SessionStats
	Queued int
}

// SessionSource lists the active sessions.
type SessionSource interface {
	ActiveSessions() []SessionSnapshot
}

// SessionCollector reads session state from its source on each scrape.
type SessionCollector struct {
	source SessionSource
}

// NewSessionCollector creates a collector over source.
func NewSessionCollector(source SessionSource) *SessionCollector {
	return &SessionCollector{source: source}
}

// Describe sends the metric descriptors to the channel.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- recordsDesc
	ch <- queueDesc
}

// Collect emits one gauge per session and state.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.source.ActiveSessions() {
		states := map[string]int{
			"pending":  s.Stats.Pending,
			"scored":   s.Stats.Scored,
			"matched":  s.Stats.Matched,
			"fallback": s.Stats.Fallback,
			"rejected": s.Stats.Rejected,
		}
		for state, n := range states {
			ch <- prometheus.MustNewConstMetric(recordsDesc, prometheus.GaugeValue, float64(n), s.ID, state)
		}
		ch <- prometheus.MustNewConstMetric(queueDesc, prometheus.GaugeValue, float64(s.Queued), s.ID)
	}
}

// RegisterSessions registers a SessionCollector for source.
func (m *Metrics) RegisterSessions(source SessionSource) error {
	return m.registry.Register(NewSessionCollector(source))
}
