package category

import (
	"cmp"
	"slices"
	"sync"
)

// MissKind says which lookup failed.
type MissKind string

// Miss kinds.
const (
	// MissHint: a fallback record's hint resolved to no category.
	MissHint MissKind = "hint"
	// MissTags: a matched candidate's tags matched no rule.
	MissTags MissKind = "tags"
	// MissIcon: a category has no icon entry.
	MissIcon MissKind = "icon"
)

// Miss aggregates unmapped inputs of one kind and key.
type Miss struct {
	Kind      MissKind `json:"kind"`
	Key       string   `json:"key"`
	Count     int      `json:"count"`
	RecordIDs []string `json:"record_ids"`
}

type missKey struct {
	kind MissKind
	key  string
}

// MissReport collects category mapping misses for a session. Safe for
// concurrent use.
type MissReport struct {
	mu     sync.Mutex
	misses map[missKey]*Miss
}

// NewMissReport creates an empty report.
func NewMissReport() *MissReport {
	return &MissReport{misses: make(map[missKey]*Miss)}
}

// Add records one miss.
func (r *MissReport) Add(kind MissKind, key, recordID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := missKey{kind: kind, key: key}
	m, ok := r.misses[k]
	if !ok {
		m = &Miss{Kind: kind, Key: key}
		r.misses[k] = m
	}
	m.Count++
	if recordID != "" && !slices.Contains(m.RecordIDs, recordID) {
		m.RecordIDs = append(m.RecordIDs, recordID)
	}
}

// Len returns the number of distinct misses.
func (r *MissReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.misses)
}

// Snapshot returns the misses ordered by count, then kind and key.
func (r *MissReport) Snapshot() []Miss {
	r.mu.Lock()
	out := make([]Miss, 0, len(r.misses))
	for _, m := range r.misses {
		cp := *m
		cp.RecordIDs = slices.Clone(m.RecordIDs)
		out = append(out, cp)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Miss) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}
