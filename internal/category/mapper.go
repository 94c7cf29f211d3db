package category

import (
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// Generic category assigned when nothing matches.
const (
	UnspecifiedCategory = "unspecified"
	UnspecifiedIcon     = DefaultIcon
)

// Assignment is the category and icon chosen for one resolved record.
type Assignment struct {
	CategoryID string   `json:"category_id"`
	IconID     string   `json:"icon_id"`
	Miss       bool     `json:"miss"`
	MissKind   MissKind `json:"miss_kind,omitempty"`
	MissKey    string   `json:"miss_key,omitempty"`
	Version    string   `json:"version"`
}

// Mapper assigns categories using the current table. The table can be
// swapped while the mapper is in use.
type Mapper struct {
	table  atomic.Pointer[Table]
	onSwap atomic.Pointer[func(*Table)]
	logger *slog.Logger
}

// NewMapper creates a mapper over t.
func NewMapper(t *Table, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{logger: logger}
	m.table.Store(t)
	return m
}

// Table returns the table currently in use.
func (m *Mapper) Table() *Table {
	return m.table.Load()
}

// Swap replaces the table.
func (m *Mapper) Swap(t *Table) {
	old := m.table.Swap(t)
	m.logger.Info("category table replaced",
		"old_version", old.Version(),
		"new_version", t.Version(),
		"rules", t.RuleCount(),
	)
	if fn := m.onSwap.Load(); fn != nil {
		(*fn)(t)
	}
}

// SetOnSwap registers a callback invoked after every Swap.
func (m *Mapper) SetOnSwap(fn func(*Table)) {
	m.onSwap.Store(&fn)
}

// Compatibility delegates to the current table.
func (m *Mapper) Compatibility(hint string, tags map[string]string) (float64, bool) {
	return m.Table().Compatibility(hint, tags)
}

// Map assigns a category to a resolved record. Matched records are classified
// by the candidate's tags and fall through to the hint when the tags are
// unmapped. An empty hint on a fallback record yields the generic category
// without a miss.
func (m *Mapper) Map(outcome domain.Outcome, rec domain.SourceRecord) Assignment {
	t := m.Table()
	a := Assignment{Version: t.Version()}

	if outcome.IsMatched() {
		if cls, ok := t.Classify(outcome.Candidate.Tags); ok {
			return a.with(cls)
		}
		a.MissKind, a.MissKey = MissTags, describeTags(outcome.Candidate.Tags)
	}

	if strings.TrimSpace(rec.CategoryHint) != "" {
		if cls, ok := t.Classify(t.HintTags(rec.CategoryHint)); ok {
			return a.with(cls)
		}
		if a.MissKind == "" {
			a.MissKind, a.MissKey = MissHint, NormalizeHint(rec.CategoryHint)
		}
	}

	a.CategoryID = UnspecifiedCategory
	a.IconID = UnspecifiedIcon
	a.Miss = a.MissKind != ""
	return a
}

func (a Assignment) with(cls Classification) Assignment {
	a.CategoryID = cls.CategoryID
	a.IconID = cls.IconID
	a.MissKind, a.MissKey = "", ""
	if !cls.IconFound {
		a.Miss = true
		a.MissKind, a.MissKey = MissIcon, cls.CategoryID
	}
	return a
}

// ExportRecord builds the export record for a resolved record and reports
// any miss to misses, which may be nil.
func (m *Mapper) ExportRecord(rec domain.SourceRecord, outcome domain.Outcome, misses *MissReport) domain.ExportRecord {
	a := m.Map(outcome, rec)
	if a.Miss {
		if misses != nil {
			misses.Add(a.MissKind, a.MissKey, rec.ID)
		}
		m.logger.Debug("category mapping miss",
			"record_id", rec.ID,
			"kind", a.MissKind,
			"key", a.MissKey,
		)
	}

	out := domain.ExportRecord{
		RecordID:    rec.ID,
		ListName:    rec.ListName,
		DisplayName: outcome.Name(rec),
		Coordinates: outcome.Position(rec),
		CategoryID:  a.CategoryID,
		IconID:      a.IconID,
		Notes:       rec.Notes,
		Address:     rec.Address,
		Outcome:     outcome.Kind,
		Score:       outcome.Score,
		Seq:         rec.Seq,
	}
	if outcome.IsMatched() {
		out.Source = outcome.Candidate.Ref()
	}
	return out
}

func describeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "(no tags)"
	}
	pairs := make([]string, 0, len(tags))
	for k, v := range tags {
		if k == "name" || strings.HasPrefix(k, "name:") || strings.HasPrefix(k, "addr:") {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}
