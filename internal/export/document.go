// Package export assembles resolved records into a KML document, one folder
// per source list, and reads such documents back.
package export

import (
	"cmp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/geoproapp/geopro-server/internal/domain"
)

// Document is an export grouped into folders.
type Document struct {
	ID      string
	Name    string
	Folders []Folder
}

// Folder holds the placemarks of one source list in source order.
type Folder struct {
	Name       string
	Placemarks []Placemark
}

// Placemark is one exported place.
type Placemark struct {
	RecordID    string
	Name        string
	Description string
	Coordinates domain.Coordinates
	CategoryID  string
	IconID      string
	SourceID    string
	Outcome     domain.OutcomeKind
	Score       float64
	Address     string
}

// Options configures Assemble.
type Options struct {
	Name      string
	SessionID string
	// KeepHTML skips the HTML to Markdown conversion of notes.
	KeepHTML bool
}

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://geopro.app/export"))

// DocumentID derives a stable document ID from a session ID.
func DocumentID(sessionID string) string {
	return uuid.NewSHA1(documentNamespace, []byte(sessionID)).String()
}

// Assemble groups records by list. Lists appear in the order of their first
// record and records keep source order, so equal input always yields an
// identical document.
func Assemble(records []domain.ExportRecord, opts Options) *Document {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.ExportRecord) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return strings.Compare(a.RecordID, b.RecordID)
	})

	doc := &Document{Name: opts.Name}
	if opts.SessionID != "" {
		doc.ID = DocumentID(opts.SessionID)
	}

	index := make(map[string]int)
	for _, rec := range sorted {
		i, ok := index[rec.ListName]
		if !ok {
			i = len(doc.Folders)
			index[rec.ListName] = i
			doc.Folders = append(doc.Folders, Folder{Name: rec.ListName})
		}

		notes := rec.Notes
		if !opts.KeepHTML {
			notes = notesToMarkdown(notes)
		}

		doc.Folders[i].Placemarks = append(doc.Folders[i].Placemarks, Placemark{
			RecordID:    rec.RecordID,
			Name:        rec.DisplayName,
			Description: notes,
			Coordinates: rec.Coordinates,
			CategoryID:  rec.CategoryID,
			IconID:      rec.IconID,
			SourceID:    rec.Source,
			Outcome:     rec.Outcome,
			Score:       rec.Score,
			Address:     rec.Address,
		})
	}
	return doc
}

// Len returns the number of placemarks.
func (d *Document) Len() int {
	n := 0
	for _, f := range d.Folders {
		n += len(f.Placemarks)
	}
	return n
}
