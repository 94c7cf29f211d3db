// Package source reads saved places into SourceRecords. Two inputs are
// accepted: a GeoJSON FeatureCollection (as exported by map applications)
// and a JSON array of records in the intermediate format.
package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/id"
)

// Options configures reading.
type Options struct {
	// DefaultList names records without a list property. ReadFile defaults
	// it to the file's base name.
	DefaultList string
}

// ReadFile reads records from path.
func ReadFile(path string, opts Options) ([]domain.SourceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	if opts.DefaultList == "" {
		base := filepath.Base(path)
		opts.DefaultList = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Read(f, opts)
}

// Read decodes records. Individual records are not validated here: a
// feature without usable coordinates gets NaN coordinates and a missing name
// stays empty, so that validation downstream rejects exactly that record.
func Read(r io.Reader, opts Options) ([]domain.SourceRecord, error) {
	if opts.DefaultList == "" {
		opts.DefaultList = "Saved places"
	}

	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	switch first {
	case '[':
		return readRecords(br, opts)
	case '{':
		return readGeoJSON(br, opts)
	default:
		return nil, fmt.Errorf("read source: expected a JSON object or array, got %q", first)
	}
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return b[0], nil
		}
	}
}

func readRecords(r io.Reader, opts Options) ([]domain.SourceRecord, error) {
	var records []domain.SourceRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	for i := range records {
		rec := &records[i]
		rec.Seq = i
		if rec.ID == "" {
			rec.ID = id.MustGenerate(id.PrefixRecord)
		}
		if rec.ListName == "" {
			rec.ListName = opts.DefaultList
		}
		rec.DisplayName = CleanText(rec.DisplayName)
	}
	return records, nil
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id"`
	Geometry   *geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func readGeoJSON(r io.Reader, opts Options) ([]domain.SourceRecord, error) {
	var fc featureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode geojson: expected FeatureCollection, got %q", fc.Type)
	}

	records := make([]domain.SourceRecord, 0, len(fc.Features))
	for i, f := range fc.Features {
		records = append(records, f.record(i, opts))
	}
	return records, nil
}

func (f feature) record(seq int, opts Options) domain.SourceRecord {
	p := properties(f.Properties)

	recID := p.str("id")
	if recID == "" {
		if s, ok := f.ID.(string); ok {
			recID = s
		}
	}
	if recID == "" {
		recID = id.MustGenerate(id.PrefixRecord)
	}

	list := p.str("list", "List", "list_name")
	if list == "" {
		list = opts.DefaultList
	}

	return domain.SourceRecord{
		ID:           recID,
		ListName:     list,
		DisplayName:  CleanText(p.str("name", "Title", "title", "location.name", "location.Business Name")),
		Coordinates:  f.coordinates(),
		Address:      strings.TrimSpace(p.str("address", "Address", "location.address", "location.Address")),
		CategoryHint: strings.TrimSpace(p.str("category", "Category", "location.category", "location.business_category")),
		Notes:        strings.TrimSpace(p.str("description", "Description", "Comment", "comment", "note")),
		Seq:          seq,
	}
}

var missing = domain.Coordinates{Lat: math.NaN(), Lon: math.NaN()}

// coordinates returns the Point position. Takeout writes [0, 0] for places
// it has no position for, which is treated as missing.
func (f feature) coordinates() domain.Coordinates {
	if f.Geometry == nil || f.Geometry.Type != "Point" {
		return missing
	}
	var pos []float64
	if err := json.Unmarshal(f.Geometry.Coordinates, &pos); err != nil || len(pos) < 2 {
		return missing
	}
	if pos[0] == 0 && pos[1] == 0 {
		return missing
	}
	return domain.Coordinates{Lat: pos[1], Lon: pos[0]}
}

type properties map[string]any

// str returns the first non-empty string among keys. A dotted key reads a
// nested object.
func (p properties) str(keys ...string) string {
	for _, k := range keys {
		var v any = map[string]any(p)
		for part := range strings.SplitSeq(k, ".") {
			m, ok := v.(map[string]any)
			if !ok {
				v = nil
				break
			}
			v = m[part]
		}
		switch s := v.(type) {
		case string:
			if strings.TrimSpace(s) != "" {
				return s
			}
		case json.Number, float64:
			return fmt.Sprint(s)
		}
	}
	return ""
}
