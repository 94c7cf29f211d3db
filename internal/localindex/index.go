// Package localindex is an offline candidate retriever backed by a bleve
// index built from an Overpass JSON extract.
package localindex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/match"
	"github.com/geoproapp/geopro-server/internal/overpass"
)

// mappingVersion is bumped whenever the mapping changes; a mismatch
// recreates the index on open.
const mappingVersion = "1"

const batchSize = 500

// Index is safe for concurrent use.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the index.
type Options struct {
	Path   string
	Logger *slog.Logger
}

// Open opens the index at opts.Path, creating it when missing, unreadable or
// built with another mapping version.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	indexPath := filepath.Join(opts.Path, "features.bleve")
	versionPath := filepath.Join(opts.Path, "features.version")

	var idx bleve.Index
	if existing, err := os.ReadFile(versionPath); err == nil && string(existing) == mappingVersion {
		idx, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("failed to open feature index, will recreate", "path", indexPath, "error", err)
			idx = nil
		}
	}

	if idx == nil {
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("remove old index: %w", err)
		}
		var err error
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if err := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); err != nil {
			logger.Warn("failed to write index version file", "error", err)
		}
		logger.Info("created feature index", "path", indexPath, "mapping_version", mappingVersion)
	} else {
		logger.Info("opened feature index", "path", indexPath)
	}

	return &Index{index: idx, path: indexPath, logger: logger}, nil
}

// Close closes the index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.index.Close()
}

// Count returns the number of indexed features.
func (x *Index) Count() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.index.DocCount()
}

// Build indexes every named, positioned element of an Overpass JSON extract
// and returns the number indexed.
func (x *Index) Build(ctx context.Context, r io.Reader) (int, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read extract: %w", err)
	}
	cands, err := overpass.ParseResponse(body, 0)
	if err != nil {
		return 0, err
	}

	named := cands[:0]
	for _, c := range cands {
		if c.Name != "" {
			named = append(named, c)
		}
	}
	if err := x.Add(ctx, named); err != nil {
		return 0, err
	}
	x.logger.Info("feature index built", "elements", len(cands), "indexed", len(named))
	return len(named), nil
}

// Add indexes candidates in batches, replacing features with the same ref.
func (x *Index) Add(ctx context.Context, cands []domain.Candidate) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	for i := 0; i < len(cands); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(cands))

		batch := x.index.NewBatch()
		for _, c := range cands[i:end] {
			doc, err := document(c)
			if err != nil {
				return err
			}
			if err := batch.Index(c.Ref(), doc); err != nil {
				return fmt.Errorf("batch index %s: %w", c.Ref(), err)
			}
		}
		if err := x.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func document(c domain.Candidate) (map[string]any, error) {
	c.Order = 0
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Ref(), err)
	}
	return map[string]any{
		fieldName: match.Fold(c.Name),
		fieldKind: string(c.Kind),
		fieldLocation: map[string]any{
			"lat": c.Coordinates.Lat,
			"lon": c.Coordinates.Lon,
		},
		fieldRaw: string(raw),
	}, nil
}

// Retrieve returns up to maxResults features within radius metres of rec
// whose folded name shares a word with the record's display name, nearest
// first. It satisfies the same contract as the live Overpass retriever.
func (x *Index) Retrieve(ctx context.Context, rec domain.SourceRecord, radius, maxResults int) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	geo := bleve.NewGeoDistanceQuery(rec.Coordinates.Lon, rec.Coordinates.Lat, strconv.Itoa(radius)+"m")
	geo.SetField(fieldLocation)

	var q query.Query = geo
	if words := overpass.NameWords(rec.DisplayName); len(words) > 0 {
		nameQuery := bleve.NewMatchQuery(match.Fold(strings.Join(words, " ")))
		nameQuery.SetField(fieldName)
		q = bleve.NewConjunctionQuery(geo, nameQuery)
	}

	req := bleve.NewSearchRequestOptions(q, maxResults, 0, false)
	req.Fields = []string{fieldRaw}

	byDistance, err := search.NewSortGeoDistance(fieldLocation, "m", rec.Coordinates.Lon, rec.Coordinates.Lat, false)
	if err != nil {
		return nil, fmt.Errorf("build sort: %w", err)
	}
	req.SortByCustom(search.SortOrder{byDistance, &search.SortDocID{}})

	x.mu.RLock()
	res, err := x.index.SearchInContext(ctx, req)
	x.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	cands := make([]domain.Candidate, 0, len(res.Hits))
	for _, hit := range res.Hits {
		raw, ok := hit.Fields[fieldRaw].(string)
		if !ok {
			x.logger.Warn("indexed feature has no stored payload", "id", hit.ID)
			continue
		}
		var c domain.Candidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode %s: %w", hit.ID, err)
		}
		c.Order = len(cands)
		cands = append(cands, c)
	}
	return cands, nil
}
