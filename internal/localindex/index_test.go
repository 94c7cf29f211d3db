package localindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
	"github.com/geoproapp/geopro-server/internal/logger"
)

const extract = `{
  "elements": [
    {"type": "node", "id": 1, "lat": 47.3701, "lon": 8.5401, "tags": {"amenity": "cafe", "name": "Old Mill Café"}},
    {"type": "way", "id": 2, "center": {"lat": 47.3712, "lon": 8.5398}, "tags": {"building": "yes", "name": "Old Mill"}},
    {"type": "node", "id": 3, "lat": 47.3705, "lon": 8.5405, "tags": {"amenity": "bank", "name": "Zürcher Kantonalbank"}},
    {"type": "node", "id": 4, "lat": 46.2044, "lon": 6.1432, "tags": {"amenity": "cafe", "name": "Old Mill Geneva"}},
    {"type": "node", "id": 5, "lat": 47.3702, "lon": 8.5402, "tags": {"amenity": "bench"}}
  ]
}`

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(Options{Path: t.TempDir(), Logger: logger.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	n, err := idx.Build(context.Background(), strings.NewReader(extract))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	return idx
}

func TestIndex_Retrieve(t *testing.T) {
	idx := openTestIndex(t)

	rec := domain.SourceRecord{
		ID:          "rec-1",
		DisplayName: "Old Mill Cafe",
		Coordinates: domain.Coordinates{Lat: 47.37, Lon: 8.54},
	}
	cands, err := idx.Retrieve(context.Background(), rec, 1000, 25)
	require.NoError(t, err)

	// Nearest first; the bank does not share a word and Geneva is too far.
	require.Len(t, cands, 2)
	assert.Equal(t, "node/1", cands[0].Ref())
	assert.Equal(t, "Old Mill Café", cands[0].Name)
	assert.Equal(t, "cafe", cands[0].Tag("amenity"))
	assert.Equal(t, 0, cands[0].Order)
	assert.Equal(t, "way/2", cands[1].Ref())
	assert.Equal(t, 1, cands[1].Order)
}

func TestIndex_Retrieve_FoldsDiacritics(t *testing.T) {
	idx := openTestIndex(t)

	rec := domain.SourceRecord{DisplayName: "Zurcher Kantonalbank", Coordinates: domain.Coordinates{Lat: 47.37, Lon: 8.54}}
	cands, err := idx.Retrieve(context.Background(), rec, 1000, 25)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "node/3", cands[0].Ref())
}

func TestIndex_Retrieve_MaxResultsAndEmpty(t *testing.T) {
	idx := openTestIndex(t)

	rec := domain.SourceRecord{DisplayName: "Old Mill", Coordinates: domain.Coordinates{Lat: 47.37, Lon: 8.54}}
	cands, err := idx.Retrieve(context.Background(), rec, 1000, 1)
	require.NoError(t, err)
	assert.Len(t, cands, 1)

	rec.DisplayName = "Hauptbahnhof"
	cands, err = idx.Retrieve(context.Background(), rec, 1000, 25)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestOpen_ReusesExistingIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(Options{Path: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	_, err = idx.Build(context.Background(), strings.NewReader(extract))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	idx, err = Open(Options{Path: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestOpen_RebuildsOnVersionChange(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(Options{Path: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	_, err = idx.Build(context.Background(), strings.NewReader(extract))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "features.version"), []byte("0"), 0o644))

	idx, err = Open(Options{Path: dir, Logger: logger.Discard()})
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIndex_BuildRejectsGarbage(t *testing.T) {
	idx, err := Open(Options{Path: t.TempDir(), Logger: logger.Discard()})
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.Build(context.Background(), strings.NewReader("<osm/>"))
	assert.Error(t, err)
}
