package localindex

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names of an indexed feature.
const (
	fieldName     = "name"
	fieldKind     = "kind"
	fieldLocation = "location"
	fieldRaw      = "raw"
)

// buildIndexMapping maps one document per OSM feature: a folded name for
// word matching, a geopoint for distance queries and the stored candidate.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false

	// Names are folded before indexing, so the simple analyzer suffices.
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name
	docMapping.AddFieldMappingsAt(fieldName, nameFieldMapping)

	kindFieldMapping := bleve.NewTextFieldMapping()
	kindFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(fieldKind, kindFieldMapping)

	docMapping.AddFieldMappingsAt(fieldLocation, bleve.NewGeoPointFieldMapping())

	rawFieldMapping := bleve.NewTextFieldMapping()
	rawFieldMapping.Index = false
	rawFieldMapping.Store = true
	rawFieldMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(fieldRaw, rawFieldMapping)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
