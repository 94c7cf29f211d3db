package domain

import "strconv"

// FeatureKind is the OSM element type of a candidate.
type FeatureKind string

// OSM element types.
const (
	KindNode     FeatureKind = "node"
	KindWay      FeatureKind = "way"
	KindRelation FeatureKind = "relation"
)

// Shape is the geometric interpretation of a candidate. Lower values are
// preferred when scores tie.
type Shape int

// Shapes in tie-break preference order.
const (
	ShapePoint Shape = iota
	ShapeArea
	ShapeLine
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapePoint:
		return "point"
	case ShapeArea:
		return "area"
	default:
		return "line"
	}
}

// areaKeys are tag keys that make an open way describe an area.
var areaKeys = []string{"area", "building", "landuse", "leisure", "amenity", "shop", "tourism", "natural"}

// Candidate is a geodata feature retrieved as a possible match. For ways and
// relations Coordinates holds the centroid reported by the backend.
type Candidate struct {
	ExternalID  string            `json:"external_id"`
	Kind        FeatureKind       `json:"kind"`
	Name        string            `json:"name,omitempty"`
	Coordinates Coordinates       `json:"coordinates"`
	Tags        map[string]string `json:"tags,omitempty"`
	// Order is the position in the retrieval response.
	Order int `json:"order"`
}

// Ref returns the OSM reference, e.g. "node/123".
func (c Candidate) Ref() string {
	return string(c.Kind) + "/" + c.ExternalID
}

// URL returns the openstreetmap.org page of the candidate.
func (c Candidate) URL() string {
	return "https://www.openstreetmap.org/" + c.Ref()
}

// Shape classifies the candidate as point, area or line.
func (c Candidate) Shape() Shape {
	switch c.Kind {
	case KindNode:
		return ShapePoint
	case KindRelation:
		return ShapeArea
	}
	if v, ok := c.Tags["area"]; ok {
		if v == "no" {
			return ShapeLine
		}
		return ShapeArea
	}
	for _, k := range areaKeys {
		if _, ok := c.Tags[k]; ok {
			return ShapeArea
		}
	}
	return ShapeLine
}

// Tag returns the value of key, or "" when absent.
func (c Candidate) Tag(key string) string {
	return c.Tags[key]
}

// Label is a short human description, used in review prompts.
func (c Candidate) Label() string {
	name := c.Name
	if name == "" {
		name = "(unnamed)"
	}
	return name + " [" + c.Ref() + ", " + c.Shape().String() + ", order " + strconv.Itoa(c.Order) + "]"
}
