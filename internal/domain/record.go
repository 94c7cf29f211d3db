// Package domain defines the types that flow through the matching pipeline:
// source records, retrieved candidates, scored matches, outcomes and export
// records.
package domain

import (
	"math"
	"strconv"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Valid reports whether both components are finite and in range.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// String renders "lat,lon" with seven decimals (about 1 cm).
func (c Coordinates) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 7, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 7, 64)
}

// SourceRecord is one saved place as produced by the scraping collaborator.
// It is never modified after ingestion.
type SourceRecord struct {
	ID           string      `json:"id" validate:"required"`
	ListName     string      `json:"list_name" validate:"required"`
	DisplayName  string      `json:"display_name" validate:"required,notblank"`
	Coordinates  Coordinates `json:"coordinates"`
	Address      string      `json:"address,omitempty"`
	CategoryHint string      `json:"category_hint,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	// Seq is the position of the record in its source export.
	Seq int `json:"seq" validate:"gte=0"`
}
