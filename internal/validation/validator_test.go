package validation_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
	"github.com/geoproapp/geopro-server/internal/validation"
)

func validRecord() domain.SourceRecord {
	return domain.SourceRecord{
		ID:          "rec-1",
		ListName:    "Zurich",
		DisplayName: "Old Mill Cafe",
		Coordinates: domain.Coordinates{Lat: 47.37, Lon: 8.54},
	}
}

func TestValidateRecord_Valid(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.ValidateRecord(validRecord()))
}

func TestValidateRecord_Malformed(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		mutate    func(*domain.SourceRecord)
		wantField string
	}{
		{"missing name", func(r *domain.SourceRecord) { r.DisplayName = "" }, "display_name"},
		{"blank name", func(r *domain.SourceRecord) { r.DisplayName = "   " }, "display_name"},
		{"latitude out of range", func(r *domain.SourceRecord) { r.Coordinates.Lat = 120 }, "coordinates.lat"},
		{"longitude out of range", func(r *domain.SourceRecord) { r.Coordinates.Lon = -200 }, "coordinates.lon"},
		{"missing list", func(r *domain.SourceRecord) { r.ListName = "" }, "list_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)

			err := v.ValidateRecord(rec)
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrMalformedSourceRecord))

			var de *domainerrors.Error
			require.True(t, domainerrors.As(err, &de))
			fields, ok := de.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateRecord_NaNCoordinates(t *testing.T) {
	v := validation.New()
	rec := validRecord()
	rec.Coordinates.Lat = math.NaN()

	err := v.ValidateRecord(rec)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrMalformedSourceRecord))
}

func TestValidate_GenericStruct(t *testing.T) {
	type input struct {
		Radius int `json:"radius" validate:"gte=1,lte=5000"`
	}
	v := validation.New()

	err := v.Validate(input{Radius: 0})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	assert.NoError(t, v.Validate(input{Radius: 1000}))
}
