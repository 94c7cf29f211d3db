// Package validation checks source records and API inputs with
// go-playground/validator and converts failures to domain errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/geoproapp/geopro-server/internal/domain"
	domainerrors "github.com/geoproapp/geopro-server/internal/errors"
)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "notblank", notBlank)

	return &Validator{v: v}
}

// mustRegister adds a custom tag. A failure means the tag or function is
// invalid, which is a programming error.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.String {
		return true
	}
	return strings.TrimSpace(f.String()) != ""
}

// Validate validates a struct and returns a VALIDATION domain error.
func (v *Validator) Validate(s any) error {
	fields, err := v.fieldErrors(s)
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", fields)
	}
	return nil
}

// ValidateRecord checks a source record invariant: a non-blank name and
// finite coordinates within range. Failures are MALFORMED_SOURCE_RECORD.
func (v *Validator) ValidateRecord(rec domain.SourceRecord) error {
	fields, err := v.fieldErrors(rec)
	if err != nil {
		return err
	}
	if !rec.Coordinates.Valid() {
		if _, ok := fields["coordinates.lat"]; !ok {
			if _, ok := fields["coordinates.lon"]; !ok {
				fields["coordinates"] = "must be finite"
			}
		}
	}
	if len(fields) > 0 {
		return domainerrors.MalformedRecord(rec.ID, fields)
	}
	return nil
}

func (v *Validator) fieldErrors(s any) (map[string]string, error) {
	fields := make(map[string]string)
	err := v.v.Struct(s)
	if err == nil {
		return fields, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	for _, e := range verrs {
		fields[fieldPath(e)] = friendlyMessage(e)
	}
	return fields, nil
}

// fieldPath drops the root struct name from the namespace:
// "SourceRecord.coordinates.lat" becomes "coordinates.lat".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "notblank":
		return "must not be blank"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "gt":
		return "must be greater than " + e.Param()
	case "lt":
		return "must be less than " + e.Param()
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
