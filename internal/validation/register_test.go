package validation

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

func TestMustRegister(t *testing.T) {
	assert.NotPanics(t, func() { New() })

	v := validator.New()
	assert.Panics(t, func() { mustRegister(v, "", notBlank) })
	assert.Panics(t, func() { mustRegister(v, "blank", nil) })
}

func TestNotBlank(t *testing.T) {
	type named struct {
		Name string `validate:"notblank"`
	}
	v := validator.New()
	mustRegister(v, "notblank", notBlank)

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"text", "Old Mill Cafe", false},
		{"whitespace", " \t ", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(named{Name: tt.value})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
