package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/logger"
)

func TestKey(t *testing.T) {
	a := Key("overpass", `[out:json];node(around:1000,47.37,8.54);out;`)
	b := Key("overpass", `[out:json];node(around:1000,47.37,8.54);out;`)
	c := Key("overpass", `[out:json];node(around:500,47.37,8.54);out;`)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "overpass:")
}

func TestCaches(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		open func(t *testing.T) Cache
	}{
		{"badger", func(t *testing.T) Cache {
			c, err := OpenBadger(t.TempDir(), time.Hour, logger.Discard())
			require.NoError(t, err)
			return c
		}},
		{"memory", func(t *testing.T) Cache {
			return NewMemory(time.Hour)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.open(t)
			defer c.Close()

			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			value := []byte(`{"elements":[]}`)
			require.NoError(t, c.Set(ctx, "k", value))
			value[0] = 'X'

			got, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"elements":[]}`, string(got))
		})
	}
}

func TestMemory_Expires(t *testing.T) {
	c := NewMemory(20 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(context.Background(), "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNew(t *testing.T) {
	c, err := New(BackendNone, "", time.Hour, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "k", []byte("v")))
	_, ok, _ := c.Get(context.Background(), "k")
	assert.False(t, ok)

	c, err = New(BackendMemory, "", time.Hour, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New("redis", "", time.Hour, logger.Discard())
	assert.Error(t, err)
}
