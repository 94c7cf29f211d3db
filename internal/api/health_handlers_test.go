package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoproapp/geopro-server/internal/logger"
)

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	var healthResp HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &healthResp))

	assert.Equal(t, "healthy", healthResp.Status)
	assert.Equal(t, Version, healthResp.Version)
	assert.Equal(t, "healthy", healthResp.Components["database"].Status)
	assert.Equal(t, "no connected clients", healthResp.Components["sse"].Message)
}

func TestHealthCheck_DegradedWithoutDependencies(t *testing.T) {
	srv := NewServer(&Services{}, nil, nil, Options{}, logger.Discard())
	api := humatest.Wrap(t, srv.API())

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var healthResp HealthResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &healthResp))
	assert.Equal(t, "degraded", healthResp.Status)
	assert.Equal(t, "degraded", healthResp.Components["categories"].Status)
}

func TestFormatSSEStatus(t *testing.T) {
	assert.Equal(t, "no connected clients", formatSSEStatus(0))
	assert.Equal(t, "1 connected client", formatSSEStatus(1))
	assert.Equal(t, "12 connected clients", formatSSEStatus(12))
}
