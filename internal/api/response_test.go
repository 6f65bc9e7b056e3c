package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteJSON(w, r, map[string]string{"hello": "world"}, http.StatusAccepted)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"hello":"world"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r = r.WithContext(context.WithValue(r.Context(), requestIDKey, "req-123"))

	WriteSuccess(w, r, map[string]int{"count": 3}, "done")

	assert.Equal(t, http.StatusOK, w.Code)

	var response SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "success", response.Status)
	assert.Equal(t, "done", response.Message)
	assert.Equal(t, "req-123", response.RequestID)
	assert.Equal(t, map[string]any{"count": float64(3)}, response.Data)
}

func TestWriteHealthy(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)

	WriteHealthy(w, r, "gadget-sense", "1.2.3", "http://localhost:3001")

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "gadget-sense", response.Service)
	assert.Equal(t, "1.2.3", response.Version)
	assert.Equal(t, "http://localhost:3001", response.Upstream)

	_, err := time.Parse(time.RFC3339, response.Timestamp)
	assert.NoError(t, err)
}
