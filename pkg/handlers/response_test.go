package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
)

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()

	require.NoError(t, ErrorResponse(w, http.StatusConflict, "sync_in_progress", "A sync run is already in progress"))

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"error": "sync_in_progress", "message": "A sync run is already in progress"}, body)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusOK, map[string]int{"removed": 3}))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":3}`, w.Body.String())

	w = httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusBadGateway, map[string]string{"state": "failed"}))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	assert.Error(t, WriteJSON(httptest.NewRecorder(), http.StatusOK, make(chan int)))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("get: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{"sync in progress", apperrors.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"transport", fmt.Errorf("download failed: %w", apperrors.New(apperrors.KindTransport, "fetch dump", "unexpected status 503")), http.StatusBadGateway, "upstream_unavailable"},
		{"cache", apperrors.New(apperrors.KindCache, "cache.clear", "connection refused"), http.StatusServiceUnavailable, "cache_unavailable"},
		{"validation", apperrors.New(apperrors.KindValidation, "contract", "title is required"), http.StatusBadRequest, "invalid_request"},
		{"store", apperrors.New(apperrors.KindStore, "insert", "pq: deadlock"), http.StatusInternalServerError, "internal_error"},
		{"plain", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, message := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotContains(t, message, tt.err.Error())
		})
	}
}
