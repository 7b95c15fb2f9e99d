package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LogsRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if logs.Len() != 1 {
		t.Errorf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "HTTP request" {
		t.Errorf("expected message 'HTTP request', got '%s'", entry.Message)
	}
	if entry.Level != zap.DebugLevel {
		t.Errorf("expected DEBUG for a 200, got %s", entry.Level)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id header")
	}
}

func TestRequestLogger_ReusesIncomingRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set(RequestIDHeader, "cron-2024-02-01")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "cron-2024-02-01" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
	fields := logs.All()[0].ContextMap()
	if fields["request_id"] != "cron-2024-02-01" {
		t.Errorf("expected request_id field, got %v", fields["request_id"])
	}
	if fields["bytes"] != int64(len(`{"ok":true}`)) {
		t.Errorf("expected bytes=%d, got %v", len(`{"ok":true}`), fields["bytes"])
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zap.DebugLevel},
		{http.StatusConflict, zap.WarnLevel},
		{http.StatusServiceUnavailable, zap.ErrorLevel},
	}
	for _, tt := range tests {
		core, logs := observer.New(zap.DebugLevel)
		handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		if got := logs.All()[0].Level; got != tt.level {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.level, got)
		}
	}
}

func TestRecoverer_ReturnsJSON500(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)

	handler := Recoverer(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "nil map write") {
		t.Error("panic value must not leak to the client")
	}
	if logs.FilterMessage("Handler panicked").Len() != 1 {
		t.Error("expected the panic to be logged")
	}
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_CapturesStatusCode(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	entry := logs.All()[0]
	statusField := entry.ContextMap()["status"]
	if statusField != int64(http.StatusNotFound) {
		t.Errorf("expected status %d, got %v", http.StatusNotFound, statusField)
	}
}

func TestResponseWriter_PreventsDuplicateWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	// First call should work
	rw.WriteHeader(http.StatusCreated)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rw.statusCode)
	}

	// Second call should be ignored (no panic, no warning)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusCreated {
		t.Errorf("expected status to remain %d, got %d", http.StatusCreated, rw.statusCode)
	}

	// The recorded response should have the first status code
	if rec.Code != http.StatusCreated {
		t.Errorf("expected recorded status %d, got %d", http.StatusCreated, rec.Code)
	}
}

func TestResponseWriter_WriteTriggersWriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	// Writing without explicit WriteHeader should set status 200
	_, err := rw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rw.statusCode != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rw.statusCode)
	}
	if !rw.headerWritten {
		t.Error("expected headerWritten to be true")
	}
}

func TestResponseWriter_ExplicitWriteHeaderBeforeWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	// Explicit WriteHeader then Write
	rw.WriteHeader(http.StatusAccepted)
	_, err := rw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rw.statusCode != http.StatusAccepted {
		t.Errorf("expected status %d, got %d", http.StatusAccepted, rw.statusCode)
	}
}

func TestRequestLogger_HandlerWritesMultipleHeaders(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.WriteHeader(http.StatusInternalServerError) // This should be ignored
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	// Should log the first status code
	entry := logs.All()[0]
	statusField := entry.ContextMap()["status"]
	if statusField != int64(http.StatusBadRequest) {
		t.Errorf("expected status %d, got %v", http.StatusBadRequest, statusField)
	}
}
