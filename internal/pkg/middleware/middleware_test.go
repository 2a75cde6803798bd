package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/pkg/logger"
)

func TestRequestID(t *testing.T) {
	var seen any
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context().Value(logger.RequestIDKey)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))

		reqID := rec.Header().Get(RequestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			t.Errorf("expected a UUID request ID, got %q", reqID)
		}
		if seen != reqID {
			t.Errorf("expected request ID %q in context, got %v", reqID, seen)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/runs", nil)
		req.Header.Set(RequestIDHeader, "existing-id-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "existing-id-123" {
			t.Errorf("expected preserved request ID, got %s", got)
		}
	})
}

func TestLogging(t *testing.T) {
	var logBuf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &logBuf})

	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/health", nil))

	out := logBuf.String()
	for _, want := range []string{"request completed", `"method":"GET"`, `"path":"/health"`, `"status":200`, `"size":5`, "duration_ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log, got: %s", want, out)
		}
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedLevel string
	}{
		{"2xx logs info", 200, "INFO"},
		{"3xx logs info", 302, "INFO"},
		{"4xx logs warn", 404, "WARN"},
		{"5xx logs error", 503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			log := logger.New(logger.Config{Level: "info", Format: "json", Output: &logBuf})

			handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs", nil))

			if !strings.Contains(logBuf.String(), `"level":"`+tt.expectedLevel+`"`) {
				t.Errorf("expected log level %s, got: %s", tt.expectedLevel, logBuf.String())
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var logBuf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", Format: "json", Output: &logBuf})

	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("store exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/frames/x.png", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("expected INTERNAL_ERROR in body, got: %s", rec.Body.String())
	}
	if !strings.Contains(logBuf.String(), "panic recovered") || !strings.Contains(logBuf.String(), "store exploded") {
		t.Errorf("expected panic to be logged, got: %s", logBuf.String())
	}
}

func TestWrapHandler(t *testing.T) {
	log := logger.Nop()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"success", nil, http.StatusOK, "", ""},
		{"not found", errors.New(errors.CodeNotFound, "run not found"), http.StatusNotFound, "NOT_FOUND", "run not found"},
		{"validation", errors.ValidationField("frame", "must be positive"), http.StatusBadRequest, "VALIDATION_ERROR", "must be positive"},
		{"unavailable", errors.New(errors.CodeUnavailable, "queue down"), http.StatusServiceUnavailable, "UNAVAILABLE", "queue down"},
		{"plain error", stdError("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
				if tt.err != nil {
					return tt.err
				}
				w.WriteHeader(http.StatusOK)
				return nil
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/runs/1", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.err == nil {
				return
			}

			var env struct {
				Error struct {
					Code    string         `json:"code"`
					Message string         `json:"message"`
					Details map[string]any `json:"details"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if env.Error.Code != tt.wantCode || env.Error.Message != tt.wantMsg {
				t.Errorf("unexpected envelope: %+v", env.Error)
			}
		})
	}
}

func TestHandleErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := errors.ValidationField("frame", "must be positive")
	HandleError(rec, httptest.NewRequest("GET", "/", nil), logger.Nop(), err)

	if !strings.Contains(rec.Body.String(), `"details":{"field":"frame"}`) {
		t.Errorf("expected field detail in body, got: %s", rec.Body.String())
	}
}

type stdError string

func (e stdError) Error() string { return string(e) }
