package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/codeshop/codeshop-backend/pkg/logger"
)

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	var seen string
	handler := RequestID(logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set(requestIDHeader, "lb-7f3a.42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "lb-7f3a.42" {
		t.Fatalf("expected propagated id, got %q", seen)
	}
	if rec.Header().Get(requestIDHeader) != "lb-7f3a.42" {
		t.Fatalf("response header not echoed: %q", rec.Header().Get(requestIDHeader))
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	for name, incoming := range map[string]string{
		"missing":   "",
		"too long":  strings.Repeat("a", maxRequestIDLen+1),
		"newline":   "abc\ninjected",
		"spaces":    "two words",
		"non-ascii": "zähler",
	} {
		handler := RequestID(nil)(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if incoming != "" {
			req.Header.Set(requestIDHeader, incoming)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		if got == incoming {
			t.Fatalf("%s: unsafe id kept", name)
		}
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("%s: expected minted uuid, got %q", name, got)
		}
	}
}

func TestRecovererWritesEnvelopeWithRequestID(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Format: "json", Output: &logs})
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	handler := RequestID(logg)(Recoverer(logg)(panicking))

	req := httptest.NewRequest(http.MethodPost, "/api/stock/assign", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "INTERNAL_ERROR" || envelope.Error.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", envelope.Error)
	}
	if strings.Contains(envelope.Error.Message, "boom") {
		t.Fatalf("panic value leaked to client: %q", envelope.Error.Message)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry); err != nil {
		t.Fatalf("decode log: %v (%s)", err, logs.String())
	}
	if entry["request_id"] != "req-1" || entry["panic"] != "boom" || entry["path"] != "/api/stock/assign" {
		t.Fatalf("panic log missing fields: %v", entry)
	}
}

func TestRecovererReraisesAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	if recovered != http.ErrAbortHandler {
		t.Fatalf("expected ErrAbortHandler to propagate, got %v", recovered)
	}
}
