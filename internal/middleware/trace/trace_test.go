package trace

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finsight/internal/log"
)

func TestHandlerAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf})
	m := NewMiddleware(func(*http.Request) string { return "203.0.113.9" })

	var inside string
	h := log.Middleware(logger)(m.Handler(log.RequestIDMiddleware(FromRequest)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inside = RequestID(r.Context())
			log.FromContext(r.Context()).Info("handler ran")
			w.WriteHeader(http.StatusTeapot)
		}))))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if inside == "" || !strings.HasPrefix(inside, "req_") {
		t.Fatalf("request id = %q", inside)
	}
	if got := rec.Header().Get(HeaderRequestID); got != inside {
		t.Fatalf("%s header = %q, want %q", HeaderRequestID, got, inside)
	}
	out := buf.String()
	if !strings.Contains(out, "request_id="+inside) {
		t.Fatalf("handler log line missing request id: %s", out)
	}
	if !strings.Contains(out, "status_code=418") || !strings.Contains(out, "client_ip=203.0.113.9") {
		t.Fatalf("completion log missing fields: %s", out)
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Fatalf("TotalRequests = %d, want 1", got)
	}
}

func TestHandlerKeepsIncomingID(t *testing.T) {
	m := NewMiddleware(nil)
	var inside string
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inside = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if inside != "upstream-1" {
		t.Fatalf("request id = %q, want upstream-1", inside)
	}
}

func TestServerErrorsCounted(t *testing.T) {
	m := NewMiddleware(nil)
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := m.GetMetrics().ServerErrors; got != 1 {
		t.Fatalf("ServerErrors = %d, want 1", got)
	}
}
