package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Format: "json", Component: ComponentLedger})
	l.Info("hello", FieldUserID, 7)

	out := buf.String()
	if !strings.Contains(out, `"component":"ledger"`) {
		t.Fatalf("missing component in %s", out)
	}
	if !strings.Contains(out, `"user_id":7`) {
		t.Fatalf("missing user_id in %s", out)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	var seen *Logger
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.Info("inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == nil {
		t.Fatal("logger not found in context")
	}
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("expected request id in output, got %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("unexpected default logger %+v", l)
	}
}
