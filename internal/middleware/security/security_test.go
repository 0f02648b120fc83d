package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"direct client", "203.0.113.5:4000", "", "", "203.0.113.5"},
		{"untrusted peer ignores xff", "203.0.113.5:4000", "1.2.3.4", "", "203.0.113.5"},
		{"trusted proxy uses first xff", "10.0.0.2:80", "198.51.100.7, 10.0.0.9", "", "198.51.100.7"},
		{"trusted proxy falls back to x-real-ip", "127.0.0.1:80", "garbage", "198.51.100.8", "198.51.100.8"},
		{"trusted proxy without headers", "192.168.1.1:80", "", "", "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := d.ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	d := NewDetector()
	tests := []struct {
		name   string
		method string
		target string
		agent  string
		want   string
	}{
		{"normal page", http.MethodGet, "/dashboard", "Mozilla/5.0", ""},
		{"dotenv probe", http.MethodGet, "/.env", "", "pattern:.env"},
		{"traversal in query", http.MethodGet, "/reports?file=../../secrets", "", "pattern:../"},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", "agent:sqlmap"},
		{"trace method", "TRACE", "/", "", "method:TRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			r.Header.Set("User-Agent", tt.agent)
			if got := d.Reason(r); got != tt.want {
				t.Errorf("Reason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMiddlewareBlocksUnusualMethods(t *testing.T) {
	d := NewDetector()
	h := d.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("TRACE", "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("probes are logged, not blocked: status %d", rec.Code)
	}
	if got := d.GetMetrics().SuspiciousRequests; got != 2 {
		t.Fatalf("SuspiciousRequests = %d, want 2", got)
	}
}

func TestHeaders(t *testing.T) {
	h := Headers(DefaultHeadersConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "cdn.jsdelivr.net") {
		t.Errorf("CSP must allow the chart CDN: %q", rec.Header().Get("Content-Security-Policy"))
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("X-Frame-Options = %q", rec.Header().Get("X-Frame-Options"))
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Strict-Transport-Security") != "max-age=31536000; includeSubDomains" {
		t.Errorf("HSTS = %q", rec.Header().Get("Strict-Transport-Security"))
	}
}
