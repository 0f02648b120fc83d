package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(now time.Time) *Manager {
	m := NewManager(testSecret, time.Hour, false)
	m.now = func() time.Time { return now }
	return m
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	token, exp, err := m.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiry = %v, want %v", exp, now.Add(time.Hour))
	}

	s, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.UserID != 42 {
		t.Fatalf("UserID = %d, want 42", s.UserID)
	}
}

func TestParse_Rejects(t *testing.T) {
	now := time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC)
	m := newTestManager(now)
	valid, _, err := m.Issue(7)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewManager("another-secret-another-secret-xx", time.Hour, false)
	other.now = m.now
	forged, _, _ := other.Issue(7)

	later := newTestManager(now.Add(2 * time.Hour))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "not-a-number",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name    string
		mgr     *Manager
		token   string
		wantErr error
	}{
		{"wrong secret", m, forged, ErrInvalidSession},
		{"expired", later, valid, ErrExpiredSession},
		{"alg none", m, unsigned, ErrInvalidSession},
		{"garbage", m, "not.a.jwt", ErrInvalidSession},
		{"non numeric subject", m, badSubject, ErrInvalidSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mgr.Parse(tt.token)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoginCookieRoundTrip(t *testing.T) {
	m := newTestManager(time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC))

	rec := httptest.NewRecorder()
	if err := m.Login(rec, 9); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("cookies = %+v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	var seen Session
	handler := m.Middleware(RequireUser("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen.UserID != 9 {
		t.Fatalf("session user = %d, want 9", seen.UserID)
	}
}

func TestRequireUser(t *testing.T) {
	m := newTestManager(time.Now())
	handler := m.Middleware(RequireUser("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a session")
	})))

	tests := []struct {
		name       string
		path       string
		htmx       bool
		wantStatus int
		wantHeader string
	}{
		{"page redirects", "/dashboard", false, http.StatusSeeOther, "Location"},
		{"api is 401", "/api/v1/budget", false, http.StatusUnauthorized, ""},
		{"htmx gets redirect header", "/notifications/1/read", true, http.StatusUnauthorized, "HX-Redirect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantHeader != "" && rec.Header().Get(tt.wantHeader) != "/login" {
				t.Errorf("%s = %q, want /login", tt.wantHeader, rec.Header().Get(tt.wantHeader))
			}
		})
	}
}

func TestInvalidCookieIsCleared(t *testing.T) {
	m := newTestManager(time.Now())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			t.Fatal("invalid cookie must not produce a session")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tampered"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected the session cookie to be expired")
	}
}

func TestFlash(t *testing.T) {
	rec := httptest.NewRecorder()
	SetFlash(rec, "success", "Expense added, \"coffee\"")

	req := httptest.NewRequest(http.MethodGet, "/expenses", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	out := httptest.NewRecorder()
	f, ok := PopFlash(out, req)
	if !ok {
		t.Fatal("expected a flash")
	}
	if f.Kind != "success" || f.Message != "Expense added, \"coffee\"" {
		t.Fatalf("flash = %+v", f)
	}

	if _, ok := PopFlash(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatal("no cookie must mean no flash")
	}
}
