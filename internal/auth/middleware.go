package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"finsight/internal/log"
)

// Middleware resolves the session cookie, when present and valid, into the
// request context. Requests without a session pass through untouched; use
// RequireUser to reject them.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.FromRequest(r)
		switch {
		case err == nil:
			ctx := NewContext(r.Context(), s)
			logger := log.FromContext(ctx).With(log.FieldUserID, s.UserID)
			r = r.WithContext(log.NewContext(ctx, logger))
		case errors.Is(err, ErrNoSession):
		default:
			log.FromContext(r.Context()).WithComponent(log.ComponentAuth).WarnContext(r.Context(), "Discarding invalid session cookie",
				log.NewFields().WithError(err).WithErrorType(log.ErrorTypeAuth).ToSlice()...)
			m.Logout(w)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects anonymous requests. Page requests are redirected to
// loginPath; API and HTMX requests get a 401.
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			switch {
			case strings.HasPrefix(r.URL.Path, "/api/"):
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			case r.Header.Get("HX-Request") == "true":
				w.Header().Set("HX-Redirect", loginPath)
				w.WriteHeader(http.StatusUnauthorized)
			default:
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
			}
		})
	}
}

// RedirectAuthenticated sends signed-in users away from pages such as the
// login form.
func RedirectAuthenticated(target string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok && r.Method == http.MethodGet {
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
