// Package auth issues and resolves browser sessions. A session is an HS256
// JWT carried in an HttpOnly cookie whose subject is the user id; handlers
// receive the resolved Session by value and pass its UserID to services.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName holds the signed session token.
	CookieName = "finsight_session"
	issuer     = "finsight"
)

var (
	ErrNoSession      = errors.New("no session")
	ErrInvalidSession = errors.New("session is invalid")
	ErrExpiredSession = errors.New("session has expired")
)

// Session is the authenticated principal of a request.
type Session struct {
	UserID    int64
	ExpiresAt time.Time
}

// Manager signs and verifies session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// NewManager returns a Manager signing with secret. Cookies are flagged
// Secure when secure is true.
func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		secure: secure,
		now:    time.Now,
	}
}

// Issue signs a token for userID valid for the manager's TTL.
func (m *Manager) Issue(userID int64) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, exp, nil
}

// Parse verifies token and returns the session it encodes.
func (m *Manager) Parse(token string) (Session, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpiredSession
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Session{}, ErrInvalidSession
	}
	return Session{UserID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Login issues a token for userID and stores it in the session cookie.
func (m *Manager) Login(w http.ResponseWriter, userID int64) error {
	token, exp, err := m.Issue(userID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout expires the session cookie.
func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest resolves the session cookie of r.
func (m *Manager) FromRequest(r *http.Request) (Session, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return Session{}, ErrNoSession
	}
	return m.Parse(c.Value)
}

type contextKey string

const sessionKey contextKey = "session"

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session stored by Middleware.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
