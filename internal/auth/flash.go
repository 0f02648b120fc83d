package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

const flashCookie = "finsight_flash"

// Flash is a one-shot message shown on the page after a redirect.
type Flash struct {
	Kind    string `json:"k"` // success, error, warning, info
	Message string `json:"m"`
}

// SetFlash stores f for the next page render.
func SetFlash(w http.ResponseWriter, kind, message string) {
	raw, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash returns the pending flash, if any, and clears it.
func PopFlash(w http.ResponseWriter, r *http.Request) (Flash, bool) {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return Flash{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})

	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return Flash{}, false
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil || f.Message == "" {
		return Flash{}, false
	}
	return f, true
}
