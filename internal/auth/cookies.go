package auth

import (
	"net/http"
	"time"
)

const SessionCookieName = "session_id"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // empty means current host only
	Secure   bool
	SameSite string // "strict", "lax" or "none"
}

// SetSessionCookie writes the HttpOnly session cookie
func SetSessionCookie(w http.ResponseWriter, sessionID string, expires time.Time, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// sessionIDFromCookie returns "" when the cookie is absent
func sessionIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
