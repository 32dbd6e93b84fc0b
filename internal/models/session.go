package models

import "time"

// Session is the server-held state behind the session cookie
type Session struct {
	ID                string    `db:"id"`
	Identity          *string   `db:"identity"`
	Role              string    `db:"role"`
	CSRFToken         string    `db:"csrf_token"`
	LastRegeneratedAt time.Time `db:"last_regenerated_at"`
	CreatedAt         time.Time `db:"created_at"`
	ExpiresAt         time.Time `db:"expires_at"`
}

// Authenticated reports whether a login has bound an identity to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.Identity != nil && *s.Identity != ""
}

// IdentityOrEmpty returns the bound identity or "" for anonymous sessions.
func (s *Session) IdentityOrEmpty() string {
	if s == nil || s.Identity == nil {
		return ""
	}
	return *s.Identity
}
