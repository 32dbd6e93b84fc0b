package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/alumnigate/internal/clock"
	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

const sessionIDBytes = 32

// SessionStore persists sessions
type SessionStore interface {
	CSRFTokenStore
	Create(ctx context.Context, s *models.Session) error
	GetActive(ctx context.Context, id string, now time.Time) (*models.Session, error)
	Replace(ctx context.Context, oldID string, next *models.Session) error
	Delete(ctx context.Context, id string) error
}

type SessionConfig struct {
	TTL    time.Duration
	Cookie CookieConfig
}

// SessionManager loads, creates and regenerates server-held sessions
type SessionManager struct {
	store  SessionStore
	clock  clock.Clock
	config SessionConfig
	logger *slog.Logger
}

func NewSessionManager(store SessionStore, clk clock.Clock, config SessionConfig, logger *slog.Logger) *SessionManager {
	return &SessionManager{store: store, clock: clk, config: config, logger: logger}
}

func (m *SessionManager) newSession(identity *string, role string) (*models.Session, error) {
	id, err := generateToken(sessionIDBytes)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	now := m.clock.Now()
	return &models.Session{
		ID:                id,
		Identity:          identity,
		Role:              role,
		LastRegeneratedAt: now,
		CreatedAt:         now,
		ExpiresAt:         now.Add(m.config.TTL),
	}, nil
}

// Middleware attaches the caller's session to the request context, starting
// an anonymous one when the cookie is missing, unknown or expired.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if id := sessionIDFromCookie(r); id != "" {
			session, err := m.store.GetActive(ctx, id, m.clock.Now())
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithSession(ctx, session)))
				return
			case !errors.Is(err, models.ErrNotFound):
				m.logger.Error("failed to load session", slog.Any("error", err))
				pkghttp.WriteInternalError(w, "An unexpected error occurred")
				return
			}
		}

		session, err := m.newSession(nil, "")
		if err == nil {
			err = m.store.Create(ctx, session)
		}
		if err != nil {
			m.logger.Error("failed to start session", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "An unexpected error occurred")
			return
		}

		SetSessionCookie(w, session.ID, session.ExpiresAt, m.config.Cookie)
		next.ServeHTTP(w, r.WithContext(WithSession(ctx, session)))
	})
}

// Reset replaces the current session with a fresh identifier and no CSRF
// token. Used on login, logout and privilege changes so tokens and session
// IDs from before the change cannot be replayed.
func (m *SessionManager) Reset(ctx context.Context, w http.ResponseWriter, current *models.Session, identity *string, role string) (*models.Session, error) {
	next, err := m.newSession(identity, role)
	if err != nil {
		return nil, err
	}

	oldID := ""
	if current != nil {
		oldID = current.ID
	}

	if err := m.store.Replace(ctx, oldID, next); err != nil {
		return nil, fmt.Errorf("session: regenerate: %w", err)
	}

	SetSessionCookie(w, next.ID, next.ExpiresAt, m.config.Cookie)
	return next, nil
}

// Destroy removes the session and clears the cookie
func (m *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, current *models.Session) error {
	ClearSessionCookie(w, m.config.Cookie)
	if current == nil {
		return nil
	}
	return m.store.Delete(ctx, current.ID)
}
