package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/alumnigate/internal/models"
)

const csrfTokenBytes = 32

// CSRFTokenStore persists the per-session token
type CSRFTokenStore interface {
	SetCSRFToken(ctx context.Context, sessionID, token string) (string, error)
}

// EventRecorder is the subset of the security event log the guards need
type EventRecorder interface {
	Record(ctx context.Context, in models.SecurityEventInput) error
}

// CSRFGuard binds one unpredictable token to each session and checks it on
// state-changing requests.
type CSRFGuard struct {
	store  CSRFTokenStore
	events EventRecorder
	logger *slog.Logger
}

func NewCSRFGuard(store CSRFTokenStore, events EventRecorder, logger *slog.Logger) *CSRFGuard {
	return &CSRFGuard{store: store, events: events, logger: logger}
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IssueToken returns the session's token, creating it on first use. Calls
// after the first return the same value until the session is reset.
func (g *CSRFGuard) IssueToken(ctx context.Context, session *models.Session) (string, error) {
	if session == nil {
		return "", errors.New("csrf: no session")
	}
	if session.CSRFToken != "" {
		return session.CSRFToken, nil
	}

	token, err := generateToken(csrfTokenBytes)
	if err != nil {
		return "", fmt.Errorf("csrf: %w", err)
	}

	// The store keeps an existing token if a concurrent request won the race.
	stored, err := g.store.SetCSRFToken(ctx, session.ID, token)
	if err != nil {
		return "", fmt.Errorf("csrf: persist token: %w", err)
	}

	session.CSRFToken = stored
	return stored, nil
}

// VerifyToken compares the submitted token against the session's in
// constant time. Every failure records a csrf_failure event.
func (g *CSRFGuard) VerifyToken(ctx context.Context, session *models.Session, submitted, clientIP, userAgent string) error {
	reason := ""
	switch {
	case session == nil:
		reason = "no session"
	case session.CSRFToken == "":
		reason = "no token issued"
	case submitted == "":
		reason = "token missing"
	case subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(submitted)) != 1:
		reason = "token mismatch"
	default:
		return nil
	}

	err := g.events.Record(ctx, models.SecurityEventInput{
		Identity:    session.IdentityOrEmpty(),
		EventType:   models.EventCSRFFailure,
		Description: "CSRF verification failed: " + reason,
		IPAddress:   clientIP,
		UserAgent:   userAgent,
		Metadata:    models.EventMetadata{"reason": reason},
	})
	if err != nil {
		g.logger.WarnContext(ctx, "csrf failure event not persisted", slog.Any("error", err))
	}

	return models.ErrCSRFMismatch
}
