package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/alumnigate/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memSessionStore is an in-memory SessionStore
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	failGet  error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *memSessionStore) Create(ctx context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessionStore) GetActive(ctx context.Context, id string, now time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(now) {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) SetCSRFToken(ctx context.Context, id, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return "", models.ErrNotFound
	}
	if s.CSRFToken == "" {
		s.CSRFToken = token
	}
	return s.CSRFToken, nil
}

func (m *memSessionStore) Replace(ctx context.Context, oldID string, next *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, oldID)
	cp := *next
	m.sessions[next.ID] = &cp
	return nil
}

func (m *memSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionStore) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// recordingEvents captures recorded security events
type recordingEvents struct {
	mu     sync.Mutex
	events []models.SecurityEventInput
	err    error
}

func (r *recordingEvents) Record(ctx context.Context, in models.SecurityEventInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, in)
	return r.err
}

func (r *recordingEvents) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

type requestIDKey struct{}

// ctxCapturingHandler keeps the context of every log record it handles
type ctxCapturingHandler struct {
	mu       sync.Mutex
	contexts []context.Context
	messages []string
}

func (h *ctxCapturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *ctxCapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.contexts = append(h.contexts, ctx)
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *ctxCapturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *ctxCapturingHandler) WithGroup(string) slog.Handler      { return h }
