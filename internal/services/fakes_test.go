package services_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memEventStore is an in-memory security_events table. It serves the event
// log, the throttle's lockout lookups and the threat metrics.
type memEventStore struct {
	mu        sync.Mutex
	events    []*models.SecurityEvent
	createErr error
	countErr  error
}

func (m *memEventStore) Create(ctx context.Context, e *models.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memEventStore) matching(filter models.EventFilter) []*models.SecurityEvent {
	var out []*models.SecurityEvent
	for _, e := range m.events {
		if filter.Identity != "" && (e.Identity == nil || *e.Identity != filter.Identity) {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.DateFrom != nil && e.CreatedAt.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && e.CreatedAt.After(*filter.DateTo) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memEventStore) Query(ctx context.Context, filter models.EventFilter, limit, offset int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.matching(filter)
	if offset >= len(all) {
		return []*models.SecurityEvent{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *memEventStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matching(filter))), nil
}

func (m *memEventStore) CountByTypeSince(ctx context.Context, eventType models.EventType, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return len(m.matching(models.EventFilter{EventType: eventType, DateFrom: &since})), nil
}

func (m *memEventStore) CountErrorsSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, e := range m.matching(models.EventFilter{DateFrom: &since}) {
		if e.Severity.Rank() >= models.SeverityHigh.Rank() || e.EventType == models.EventSystemError {
			n++
		}
	}
	return n, nil
}

func (m *memEventStore) CountIPsAboveSince(ctx context.Context, eventType models.EventType, since time.Time, minEvents int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	perIP := map[string]int{}
	for _, e := range m.matching(models.EventFilter{EventType: eventType, DateFrom: &since}) {
		if e.IPAddress != nil {
			perIP[*e.IPAddress]++
		}
	}
	n := 0
	for _, c := range perIP {
		if c > minEvents {
			n++
		}
	}
	return n, nil
}

func (m *memEventStore) ExistsForIdentitySince(ctx context.Context, identity string, eventType models.EventType, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(models.EventFilter{Identity: identity, EventType: eventType, DateFrom: &since})) > 0, nil
}

func (m *memEventStore) countFor(identity string, eventType models.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(models.EventFilter{Identity: identity, EventType: eventType}))
}

// seed appends n events of a type from ip at the given time
func (m *memEventStore) seed(n int, eventType models.EventType, ip string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		addr := ip
		m.events = append(m.events, &models.SecurityEvent{
			ID:        uuid.New(),
			EventType: eventType,
			Severity:  eventType.DefaultSeverity(),
			IPAddress: &addr,
			CreatedAt: at,
		})
	}
}

// memAttemptStore is an in-memory login_attempts table
type memAttemptStore struct {
	mu        sync.Mutex
	attempts  []*models.LoginAttempt
	countErr  error
	recordErr error
}

func (m *memAttemptStore) RecordAttempt(ctx context.Context, a *models.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.attempts = append(m.attempts, a)
	return nil
}

func (m *memAttemptStore) CountFailedSince(ctx context.Context, identity string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, a := range m.attempts {
		if a.Identity == identity && !a.Success && !a.AttemptTime.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memAttemptStore) LatestFailureSince(ctx context.Context, identity string, since time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, a := range m.attempts {
		if a.Identity == identity && !a.Success && !a.AttemptTime.Before(since) {
			if latest == nil || a.AttemptTime.After(*latest) {
				t := a.AttemptTime
				latest = &t
			}
		}
	}
	return latest, nil
}

func (m *memAttemptStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[:0]
	var removed int64
	for _, a := range m.attempts {
		if a.AttemptTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	m.attempts = kept
	return removed, nil
}

func (m *memAttemptStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// memRateLimitStore consumes under one mutex, which is the atomicity the
// database upsert provides.
type memRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*models.RateLimitWindow
	err     error
}

func newMemRateLimitStore() *memRateLimitStore {
	return &memRateLimitStore{windows: map[string]*models.RateLimitWindow{}}
}

func (m *memRateLimitStore) Consume(ctx context.Context, key string, now time.Time, window time.Duration, max int) (*models.RateLimitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	w, ok := m.windows[key]
	switch {
	case !ok || w.Elapsed(now, window):
		w = &models.RateLimitWindow{Key: key, RequestCount: 1, WindowStart: now}
		m.windows[key] = w
	case w.RequestCount < max:
		w.RequestCount++
	default:
		return &models.RateLimitDecision{Allowed: false, Window: *w}, nil
	}
	return &models.RateLimitDecision{Allowed: true, Window: *w}, nil
}

func (m *memRateLimitStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for k, w := range m.windows {
		if w.WindowStart.Before(cutoff) {
			delete(m.windows, k)
			n++
		}
	}
	return n, nil
}

// memAlertStore is an in-memory security_alerts table
type memAlertStore struct {
	mu        sync.Mutex
	alerts    map[uuid.UUID]*models.SecurityAlert
	createErr error
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{alerts: map[uuid.UUID]*models.SecurityAlert{}}
}

func (m *memAlertStore) Create(ctx context.Context, a *models.SecurityAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memAlertStore) GetByID(ctx context.Context, id uuid.UUID) (*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAlertStore) filtered(status models.AlertStatus) []*models.SecurityAlert {
	var out []*models.SecurityAlert
	for _, a := range m.alerts {
		if status == "" || a.Status == status {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memAlertStore) List(ctx context.Context, status models.AlertStatus, limit, offset int) ([]*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filtered(status)
	if offset >= len(all) {
		return []*models.SecurityAlert{}, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func (m *memAlertStore) Count(ctx context.Context, status models.AlertStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.filtered(status))), nil
}

func (m *memAlertStore) HasOpen(ctx context.Context, kind models.CheckKind, atLeast models.Severity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.CheckKind == kind && a.Status != models.AlertStatusResolved && a.Severity.Rank() >= atLeast.Rank() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAlertStore) Transition(ctx context.Context, id uuid.UUID, from []models.AlertStatus, to models.AlertStatus, actor string, at time.Time) (*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	for _, s := range from {
		if a.Status == s {
			a.Status = to
			a.ResolvedBy = &actor
			a.ResolvedAt = &at
			cp := *a
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAlertStore) all() []*models.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filtered("")
}

// fakeDispatcher records sends and fails for recipients listed in failFor
type fakeDispatcher struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func (d *fakeDispatcher) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[recipient]; ok {
		return err
	}
	d.sent = append(d.sent, recipient+"|"+subject)
	return nil
}

func (d *fakeDispatcher) sentTo(recipient string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sent {
		if strings.HasPrefix(s, recipient+"|") {
			n++
		}
	}
	return n
}

// memUserStore is an in-memory users table keyed by lower-case email
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*models.User{}}
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return u, nil
}

func (m *memUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return nil, models.ErrConflict
	}
	user.ID = uuid.NewString()
	m.users[user.Email] = user
	return user, nil
}
