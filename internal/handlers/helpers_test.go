package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext attaches a session as the session middleware would
func WithSessionContext(req *http.Request, session *models.Session) *http.Request {
	return req.WithContext(auth.WithSession(req.Context(), session))
}

func adminSession(identity string) *models.Session {
	return &models.Session{ID: "sess-admin", Identity: &identity, Role: models.RoleAdmin}
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), target), "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthenticator implements Authenticator for testing
type MockAuthenticator struct {
	LoginFunc  func(ctx context.Context, email, password, clientIP, userAgent string) (*models.User, error)
	LogoutFunc func(ctx context.Context, identity, clientIP, userAgent string)
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password, clientIP, userAgent string) (*models.User, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, clientIP, userAgent)
}

func (m *MockAuthenticator) Logout(ctx context.Context, identity, clientIP, userAgent string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, identity, clientIP, userAgent)
	}
}

// MockSessions implements SessionResetter, recording each reset
type MockSessions struct {
	Resets   []*models.Session
	ResetErr error
}

func (m *MockSessions) Reset(ctx context.Context, w http.ResponseWriter, current *models.Session, identity *string, role string) (*models.Session, error) {
	if m.ResetErr != nil {
		return nil, m.ResetErr
	}
	next := &models.Session{ID: "sess-" + uuid.NewString(), Identity: identity, Role: role}
	m.Resets = append(m.Resets, next)
	return next, nil
}

// MockTokenIssuer implements TokenIssuer
type MockTokenIssuer struct {
	Token    string
	Err      error
	IssuedTo []*models.Session
}

func (m *MockTokenIssuer) IssueToken(ctx context.Context, session *models.Session) (string, error) {
	m.IssuedTo = append(m.IssuedTo, session)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Token, nil
}

// MockEventQuerier implements EventQuerier
type MockEventQuerier struct {
	QueryFunc func(ctx context.Context, filter models.EventFilter, page, pageSize int) (*models.EventPage, error)
}

func (m *MockEventQuerier) Query(ctx context.Context, filter models.EventFilter, page, pageSize int) (*models.EventPage, error) {
	return m.QueryFunc(ctx, filter, page, pageSize)
}

// MockThreatEvaluator implements ThreatEvaluator
type MockThreatEvaluator struct {
	Assessment *models.ThreatAssessment
	Err        error
}

func (m *MockThreatEvaluator) Evaluate(ctx context.Context) (*models.ThreatAssessment, error) {
	return m.Assessment, m.Err
}

// MockAlertManager implements AlertManager
type MockAlertManager struct {
	ListFunc        func(ctx context.Context, status models.AlertStatus, page, pageSize int) (*models.AlertPage, error)
	AcknowledgeFunc func(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error)
	ResolveFunc     func(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error)
}

func (m *MockAlertManager) List(ctx context.Context, status models.AlertStatus, page, pageSize int) (*models.AlertPage, error) {
	return m.ListFunc(ctx, status, page, pageSize)
}

func (m *MockAlertManager) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error) {
	return m.AcknowledgeFunc(ctx, id, actor)
}

func (m *MockAlertManager) Resolve(ctx context.Context, id uuid.UUID, actor string) (*models.SecurityAlert, error) {
	return m.ResolveFunc(ctx, id, actor)
}
