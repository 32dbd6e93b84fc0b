package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/middleware"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/stretchr/testify/assert"
)

func csrfRequest(method, path string, session *models.Session) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if session != nil {
		req = req.WithContext(auth.WithSession(req.Context(), session))
	}
	return req
}

func serveCSRF(verifier *fakeVerifier, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	handler := middleware.CSRFProtection(verifier, mustResolver(), noDelay(), middleware.DefaultCSRFConfig(), discardLogger())(okHandler(&called))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func TestCSRFProtection_SafeMethodsPass(t *testing.T) {
	verifier := &fakeVerifier{want: "tok"}

	rec, called := serveCSRF(verifier, csrfRequest(http.MethodGet, "/admin/security/events", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, verifier.submitted)
}

func TestCSRFProtection_ExemptPaths(t *testing.T) {
	verifier := &fakeVerifier{want: "tok"}

	_, called := serveCSRF(verifier, csrfRequest(http.MethodPost, "/metrics", nil))

	assert.True(t, called)
}

func TestCSRFProtection_HeaderToken(t *testing.T) {
	verifier := &fakeVerifier{want: "tok"}
	req := csrfRequest(http.MethodPost, "/auth/logout", &models.Session{ID: "s", CSRFToken: "tok"})
	req.Header.Set(middleware.CSRFHeaderName, "tok")
	req.RemoteAddr = "203.0.113.5:4000"

	rec, called := serveCSRF(verifier, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"203.0.113.5"}, verifier.clientIPs)
}

func TestCSRFProtection_FormFieldTakesPrecedence(t *testing.T) {
	verifier := &fakeVerifier{want: "from-form"}
	form := url.Values{middleware.CSRFFormField: {"from-form"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(middleware.CSRFHeaderName, "from-header")
	req = req.WithContext(auth.WithSession(req.Context(), &models.Session{ID: "s"}))

	_, called := serveCSRF(verifier, req)

	assert.True(t, called)
	assert.Equal(t, []string{"from-form"}, verifier.submitted)
}

func TestCSRFProtection_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		token  string
	}{
		{"missing token", http.MethodPost, ""},
		{"wrong token", http.MethodPut, "nope"},
		{"delete without token", http.MethodDelete, ""},
		{"patch wrong token", http.MethodPatch, "tok2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{want: "tok"}
			req := csrfRequest(tt.method, "/admin/security/alerts/x/resolve", &models.Session{ID: "s"})
			if tt.token != "" {
				req.Header.Set(middleware.CSRFHeaderName, tt.token)
			}

			rec, called := serveCSRF(verifier, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Contains(t, rec.Body.String(), "request_rejected")
		})
	}
}
