package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
	pkglogger "github.com/BradenHooton/alumnigate/pkg/logger"
)

// Authenticator defines the login business logic the handler drives
type Authenticator interface {
	Login(ctx context.Context, email, password, clientIP, userAgent string) (*models.User, error)
	Logout(ctx context.Context, identity, clientIP, userAgent string)
}

// SessionResetter regenerates or ends the caller's session
type SessionResetter interface {
	Reset(ctx context.Context, w http.ResponseWriter, current *models.Session, identity *string, role string) (*models.Session, error)
}

// TokenIssuer hands out the session's anti-forgery token
type TokenIssuer interface {
	IssueToken(ctx context.Context, session *models.Session) (string, error)
}

// AuthHandler handles sign-in, sign-out and CSRF token issuance
type AuthHandler struct {
	service  Authenticator
	sessions SessionResetter
	csrf     TokenIssuer
	ips      *pkghttp.IPResolver
	timing   *auth.TimingDelay
	logger   *slog.Logger
}

func NewAuthHandler(service Authenticator, sessions SessionResetter, csrf TokenIssuer, ips *pkghttp.IPResolver, timing *auth.TimingDelay, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		csrf:     csrf,
		ips:      ips,
		timing:   timing,
		logger:   logger,
	}
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// UserResponse is the public view of the signed-in operator
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// LoginResponse carries the operator and the token for the new session
type LoginResponse struct {
	User      UserResponse `json:"user"`
	CSRFToken string       `json:"csrf_token"`
}

// CSRFTokenResponse is returned by GET /csrf-token
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// Login handles operator sign-in
// @Summary Operator login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	clientIP := h.ips.ClientIP(r)
	user, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP, pkghttp.UserAgent(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTooManyAttempts), errors.Is(err, models.ErrStoreUnavailable):
			h.timing.WaitFrom(r.Context(), start)
			pkghttp.WriteTooManyAttempts(w)
		case errors.Is(err, models.ErrInvalidCredentials):
			h.timing.WaitFrom(r.Context(), start)
			pkghttp.WriteUnauthorized(w, "Invalid email or password")
		default:
			h.logger.ErrorContext(r.Context(), "login failed", slog.Any("error", err))
			pkghttp.WriteInternalError(w, "An unexpected error occurred")
		}
		return
	}

	identity := user.Email
	session, err := h.sessions.Reset(r.Context(), w, auth.SessionFromContext(r.Context()), &identity, user.Role)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to regenerate session after login", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	token, err := h.csrf.IssueToken(r.Context(), session)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue CSRF token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	h.logger.InfoContext(r.Context(), "operator signed in",
		slog.String("identity", pkglogger.MaskIdentity(identity)),
		slog.String("client_ip", clientIP),
	)

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		User: UserResponse{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
			Role:  user.Role,
		},
		CSRFToken: token,
	})
}

// Logout ends the operator's authenticated session. The caller continues
// on a fresh anonymous session with no token.
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	current := auth.SessionFromContext(r.Context())

	h.service.Logout(r.Context(), current.IdentityOrEmpty(), h.ips.ClientIP(r), pkghttp.UserAgent(r))

	if _, err := h.sessions.Reset(r.Context(), w, current, nil, ""); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to regenerate session on logout", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

// CSRFToken returns the token bound to the caller's session, issuing one on
// first use.
// @Router /csrf-token [get]
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.IssueToken(r.Context(), auth.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue CSRF token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{CSRFToken: token})
}
