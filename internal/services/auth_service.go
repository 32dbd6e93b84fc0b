package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/alumnigate/internal/models"
	pkgauth "github.com/BradenHooton/alumnigate/pkg/auth"
	pkglogger "github.com/BradenHooton/alumnigate/pkg/logger"
)

// UserRepository defines the user persistence the identity provider needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
}

// AuthService gates credential checks behind the login throttle
type AuthService struct {
	repo     UserRepository
	throttle *LoginThrottle
	events   EventRecorder
	logger   *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(repo UserRepository, throttle *LoginThrottle, events EventRecorder, logger *slog.Logger) *AuthService {
	return &AuthService{
		repo:     repo,
		throttle: throttle,
		events:   events,
		logger:   logger,
	}
}

// NormalizeIdentity is the throttle and lookup key for an email
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks the throttle, verifies credentials and records the attempt.
// Unknown identities, wrong passwords and disabled accounts all return
// models.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP, userAgent string) (*models.User, error) {
	identity := NormalizeIdentity(email)
	if identity == "" {
		pkgauth.CompareDummy(password)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.throttle.CheckAllowed(ctx, identity, clientIP, userAgent); err != nil {
		return nil, err
	}

	user, err := s.authenticate(ctx, identity, password)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			s.throttle.RecordAttempt(ctx, identity, false, clientIP, userAgent)
			s.logger.InfoContext(ctx, "login failed: invalid credentials",
				slog.String("identity", pkglogger.MaskIdentity(identity)))
		}
		return nil, err
	}

	s.throttle.RecordAttempt(ctx, identity, true, clientIP, userAgent)
	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return user, nil
}

func (s *AuthService) authenticate(ctx context.Context, identity, password string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.CompareDummy(password)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrInvalidCredentials
	}

	if user.Status != models.UserStatusActive {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}

// Logout records the end of an authenticated session
func (s *AuthService) Logout(ctx context.Context, identity, clientIP, userAgent string) {
	if identity == "" {
		return
	}
	recordOrLog(ctx, s.events, s.logger, models.SecurityEventInput{
		Identity:    identity,
		EventType:   models.EventLogout,
		Description: "User logged out",
		IPAddress:   clientIP,
		UserAgent:   userAgent,
	})
}

// CreateUser provisions a portal operator
func (s *AuthService) CreateUser(ctx context.Context, email, password, name, role string) (*models.User, error) {
	identity := NormalizeIdentity(email)
	if identity == "" || strings.TrimSpace(name) == "" {
		return nil, models.ErrBadRequest
	}
	if role != models.RoleAdmin && role != models.RoleStaff {
		return nil, fmt.Errorf("unknown role %q: %w", role, models.ErrBadRequest)
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        identity,
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         role,
		Status:       models.UserStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user created",
		slog.String("user_id", user.ID),
		slog.String("role", role),
	)
	return user, nil
}
