package middleware_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/BradenHooton/alumnigate/internal/auth"
	"github.com/BradenHooton/alumnigate/internal/models"
	"github.com/BradenHooton/alumnigate/internal/services"
	pkghttp "github.com/BradenHooton/alumnigate/pkg/http"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func noDelay() *auth.TimingDelay {
	return auth.NewTimingDelay(auth.TimingConfig{})
}

func mustResolver(trusted ...string) *pkghttp.IPResolver {
	r, err := pkghttp.NewIPResolver(trusted)
	if err != nil {
		panic(err)
	}
	return r
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

// fakeVerifier accepts exactly one token and remembers what it was shown
type fakeVerifier struct {
	want      string
	submitted []string
	clientIPs []string
}

func (v *fakeVerifier) VerifyToken(ctx context.Context, session *models.Session, submitted, clientIP, userAgent string) error {
	v.submitted = append(v.submitted, submitted)
	v.clientIPs = append(v.clientIPs, clientIP)
	if session == nil || submitted == "" || submitted != v.want {
		return models.ErrCSRFMismatch
	}
	return nil
}

// scriptedLimiter returns queued results in order
type scriptedLimiter struct {
	mu      sync.Mutex
	keys    []string
	results []error
	count   int
	config  services.RateLimiterConfig
}

func (l *scriptedLimiter) CheckAndConsume(ctx context.Context, key, clientIP, userAgent string) (*models.RateLimitWindow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	var err error
	if len(l.results) > 0 {
		err, l.results = l.results[0], l.results[1:]
	}
	if err != nil {
		return nil, err
	}
	l.count++
	return &models.RateLimitWindow{Key: key, RequestCount: l.count}, nil
}

func (l *scriptedLimiter) Config() services.RateLimiterConfig {
	return l.config
}
