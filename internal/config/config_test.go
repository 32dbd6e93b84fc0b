package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_SecurityDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	durations := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ThrottleWindow", cfg.Security.Throttle.Window, 15 * time.Minute},
		{"RateLimitWindow", cfg.Security.RateLimit.Window, 60 * time.Second},
		{"ThreatLookback", cfg.Security.Threat.Lookback, time.Hour},
		{"MonitorInterval", cfg.Security.Threat.MonitorInterval, 5 * time.Minute},
		{"ReadTimeout", cfg.Server.ReadTimeout, 15 * time.Second},
		{"WriteTimeout", cfg.Server.WriteTimeout, 15 * time.Second},
		{"IdleTimeout", cfg.Server.IdleTimeout, 60 * time.Second},
	}
	for _, tt := range durations {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Security.Throttle.MaxFailedAttempts != 5 {
		t.Errorf("MaxFailedAttempts: got %d, want 5", cfg.Security.Throttle.MaxFailedAttempts)
	}
	if cfg.Security.RateLimit.MaxRequests != 100 {
		t.Errorf("MaxRequests: got %d, want 100", cfg.Security.RateLimit.MaxRequests)
	}
	if cfg.Security.Threat.SuspiciousIPThreshold != 10 {
		t.Errorf("SuspiciousIPThreshold: got %d, want 10", cfg.Security.Threat.SuspiciousIPThreshold)
	}
	if cfg.Security.RateLimit.Backend != "postgres" {
		t.Errorf("Backend: got %q, want postgres", cfg.Security.RateLimit.Backend)
	}
	if cfg.Email.Enabled || cfg.Kafka.Enabled {
		t.Error("expected email and kafka to be disabled by default")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("LOGIN_MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1 ,")
	t.Setenv("ALERT_EMAIL_ENABLED", "true")
	t.Setenv("ALERT_EMAIL_FROM", "security@alumni.example.edu")
	t.Setenv("ALERT_ADMIN_RECIPIENTS", "ops@alumni.example.edu,dean@alumni.example.edu")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.Throttle.MaxFailedAttempts != 3 {
		t.Errorf("MaxFailedAttempts: got %d, want 3", cfg.Security.Throttle.MaxFailedAttempts)
	}
	if cfg.Security.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimitWindow: got %v, want 30s", cfg.Security.RateLimit.Window)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.168.1.1" {
		t.Errorf("TrustedProxies: got %v", cfg.Server.TrustedProxies)
	}
	if len(cfg.Email.AdminRecipients) != 2 {
		t.Errorf("AdminRecipients: got %v", cfg.Email.AdminRecipients)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("LOGIN_THROTTLE_WINDOW", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Security.Throttle.Window != 15*time.Minute {
		t.Errorf("expected default window, got %v", cfg.Security.Throttle.Window)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing db password",
			env:     map[string]string{},
			wantErr: "DB_PASSWORD",
		},
		{
			name:    "zero threshold",
			env:     map[string]string{"DB_PASSWORD": "x", "LOGIN_MAX_FAILED_ATTEMPTS": "0"},
			wantErr: "LOGIN_MAX_FAILED_ATTEMPTS",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"DB_PASSWORD": "x", "RATE_LIMIT_BACKEND": "memcached"},
			wantErr: "RATE_LIMIT_BACKEND",
		},
		{
			name:    "email without recipients",
			env:     map[string]string{"DB_PASSWORD": "x", "ALERT_EMAIL_ENABLED": "true", "ALERT_EMAIL_FROM": "a@b.c"},
			wantErr: "ALERT_ADMIN_RECIPIENTS",
		},
		{
			name:    "kafka without brokers",
			env:     map[string]string{"DB_PASSWORD": "x", "KAFKA_ENABLED": "true"},
			wantErr: "KAFKA_BROKERS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_PASSWORD", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
