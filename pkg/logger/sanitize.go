package logger

import (
	"log/slog"
	"strings"
)

// MaskIdentity masks an identity for logging. Emails keep the first
// character of the local part and the TLD ("a****@*******.edu"); other
// identifiers keep their first character only.
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}

	local, domain, isEmail := strings.Cut(identity, "@")
	if !isEmail {
		return maskTail(identity)
	}
	if local == "" || domain == "" {
		return "[invalid-email]"
	}

	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		labels[i] = strings.Repeat("*", len(labels[i]))
	}

	return maskTail(local) + "@" + strings.Join(labels, ".")
}

func maskTail(s string) string {
	if len(s) <= 1 {
		return s
	}
	return s[:1] + strings.Repeat("*", len(s)-1)
}

// RedactedAttr hides sensitive values in production logs
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveQueryParams = []string{
	"password", "token", "secret", "csrf", "session", "email", "auth",
}

// HasSensitiveParams reports whether a raw query string should be redacted
// before logging.
func HasSensitiveParams(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveQueryParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
