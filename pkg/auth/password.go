package auth

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 12
	MaxPasswordLen = 72 // bcrypt ignores bytes past 72
)

// PasswordValidationError keeps the failed rules for operator tooling. Its
// Error string stays generic.
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	return "invalid password"
}

var commonPasswords = map[string]bool{
	"password1234":  true,
	"alumni123456":  true,
	"welcome12345":  true,
	"qwerty123456":  true,
	"administrator": true,
	"letmein12345":  true,
}

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// CompareDummy spends the same bcrypt work as a real comparison. Call it when
// the identity is unknown so the response time does not reveal that.
func CompareDummy(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("alumnigate-dummy-password"), BcryptCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// ValidatePassword enforces the operator password policy
func ValidatePassword(password string) error {
	var failed []string

	if len(password) < MinPasswordLen {
		failed = append(failed, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		failed = append(failed, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower {
		failed = append(failed, "must mix upper and lower case letters")
	}
	if !hasDigit {
		failed = append(failed, "must contain a digit")
	}
	if !hasSpecial {
		failed = append(failed, "must contain a special character")
	}
	if commonPasswords[strings.ToLower(password)] {
		failed = append(failed, "is too common")
	}

	if len(failed) > 0 {
		return &PasswordValidationError{Errors: failed}
	}
	return nil
}
