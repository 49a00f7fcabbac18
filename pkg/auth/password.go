package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	SecretLength   = 32 // 256 bits
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	// Generic on purpose; the rule list is for logs only
	return "invalid password"
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password1!":   true,
	"password123!": true,
	"passw0rd!":    true,
	"p@ssw0rd":     true,
	"p@ssword1":    true,
	"qwerty123!":   true,
	"welcome1!":    true,
	"letmein1!":    true,
	"admin123!":    true,
	"gamer123!":    true,
	"iloveyou1!":   true,
}

// HashPassword hashes a plaintext password with bcrypt
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

// ComparePassword returns nil when password matches hashedPassword
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// PasswordMatches reports a genuine match only; malformed hashes and other
// comparison errors are never treated as a match
func PasswordMatches(hashedPassword, password string) bool {
	if hashedPassword == "" {
		return false
	}
	return ComparePassword(hashedPassword, password) == nil
}

// dummyHash is compared against when no account exists so that unknown
// emails cost the same bcrypt work as wrong passwords
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("arcadia-timing-equalizer"), BcryptCost)

// CompareDummy burns one bcrypt comparison
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// GenerateSecret returns a hex-encoded 256-bit value from crypto/rand
func GenerateSecret() (string, error) {
	bytes := make([]byte, SecretLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// ValidatePassword enforces strong password requirements
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	if len(password) < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	classes := passwordClasses(password)
	if !classes.upper {
		errors = append(errors, "must contain at least one uppercase letter")
	}
	if !classes.lower {
		errors = append(errors, "must contain at least one lowercase letter")
	}
	if !classes.digit {
		errors = append(errors, "must contain at least one digit")
	}
	if !classes.special {
		errors = append(errors, "must contain at least one special character")
	}

	// Check against common passwords (case-insensitive)
	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, "is too common, please choose a more unique password")
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}

type charClasses struct {
	upper, lower, digit, special bool
}

// passwordClasses treats anything that is not a letter or digit as special
func passwordClasses(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case !unicode.IsLetter(r):
			c.special = true
		}
	}
	return c
}
