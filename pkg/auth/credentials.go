package auth

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const (
	MinUsernameLen = 3
	MaxUsernameLen = 30
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator instance with the "username" tag registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return IsValidUsername(fl.Field().String())
		})
	})
	return validate
}

// IsValidUsername reports whether s is 3-30 characters of [a-zA-Z0-9_]
func IsValidUsername(s string) bool {
	if len(s) < MinUsernameLen || len(s) > MaxUsernameLen {
		return false
	}
	return usernamePattern.MatchString(s)
}

// NormalizeEmail trims and lower-cases an email for storage and lookup
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail reports whether s has the local@domain.tld shape
func IsValidEmail(s string) bool {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	// Require a dotted domain; the validator alone accepts bare hosts
	domain := s[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return Validator().Var(s, "email") == nil
}

// IsStrongPassword reports whether password has at least 8 characters and
// contains a lowercase letter, an uppercase letter, a digit and a
// non-alphanumeric character
func IsStrongPassword(password string) bool {
	if len([]rune(password)) < MinPasswordLen {
		return false
	}
	c := passwordClasses(password)
	return c.lower && c.upper && c.digit && c.special
}
