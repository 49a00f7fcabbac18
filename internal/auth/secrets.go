package auth

import (
	"time"

	pkgauth "github.com/BradenHooton/arcadia/pkg/auth"
)

// IssuedSecret is a random token together with its expiry
type IssuedSecret struct {
	Value     string
	ExpiresAt time.Time
}

// IssueOpaqueSessionToken returns a 256-bit session identifier valid for ttl
func IssueOpaqueSessionToken(now time.Time, ttl time.Duration) (IssuedSecret, error) {
	return issueSecret(now, ttl)
}

// IssueResetToken returns a 256-bit single-use password reset token valid for ttl
func IssueResetToken(now time.Time, ttl time.Duration) (IssuedSecret, error) {
	return issueSecret(now, ttl)
}

func issueSecret(now time.Time, ttl time.Duration) (IssuedSecret, error) {
	value, err := pkgauth.GenerateSecret()
	if err != nil {
		return IssuedSecret{}, err
	}
	return IssuedSecret{Value: value, ExpiresAt: now.Add(ttl)}, nil
}
