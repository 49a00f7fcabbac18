package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/google/uuid"
)

const (
	OTPDigits = 6

	DefaultLoginOTPExpiry = 10 * time.Minute
	DefaultResetOTPExpiry = 30 * time.Minute
	DefaultResetTokenTTL  = 1 * time.Hour
	DefaultMaxOTPAttempts = 5
)

var otpUpperBound = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random 6 digit code, leading zeros included
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpUpperBound)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", OTPDigits, n.Int64()), nil
}

// HashSecret returns the hex SHA-256 of a one-time secret for storage
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewChallenge builds a challenge for secret that expires ttl after now
func NewChallenge(purpose models.ChallengePurpose, secret string, ttl time.Duration, now time.Time) models.OneTimeChallenge {
	return models.OneTimeChallenge{
		ID:        uuid.New().String(),
		Purpose:   purpose,
		CodeHash:  HashSecret(secret),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// ChallengeResult is the outcome of checking a code against a challenge
type ChallengeResult int

const (
	ChallengeOK ChallengeResult = iota
	ChallengeMismatch
	ChallengeExpired
)

func (r ChallengeResult) String() string {
	switch r {
	case ChallengeOK:
		return "ok"
	case ChallengeMismatch:
		return "mismatch"
	default:
		return "expired"
	}
}

// VerifyChallenge requires both an exact code match and now before the
// expiry. Expiry is checked first so a stale challenge never reports a match.
func VerifyChallenge(ch models.OneTimeChallenge, purpose models.ChallengePurpose, code string, now time.Time) ChallengeResult {
	if ch.Purpose != purpose || ch.CodeHash == "" || ch.IsExpired(now) {
		return ChallengeExpired
	}
	if subtle.ConstantTimeCompare([]byte(ch.CodeHash), []byte(HashSecret(code))) != 1 {
		return ChallengeMismatch
	}
	return ChallengeOK
}
