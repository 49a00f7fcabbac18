package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
)

// AccountRepository persists Account records. Every mutation that touches
// counters or challenges is a single atomic operation in each implementation;
// callers never read-modify-write.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// RecordLoginOutcome applies a success or failure to the attempt counter
	// and lock, returning the account after the update
	RecordLoginOutcome(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error)

	UpdatePassword(ctx context.Context, id string, change models.PasswordChange) error

	// SetChallenge replaces any pending challenge of the same purpose
	SetChallenge(ctx context.Context, id string, challenge models.OneTimeChallenge) error
	// RecordChallengeFailure increments the attempt count of the challenge
	// identified by challengeID and clears it once maxAttempts is reached.
	// It returns the attempt count after the increment.
	RecordChallengeFailure(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string, maxAttempts int) (int, error)
	// ConsumeChallenge clears the challenge only if its id still matches.
	// It returns false when another caller consumed or replaced it first.
	ConsumeChallenge(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string) (bool, error)
	ClearChallenges(ctx context.Context, id string, purposes ...models.ChallengePurpose) error

	UpdateMFA(ctx context.Context, id string, settings models.MFASettings, at time.Time) error
	UpdateStanding(ctx context.Context, id string, update models.StandingUpdate) (*models.Account, error)
}

// SessionStore maps opaque session tokens to accounts with a TTL
type SessionStore interface {
	Save(ctx context.Context, token string, session models.Session, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
}
