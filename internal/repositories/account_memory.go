package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/google/uuid"
)

// MemoryAccountRepository is an in-process AccountRepository used for
// development and tests. One mutex serialises every mutation.
type MemoryAccountRepository struct {
	mu         sync.Mutex
	byID       map[string]*models.Account
	byEmail    map[string]string
	byUsername map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:       make(map[string]*models.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (r *MemoryAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(account.Email)
	username := strings.ToLower(account.Username)
	if _, ok := r.byEmail[email]; ok {
		return nil, models.ErrConflict
	}
	if _, ok := r.byUsername[username]; ok {
		return nil, models.ErrConflict
	}

	stored := account.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if _, ok := r.byID[stored.ID]; ok {
		return nil, models.ErrConflict
	}
	stored.Email = email

	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	r.byUsername[username] = stored.ID
	return stored.Clone(), nil
}

func (r *MemoryAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(id)
}

func (r *MemoryAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(r.byEmail[strings.ToLower(email)])
}

func (r *MemoryAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(r.byUsername[strings.ToLower(username)])
}

func (r *MemoryAccountRepository) RecordLoginOutcome(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error) {
	return r.mutate(id, func(a *models.Account) error {
		auth.ApplyOutcome(a, outcome)
		return nil
	})
}

func (r *MemoryAccountRepository) UpdatePassword(ctx context.Context, id string, change models.PasswordChange) error {
	_, err := r.mutate(id, func(a *models.Account) error {
		a.PasswordHash = change.Hash
		a.PasswordHistory = append([]models.PasswordHistoryEntry(nil), change.History...)
		changedAt, expiresAt := change.ChangedAt, change.ExpiresAt
		a.LastPasswordChange = &changedAt
		a.PasswordExpiresAt = &expiresAt
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
		a.UpdatedAt = change.ChangedAt
		return nil
	})
	return err
}

func (r *MemoryAccountRepository) SetChallenge(ctx context.Context, id string, challenge models.OneTimeChallenge) error {
	_, err := r.mutate(id, func(a *models.Account) error {
		if a.Challenges == nil {
			a.Challenges = make(map[models.ChallengePurpose]models.OneTimeChallenge)
		}
		a.Challenges[challenge.Purpose] = challenge
		return nil
	})
	return err
}

func (r *MemoryAccountRepository) RecordChallengeFailure(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string, maxAttempts int) (int, error) {
	attempts := 0
	_, err := r.mutate(id, func(a *models.Account) error {
		ch, ok := a.Challenge(purpose)
		if !ok || ch.ID != challengeID {
			return models.ErrChallengeExpired
		}
		ch.Attempts++
		attempts = ch.Attempts
		if maxAttempts > 0 && ch.Attempts >= maxAttempts {
			delete(a.Challenges, purpose)
		} else {
			a.Challenges[purpose] = ch
		}
		return nil
	})
	return attempts, err
}

func (r *MemoryAccountRepository) ConsumeChallenge(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string) (bool, error) {
	consumed := false
	_, err := r.mutate(id, func(a *models.Account) error {
		ch, ok := a.Challenge(purpose)
		if ok && ch.ID == challengeID {
			delete(a.Challenges, purpose)
			consumed = true
		}
		return nil
	})
	return consumed, err
}

func (r *MemoryAccountRepository) ClearChallenges(ctx context.Context, id string, purposes ...models.ChallengePurpose) error {
	_, err := r.mutate(id, func(a *models.Account) error {
		for _, p := range purposes {
			delete(a.Challenges, p)
		}
		return nil
	})
	return err
}

func (r *MemoryAccountRepository) UpdateMFA(ctx context.Context, id string, settings models.MFASettings, at time.Time) error {
	_, err := r.mutate(id, func(a *models.Account) error {
		a.MFAEnabled = settings.Enabled
		a.MFAMethod = settings.Method
		a.TOTPSecretEncrypted = append([]byte(nil), settings.TOTPSecretEncrypted...)
		a.TOTPSecretNonce = append([]byte(nil), settings.TOTPSecretNonce...)
		a.BackupCodeHashes = append([]string(nil), settings.BackupCodeHashes...)
		a.UpdatedAt = at
		return nil
	})
	return err
}

func (r *MemoryAccountRepository) UpdateStanding(ctx context.Context, id string, update models.StandingUpdate) (*models.Account, error) {
	return r.mutate(id, func(a *models.Account) error {
		applyStanding(a, update)
		return nil
	})
}

// applyStanding mirrors the administrative update performed by the database stores
func applyStanding(a *models.Account, update models.StandingUpdate) {
	if update.Role != nil {
		a.Role = *update.Role
	}
	if update.IsBanned != nil {
		a.IsBanned = *update.IsBanned
		if *update.IsBanned {
			at := update.At
			a.BanReason = update.BanReason
			a.BannedBy = update.BannedBy
			a.BannedAt = &at
		} else {
			a.BanReason = ""
			a.BannedBy = ""
			a.BannedAt = nil
		}
	}
	if update.ClearLockout {
		a.FailedLoginAttempts = 0
		a.LockUntil = nil
	}
	a.UpdatedAt = update.At
}

func (r *MemoryAccountRepository) snapshot(id string) (*models.Account, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryAccountRepository) mutate(id string, fn func(*models.Account) error) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}
