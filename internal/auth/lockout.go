package auth

import (
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 30 * time.Minute
)

// LockState is the lockout state of an account at a point in time
type LockState int

const (
	Unlocked LockState = iota
	Locked
)

func (s LockState) String() string {
	if s == Locked {
		return "locked"
	}
	return "unlocked"
}

// LockoutPolicy decides when repeated failures lock an account.
// Locks are released lazily: nothing runs when LockUntil passes, the next
// check simply observes it.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 5 failures / 30 minutes policy
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		Threshold: DefaultLockoutThreshold,
		Duration:  DefaultLockoutDuration,
	}
}

// IsLocked reports whether LockUntil is set and still in the future
func IsLocked(account *models.Account, now time.Time) bool {
	return account != nil && account.LockUntil != nil && now.Before(*account.LockUntil)
}

// State returns the lock state of account at now
func (p LockoutPolicy) State(account *models.Account, now time.Time) LockState {
	if IsLocked(account, now) {
		return Locked
	}
	return Unlocked
}

// Failure builds the outcome recorded for a wrong password
func (p LockoutPolicy) Failure(now time.Time, ip string) models.LoginOutcome {
	return models.LoginOutcome{
		Success:      false,
		At:           now,
		IPAddress:    ip,
		Threshold:    p.Threshold,
		LockDuration: p.Duration,
	}
}

// Success builds the outcome recorded for a completed authentication
func (p LockoutPolicy) Success(now time.Time, ip string) models.LoginOutcome {
	return models.LoginOutcome{
		Success:   true,
		At:        now,
		IPAddress: ip,
	}
}

// ApplyOutcome mutates account according to outcome. Stores that cannot
// express the update natively call this while holding their own lock.
func ApplyOutcome(account *models.Account, outcome models.LoginOutcome) {
	now := outcome.At

	if outcome.Success {
		account.FailedLoginAttempts = 0
		account.LockUntil = nil
		t := now
		account.LastLogin = &t
		account.LastLoginIP = outcome.IPAddress
		account.UpdatedAt = now
		return
	}

	// A lock that has already run out starts a fresh counting window
	if account.LockUntil != nil && !now.Before(*account.LockUntil) {
		account.FailedLoginAttempts = 1
		account.LockUntil = nil
	} else {
		account.FailedLoginAttempts++
	}

	if outcome.Threshold > 0 && account.FailedLoginAttempts >= outcome.Threshold && account.LockUntil == nil {
		until := now.Add(outcome.LockDuration)
		account.LockUntil = &until
	}
	account.UpdatedAt = now
}
