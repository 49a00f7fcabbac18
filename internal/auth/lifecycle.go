package auth

import (
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	pkgauth "github.com/BradenHooton/arcadia/pkg/auth"
)

const (
	DefaultPasswordMaxAge      = 90 * 24 * time.Hour
	DefaultPasswordHistorySize = 5
)

// PasswordPolicy computes password expiry and guards against reuse
type PasswordPolicy struct {
	MaxAge      time.Duration
	HistorySize int
}

// DefaultPasswordPolicy returns the 90 day / last 5 policy
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MaxAge:      DefaultPasswordMaxAge,
		HistorySize: DefaultPasswordHistorySize,
	}
}

// ComputeExpiry returns the expiry for a password set at now
func (p PasswordPolicy) ComputeExpiry(now time.Time) time.Time {
	return now.Add(p.MaxAge)
}

// IsExpired reports whether the account's password expired before now.
// Accounts without an expiry are never expired.
func (p PasswordPolicy) IsExpired(account *models.Account, now time.Time) bool {
	if account == nil || account.PasswordExpiresAt == nil {
		return false
	}
	return now.After(*account.PasswordExpiresAt)
}

// CheckReuse reports whether candidate matches one of the most recent
// HistorySize hashes. Entries beyond that are ignored even if present.
func (p PasswordPolicy) CheckReuse(candidate string, history []models.PasswordHistoryEntry) bool {
	limit := p.HistorySize
	if limit > len(history) {
		limit = len(history)
	}
	for _, entry := range history[:limit] {
		if pkgauth.PasswordMatches(entry.Hash, candidate) {
			return true
		}
	}
	return false
}

// ApplyChange returns the password state after accepting newHash at now
func (p PasswordPolicy) ApplyChange(history []models.PasswordHistoryEntry, newHash string, now time.Time) models.PasswordChange {
	size := p.HistorySize
	if size < 1 {
		size = 1
	}

	next := make([]models.PasswordHistoryEntry, 0, size)
	next = append(next, models.PasswordHistoryEntry{Hash: newHash, ChangedAt: now})
	for _, entry := range history {
		if len(next) == size {
			break
		}
		next = append(next, entry)
	}

	return models.PasswordChange{
		Hash:      newHash,
		History:   next,
		ChangedAt: now,
		ExpiresAt: p.ComputeExpiry(now),
	}
}
