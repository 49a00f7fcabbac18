package repositories

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var contractTime = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func seedAccount(t *testing.T, repo AccountRepository, suffix string) *models.Account {
	t.Helper()
	expires := contractTime.Add(90 * 24 * time.Hour)
	changed := contractTime
	created, err := repo.Create(context.Background(), &models.Account{
		Username:           "player_" + suffix,
		Email:              fmt.Sprintf("Player.%s@Forum.gg", suffix),
		PasswordHash:       "$2a$04$placeholderplaceholderplaceholderplaceholderplacehold",
		Role:               models.RoleUser,
		PasswordHistory:    []models.PasswordHistoryEntry{{Hash: "h0", ChangedAt: contractTime}},
		PasswordExpiresAt:  &expires,
		LastPasswordChange: &changed,
		CreatedAt:          contractTime,
		UpdatedAt:          contractTime,
	})
	require.NoError(t, err)
	return created
}

// runAccountRepositoryContract exercises behaviour every store must share
func runAccountRepositoryContract(t *testing.T, newRepo func(t *testing.T) AccountRepository) {
	ctx := context.Background()
	policy := auth.LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}

	t.Run("create and lookup", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "lookup")

		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "player.lookup@forum.gg", a.Email)

		byEmail, err := repo.GetByEmail(ctx, "PLAYER.LOOKUP@forum.gg")
		require.NoError(t, err)
		assert.Equal(t, a.ID, byEmail.ID)

		byName, err := repo.GetByUsername(ctx, "PLAYER_lookup")
		require.NoError(t, err)
		assert.Equal(t, a.ID, byName.ID)

		_, err = repo.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("duplicate email or username", func(t *testing.T) {
		repo := newRepo(t)
		seedAccount(t, repo, "dup")

		_, err := repo.Create(ctx, &models.Account{Username: "other", Email: "player.dup@forum.gg", Role: models.RoleUser, CreatedAt: contractTime, UpdatedAt: contractTime})
		assert.ErrorIs(t, err, models.ErrConflict)

		_, err = repo.Create(ctx, &models.Account{Username: "Player_Dup", Email: "x@forum.gg", Role: models.RoleUser, CreatedAt: contractTime, UpdatedAt: contractTime})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("failures lock at threshold and success resets", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "lock")

		var got *models.Account
		var err error
		for i := 0; i < 5; i++ {
			got, err = repo.RecordLoginOutcome(ctx, a.ID, policy.Failure(contractTime, "198.51.100.2"))
			require.NoError(t, err)
		}
		assert.Equal(t, 5, got.FailedLoginAttempts)
		require.NotNil(t, got.LockUntil)
		assert.True(t, got.LockUntil.Equal(contractTime.Add(30*time.Minute)))

		got, err = repo.RecordLoginOutcome(ctx, a.ID, policy.Success(contractTime.Add(time.Hour), "203.0.113.5"))
		require.NoError(t, err)
		assert.Equal(t, 0, got.FailedLoginAttempts)
		assert.Nil(t, got.LockUntil)
		assert.Equal(t, "203.0.113.5", got.LastLoginIP)
		require.NotNil(t, got.LastLogin)
	})

	t.Run("stale lock restarts window", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "stale")
		for i := 0; i < 5; i++ {
			_, err := repo.RecordLoginOutcome(ctx, a.ID, policy.Failure(contractTime, ""))
			require.NoError(t, err)
		}

		got, err := repo.RecordLoginOutcome(ctx, a.ID, policy.Failure(contractTime.Add(31*time.Minute), ""))
		require.NoError(t, err)
		assert.Equal(t, 1, got.FailedLoginAttempts)
		assert.Nil(t, got.LockUntil)
	})

	t.Run("concurrent failures are not lost", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "race")
		loose := auth.LockoutPolicy{Threshold: 1000, Duration: time.Minute}

		const n = 100
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordLoginOutcome(ctx, a.ID, loose.Failure(contractTime, ""))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.FailedLoginAttempts)
	})

	t.Run("concurrent failures lock exactly once", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "racelock")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = repo.RecordLoginOutcome(ctx, a.ID, policy.Failure(contractTime, ""))
			}()
		}
		wg.Wait()

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.FailedLoginAttempts)
		require.NotNil(t, got.LockUntil)
		assert.True(t, got.LockUntil.Equal(contractTime.Add(30*time.Minute)))
	})

	t.Run("challenge consume is single use", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "otp")
		ch := auth.NewChallenge(models.PurposeLoginMFA, "123456", 10*time.Minute, contractTime)
		require.NoError(t, repo.SetChallenge(ctx, a.ID, ch))

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		stored, ok := got.Challenge(models.PurposeLoginMFA)
		require.True(t, ok)
		assert.Equal(t, ch.ID, stored.ID)
		assert.Equal(t, ch.CodeHash, stored.CodeHash)

		consumed, err := repo.ConsumeChallenge(ctx, a.ID, models.PurposeLoginMFA, ch.ID)
		require.NoError(t, err)
		assert.True(t, consumed)

		consumed, err = repo.ConsumeChallenge(ctx, a.ID, models.PurposeLoginMFA, ch.ID)
		require.NoError(t, err)
		assert.False(t, consumed)
	})

	t.Run("challenge cleared after max failures", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "otpfail")
		ch := auth.NewChallenge(models.PurposePasswordReset, "123456", 30*time.Minute, contractTime)
		require.NoError(t, repo.SetChallenge(ctx, a.ID, ch))

		for i := 1; i <= 2; i++ {
			n, err := repo.RecordChallengeFailure(ctx, a.ID, models.PurposePasswordReset, ch.ID, 3)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
		n, err := repo.RecordChallengeFailure(ctx, a.ID, models.PurposePasswordReset, ch.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		_, ok := got.Challenge(models.PurposePasswordReset)
		assert.False(t, ok)

		_, err = repo.RecordChallengeFailure(ctx, a.ID, models.PurposePasswordReset, ch.ID, 3)
		assert.ErrorIs(t, err, models.ErrChallengeExpired)
	})

	t.Run("replaced challenge cannot be consumed by old id", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "replace")
		first := auth.NewChallenge(models.PurposeLoginMFA, "111111", 10*time.Minute, contractTime)
		second := auth.NewChallenge(models.PurposeLoginMFA, "222222", 10*time.Minute, contractTime)
		require.NoError(t, repo.SetChallenge(ctx, a.ID, first))
		require.NoError(t, repo.SetChallenge(ctx, a.ID, second))

		consumed, err := repo.ConsumeChallenge(ctx, a.ID, models.PurposeLoginMFA, first.ID)
		require.NoError(t, err)
		assert.False(t, consumed)

		require.NoError(t, repo.ClearChallenges(ctx, a.ID, models.PurposeLoginMFA))
		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Challenges)
	})

	t.Run("password update resets lockout and history", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "pw")
		for i := 0; i < 5; i++ {
			_, err := repo.RecordLoginOutcome(ctx, a.ID, policy.Failure(contractTime, ""))
			require.NoError(t, err)
		}

		change := auth.DefaultPasswordPolicy().ApplyChange(a.PasswordHistory, "h1", contractTime.Add(time.Hour))
		require.NoError(t, repo.UpdatePassword(ctx, a.ID, change))

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "h1", got.PasswordHash)
		require.Len(t, got.PasswordHistory, 2)
		assert.Equal(t, "h1", got.PasswordHistory[0].Hash)
		assert.Equal(t, 0, got.FailedLoginAttempts)
		assert.Nil(t, got.LockUntil)
		require.NotNil(t, got.LastPasswordChange)
		assert.True(t, got.LastPasswordChange.Equal(contractTime.Add(time.Hour)))

		assert.ErrorIs(t, repo.UpdatePassword(ctx, "missing", change), models.ErrNotFound)
	})

	t.Run("mfa settings round trip", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "mfa")

		require.NoError(t, repo.UpdateMFA(ctx, a.ID, models.MFASettings{
			Enabled:             true,
			Method:              models.MFAMethodTOTP,
			TOTPSecretEncrypted: []byte{1, 2, 3},
			TOTPSecretNonce:     []byte{4, 5},
			BackupCodeHashes:    []string{"b1", "b2"},
		}, contractTime))

		got, err := repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.MFAEnabled)
		assert.Equal(t, models.MFAMethodTOTP, got.MFAMethod)
		assert.Equal(t, []byte{1, 2, 3}, got.TOTPSecretEncrypted)
		assert.Equal(t, []string{"b1", "b2"}, got.BackupCodeHashes)

		require.NoError(t, repo.UpdateMFA(ctx, a.ID, models.MFASettings{}, contractTime))
		got, err = repo.GetByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.MFAEnabled)
		assert.Empty(t, got.TOTPSecretEncrypted)
		assert.Empty(t, got.BackupCodeHashes)
	})

	t.Run("standing updates", func(t *testing.T) {
		repo := newRepo(t)
		a := seedAccount(t, repo, "standing")
		banned := true
		role := models.RoleModerator

		got, err := repo.UpdateStanding(ctx, a.ID, models.StandingUpdate{
			IsBanned: &banned, BanReason: "cheating", BannedBy: "admin-1", At: contractTime,
		})
		require.NoError(t, err)
		assert.True(t, got.IsBanned)
		assert.Equal(t, "cheating", got.BanReason)
		require.NotNil(t, got.BannedAt)
		assert.Equal(t, models.RoleUser, got.Role)

		unbanned := false
		got, err = repo.UpdateStanding(ctx, a.ID, models.StandingUpdate{IsBanned: &unbanned, Role: &role, At: contractTime})
		require.NoError(t, err)
		assert.False(t, got.IsBanned)
		assert.Empty(t, got.BanReason)
		assert.Nil(t, got.BannedAt)
		assert.Equal(t, models.RoleModerator, got.Role)

		_, err = repo.UpdateStanding(ctx, "missing", models.StandingUpdate{At: contractTime})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
