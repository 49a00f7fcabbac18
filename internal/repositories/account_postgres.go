package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/arcadia/internal/database"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const accountColumns = `id, username, email, password_hash, role,
	failed_login_attempts, lock_until,
	mfa_enabled, mfa_method, totp_secret_encrypted, totp_secret_nonce, backup_code_hashes, challenges,
	password_history, password_expires_at, last_password_change,
	is_banned, ban_reason, banned_at, banned_by,
	last_login, last_login_ip, created_at, updated_at`

// PostgresAccountRepository keeps accounts in a single table; challenges and
// password history live in JSONB columns so every mutation is one UPDATE
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(db *database.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: db.Pool}
}

// storedChallenge is the JSONB form of a OneTimeChallenge, hash included
type storedChallenge struct {
	ID        string                  `json:"id"`
	Purpose   models.ChallengePurpose `json:"purpose"`
	CodeHash  string                  `json:"code_hash"`
	ExpiresAt time.Time               `json:"expires_at"`
	Attempts  int                     `json:"attempts"`
	CreatedAt time.Time               `json:"created_at"`
}

func toStored(ch models.OneTimeChallenge) storedChallenge {
	return storedChallenge(ch)
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var a models.Account
	var role, method string
	var challengesJSON, historyJSON []byte

	err := scanner.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role,
		&a.FailedLoginAttempts, &a.LockUntil,
		&a.MFAEnabled, &method, &a.TOTPSecretEncrypted, &a.TOTPSecretNonce, pq.Array(&a.BackupCodeHashes), &challengesJSON,
		&historyJSON, &a.PasswordExpiresAt, &a.LastPasswordChange,
		&a.IsBanned, &a.BanReason, &a.BannedAt, &a.BannedBy,
		&a.LastLogin, &a.LastLoginIP, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	a.Role = models.Role(role)
	a.MFAMethod = models.MFAMethod(method)

	var stored map[models.ChallengePurpose]storedChallenge
	if err := json.Unmarshal(challengesJSON, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode challenges: %w", err)
	}
	if len(stored) > 0 {
		a.Challenges = make(map[models.ChallengePurpose]models.OneTimeChallenge, len(stored))
		for p, ch := range stored {
			a.Challenges[p] = models.OneTimeChallenge(ch)
		}
	}

	if err := json.Unmarshal(historyJSON, &a.PasswordHistory); err != nil {
		return nil, fmt.Errorf("failed to decode password history: %w", err)
	}

	return &a, nil
}

func (r *PostgresAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	a := account.Clone()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Email = strings.ToLower(a.Email)

	history, err := json.Marshal(nonNilHistory(a.PasswordHistory))
	if err != nil {
		return nil, fmt.Errorf("failed to encode password history: %w", err)
	}

	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, mfa_enabled, mfa_method,
			backup_code_hashes, password_history, password_expires_at, last_password_change, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		a.ID, a.Username, a.Email, a.PasswordHash, string(a.Role), a.MFAEnabled, string(a.MFAMethod),
		pq.Array(nonNilStrings(a.BackupCodeHashes)), string(history), a.PasswordExpiresAt, a.LastPasswordChange,
		a.CreatedAt, a.UpdatedAt,
	))
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccountRow(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(username) = lower($1)`
	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

// RecordLoginOutcome relies on the row lock taken by UPDATE: concurrent
// failures serialise and each sees the previous increment.
func (r *PostgresAccountRepository) RecordLoginOutcome(ctx context.Context, id string, outcome models.LoginOutcome) (*models.Account, error) {
	if outcome.Success {
		query := `
			UPDATE accounts SET failed_login_attempts = 0, lock_until = NULL,
				last_login = $2, last_login_ip = $3, updated_at = $2
			WHERE id = $1
			RETURNING ` + accountColumns
		return scanAccountRow(r.pool.QueryRow(ctx, query, id, outcome.At, outcome.IPAddress))
	}

	query := `
		UPDATE accounts SET
			failed_login_attempts = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN 1
				ELSE failed_login_attempts + 1
			END,
			lock_until = CASE
				WHEN lock_until IS NOT NULL AND lock_until <= $2 THEN
					CASE WHEN $3::int > 0 AND 1 >= $3::int THEN $4::timestamptz ELSE NULL END
				WHEN lock_until IS NOT NULL THEN lock_until
				WHEN $3::int > 0 AND failed_login_attempts + 1 >= $3::int THEN $4::timestamptz
				ELSE NULL
			END,
			updated_at = $2
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		id, outcome.At, outcome.Threshold, outcome.At.Add(outcome.LockDuration),
	))
}

func (r *PostgresAccountRepository) UpdatePassword(ctx context.Context, id string, change models.PasswordChange) error {
	history, err := json.Marshal(nonNilHistory(change.History))
	if err != nil {
		return fmt.Errorf("failed to encode password history: %w", err)
	}

	query := `
		UPDATE accounts SET password_hash = $2, password_history = $3,
			last_password_change = $4, password_expires_at = $5,
			failed_login_attempts = 0, lock_until = NULL, updated_at = $4
		WHERE id = $1
	`
	return r.exec(ctx, query, id, change.Hash, string(history), change.ChangedAt, change.ExpiresAt)
}

func (r *PostgresAccountRepository) SetChallenge(ctx context.Context, id string, challenge models.OneTimeChallenge) error {
	doc, err := json.Marshal(toStored(challenge))
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}

	query := `
		UPDATE accounts SET challenges = challenges || jsonb_build_object($2::text, $3::jsonb)
		WHERE id = $1
	`
	return r.exec(ctx, query, id, string(challenge.Purpose), string(doc))
}

func (r *PostgresAccountRepository) RecordChallengeFailure(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string, maxAttempts int) (int, error) {
	query := `
		UPDATE accounts SET challenges = CASE
			WHEN $4::int > 0 AND (challenges->($2::text)->>'attempts')::int + 1 >= $4::int THEN challenges - $2::text
			ELSE jsonb_set(challenges, ARRAY[$2::text, 'attempts'],
				to_jsonb((challenges->($2::text)->>'attempts')::int + 1))
		END
		WHERE id = $1 AND challenges->($2::text)->>'id' = $3
		RETURNING COALESCE((challenges->($2::text)->>'attempts')::int, $4::int)
	`

	var attempts int
	err := r.pool.QueryRow(ctx, query, id, string(purpose), challengeID, maxAttempts).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrChallengeExpired
		}
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

func (r *PostgresAccountRepository) ConsumeChallenge(ctx context.Context, id string, purpose models.ChallengePurpose, challengeID string) (bool, error) {
	query := `
		UPDATE accounts SET challenges = challenges - $2::text
		WHERE id = $1 AND challenges->($2::text)->>'id' = $3
	`
	result, err := r.pool.Exec(ctx, query, id, string(purpose), challengeID)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *PostgresAccountRepository) ClearChallenges(ctx context.Context, id string, purposes ...models.ChallengePurpose) error {
	keys := make([]string, len(purposes))
	for i, p := range purposes {
		keys[i] = string(p)
	}
	query := `UPDATE accounts SET challenges = challenges - $2::text[] WHERE id = $1`
	return r.exec(ctx, query, id, pq.Array(keys))
}

func (r *PostgresAccountRepository) UpdateMFA(ctx context.Context, id string, settings models.MFASettings, at time.Time) error {
	query := `
		UPDATE accounts SET mfa_enabled = $2, mfa_method = $3,
			totp_secret_encrypted = $4, totp_secret_nonce = $5, backup_code_hashes = $6, updated_at = $7
		WHERE id = $1
	`
	return r.exec(ctx, query, id, settings.Enabled, string(settings.Method),
		nilIfEmpty(settings.TOTPSecretEncrypted), nilIfEmpty(settings.TOTPSecretNonce),
		pq.Array(nonNilStrings(settings.BackupCodeHashes)), at)
}

func (r *PostgresAccountRepository) UpdateStanding(ctx context.Context, id string, update models.StandingUpdate) (*models.Account, error) {
	var role *string
	if update.Role != nil {
		s := string(*update.Role)
		role = &s
	}

	query := `
		UPDATE accounts SET
			role = COALESCE($2::text, role),
			is_banned = COALESCE($3::boolean, is_banned),
			ban_reason = CASE WHEN $3::boolean IS NULL THEN ban_reason WHEN $3::boolean THEN $4::text ELSE '' END,
			banned_by = CASE WHEN $3::boolean IS NULL THEN banned_by WHEN $3::boolean THEN $5::text ELSE '' END,
			banned_at = CASE WHEN $3::boolean IS NULL THEN banned_at WHEN $3::boolean THEN $6::timestamptz ELSE NULL END,
			failed_login_attempts = CASE WHEN $7::boolean THEN 0 ELSE failed_login_attempts END,
			lock_until = CASE WHEN $7::boolean THEN NULL ELSE lock_until END,
			updated_at = $6::timestamptz
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		id, role, update.IsBanned, update.BanReason, update.BannedBy, update.At, update.ClearLockout,
	))
}

func (r *PostgresAccountRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func nonNilHistory(h []models.PasswordHistoryEntry) []models.PasswordHistoryEntry {
	if h == nil {
		return []models.PasswordHistoryEntry{}
	}
	return h
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nilIfEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
