package models

import (
	"time"
)

// Role is the forum permission level of an account
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// MFAMethod is the second factor an account has enrolled
type MFAMethod string

const (
	MFAMethodNone  MFAMethod = ""
	MFAMethodEmail MFAMethod = "email"
	MFAMethodTOTP  MFAMethod = "totp"
)

// Account is the persisted forum identity
type Account struct {
	ID           string `bson:"_id" json:"id"`
	Username     string `bson:"username" json:"username"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"`
	Role         Role   `bson:"role" json:"role"`

	FailedLoginAttempts int        `bson:"failed_login_attempts" json:"-"`
	LockUntil           *time.Time `bson:"lock_until,omitempty" json:"-"`

	MFAEnabled          bool      `bson:"mfa_enabled" json:"mfa_enabled"`
	MFAMethod           MFAMethod `bson:"mfa_method,omitempty" json:"mfa_method,omitempty"`
	TOTPSecretEncrypted []byte    `bson:"totp_secret_encrypted,omitempty" json:"-"`
	TOTPSecretNonce     []byte    `bson:"totp_secret_nonce,omitempty" json:"-"`
	BackupCodeHashes    []string  `bson:"backup_code_hashes,omitempty" json:"-"`

	// Pending one-time challenges keyed by purpose
	Challenges map[ChallengePurpose]OneTimeChallenge `bson:"challenges,omitempty" json:"-"`

	PasswordHistory    []PasswordHistoryEntry `bson:"password_history" json:"-"`
	PasswordExpiresAt  *time.Time             `bson:"password_expires_at,omitempty" json:"-"`
	LastPasswordChange *time.Time             `bson:"last_password_change,omitempty" json:"-"`

	IsBanned  bool       `bson:"is_banned" json:"is_banned"`
	BanReason string     `bson:"ban_reason,omitempty" json:"-"`
	BannedAt  *time.Time `bson:"banned_at,omitempty" json:"-"`
	BannedBy  string     `bson:"banned_by,omitempty" json:"-"`

	LastLogin   *time.Time `bson:"last_login,omitempty" json:"last_login,omitempty"`
	LastLoginIP string     `bson:"last_login_ip,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PasswordHistoryEntry is one previously used password hash
type PasswordHistoryEntry struct {
	Hash      string    `bson:"hash" json:"hash"`
	ChangedAt time.Time `bson:"changed_at" json:"changed_at"`
}

// Challenge returns the pending challenge for purpose, if any
func (a *Account) Challenge(purpose ChallengePurpose) (OneTimeChallenge, bool) {
	if a.Challenges == nil {
		return OneTimeChallenge{}, false
	}
	ch, ok := a.Challenges[purpose]
	return ch, ok
}

// Clone returns a deep copy so stores can hand out snapshots safely
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.LockUntil = cloneTime(a.LockUntil)
	c.PasswordExpiresAt = cloneTime(a.PasswordExpiresAt)
	c.LastPasswordChange = cloneTime(a.LastPasswordChange)
	c.BannedAt = cloneTime(a.BannedAt)
	c.LastLogin = cloneTime(a.LastLogin)
	c.TOTPSecretEncrypted = append([]byte(nil), a.TOTPSecretEncrypted...)
	c.TOTPSecretNonce = append([]byte(nil), a.TOTPSecretNonce...)
	c.BackupCodeHashes = append([]string(nil), a.BackupCodeHashes...)
	c.PasswordHistory = append([]PasswordHistoryEntry(nil), a.PasswordHistory...)
	if a.Challenges != nil {
		c.Challenges = make(map[ChallengePurpose]OneTimeChallenge, len(a.Challenges))
		for k, v := range a.Challenges {
			c.Challenges[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// LoginOutcome is the result of one credential check, applied atomically
// to the account's attempt counters by the store
type LoginOutcome struct {
	Success   bool
	At        time.Time
	IPAddress string

	// Lockout policy in force for failures
	Threshold    int
	LockDuration time.Duration
}

// PasswordChange carries the new password state computed by the lifecycle policy
type PasswordChange struct {
	Hash      string
	History   []PasswordHistoryEntry
	ChangedAt time.Time
	ExpiresAt time.Time
}

// MFASettings replaces the account's second-factor configuration
type MFASettings struct {
	Enabled             bool
	Method              MFAMethod
	TOTPSecretEncrypted []byte
	TOTPSecretNonce     []byte
	BackupCodeHashes    []string
}

// StandingUpdate changes administrative fields on an account
// Nil fields are left untouched
type StandingUpdate struct {
	Role         *Role
	IsBanned     *bool
	BanReason    string
	BannedBy     string
	At           time.Time
	ClearLockout bool
}
