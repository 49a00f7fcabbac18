package models

import "time"

// ChallengePurpose separates one-time secrets so that a code issued for one
// flow can never satisfy another
type ChallengePurpose string

const (
	PurposeLoginMFA      ChallengePurpose = "login_mfa"
	PurposeMFAEnable     ChallengePurpose = "mfa_enable"
	PurposePasswordReset ChallengePurpose = "password_reset"
	PurposeResetToken    ChallengePurpose = "reset_token"
)

// OneTimeChallenge is a pending single-use secret bound to an account
type OneTimeChallenge struct {
	ID        string           `bson:"id" json:"id"`
	Purpose   ChallengePurpose `bson:"purpose" json:"purpose"`
	CodeHash  string           `bson:"code_hash" json:"-"`
	ExpiresAt time.Time        `bson:"expires_at" json:"expires_at"`
	Attempts  int              `bson:"attempts" json:"attempts"`
	CreatedAt time.Time        `bson:"created_at" json:"created_at"`
}

// IsExpired reports whether the challenge can no longer be used at now
func (c OneTimeChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
