package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/metrics"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
	pkgauth "github.com/BradenHooton/arcadia/pkg/auth"
	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
)

// Login statuses
const (
	StatusAuthenticated = "authenticated"
	StatusMFARequired   = "mfa_required"
)

// WarningEmailUndelivered is attached to an MFA challenge whose code could not be sent
const WarningEmailUndelivered = "verification email could not be sent, request a new code"

// AuthConfig holds the policy values used by AuthService
type AuthConfig struct {
	Lockout          auth.LockoutPolicy
	Password         auth.PasswordPolicy
	LoginOTPExpiry   time.Duration
	ResetOTPExpiry   time.Duration
	ResetTokenExpiry time.Duration
	SessionExpiry    time.Duration
	MaxOTPAttempts   int
	AppURL           string
	EmailTimeout     time.Duration
}

// DefaultAuthConfig returns the default policy values
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Lockout:          auth.DefaultLockoutPolicy(),
		Password:         auth.DefaultPasswordPolicy(),
		LoginOTPExpiry:   auth.DefaultLoginOTPExpiry,
		ResetOTPExpiry:   auth.DefaultResetOTPExpiry,
		ResetTokenExpiry: auth.DefaultResetTokenTTL,
		SessionExpiry:    auth.DefaultSessionTokenExpiry,
		MaxOTPAttempts:   auth.DefaultMaxOTPAttempts,
		EmailTimeout:     10 * time.Second,
	}
}

// AuthDeps are the collaborators of AuthService. TOTP and Metrics may be nil.
type AuthDeps struct {
	Accounts repositories.AccountRepository
	Sessions repositories.SessionStore
	Tokens   *auth.TokenManager
	TOTP     *auth.TOTPManager
	Email    EmailSender
	Timing   *auth.TimingDelay
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Audit    *pkglogger.AuditLogger
}

// AuthService orchestrates login, MFA verification and password flows
type AuthService struct {
	accounts repositories.AccountRepository
	sessions repositories.SessionStore
	tokens   *auth.TokenManager
	totp     *auth.TOTPManager
	email    EmailSender
	timing   *auth.TimingDelay
	metrics  *metrics.Metrics
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	cfg      AuthConfig

	now          func() time.Time
	hashPassword func(string) (string, error)
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthDeps, cfg AuthConfig) *AuthService {
	return &AuthService{
		accounts:     deps.Accounts,
		sessions:     deps.Sessions,
		tokens:       deps.Tokens,
		totp:         deps.TOTP,
		email:        deps.Email,
		timing:       deps.Timing,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		audit:        deps.Audit,
		cfg:          cfg,
		now:          time.Now,
		hashPassword: pkgauth.HashPassword,
	}
}

// AccountResponse represents an account in HTTP responses
type AccountResponse struct {
	ID         string           `json:"id"`
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	Role       models.Role      `json:"role"`
	MFAEnabled bool             `json:"mfa_enabled"`
	MFAMethod  models.MFAMethod `json:"mfa_method,omitempty"`
	LastLogin  *time.Time       `json:"last_login,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// NewAccountResponse converts an account for output
func NewAccountResponse(a *models.Account) *AccountResponse {
	if a == nil {
		return nil
	}
	return &AccountResponse{
		ID:         a.ID,
		Username:   a.Username,
		Email:      a.Email,
		Role:       a.Role,
		MFAEnabled: a.MFAEnabled,
		MFAMethod:  a.MFAMethod,
		LastLogin:  a.LastLogin,
		CreatedAt:  a.CreatedAt,
	}
}

// LoginResult is either Authenticated (tokens set) or MFARequired (challenge set)
type LoginResult struct {
	Status        string           `json:"status"`
	IdentityToken string           `json:"identity_token,omitempty"`
	SessionToken  string           `json:"session_token,omitempty"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	ChallengeID   string           `json:"challenge_id,omitempty"`
	MFAMethod     models.MFAMethod `json:"mfa_method,omitempty"`
	Warning       string           `json:"warning,omitempty"`
	Account       *AccountResponse `json:"user,omitempty"`
}

// LoginRequest is a credential check
type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
}

// RegisterRequest creates an account
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// VerifyMFARequest completes an MFA challenge
type VerifyMFARequest struct {
	ChallengeID string
	Code        string
	IPAddress   string
}

// ResetPasswordRequest carries exactly one of Code or Token
type ResetPasswordRequest struct {
	Email       string
	Code        string
	Token       string
	NewPassword string
	IPAddress   string
}

// Register validates and stores a new account. Duplicates return ErrConflict;
// callers must not reveal that to the client.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	username := strings.TrimSpace(req.Username)
	email := pkgauth.NormalizeEmail(req.Email)

	if !pkgauth.IsValidUsername(username) {
		return nil, models.ErrInvalidUsername
	}
	if !pkgauth.IsValidEmail(email) {
		return nil, models.ErrInvalidEmail
	}
	if err := pkgauth.ValidatePassword(req.Password); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("register: %w", err)
	}

	now := s.now()
	change := s.cfg.Password.ApplyChange(nil, hash, now)
	account, err := s.accounts.Create(ctx, &models.Account{
		Username:           username,
		Email:              email,
		PasswordHash:       hash,
		Role:               models.RoleUser,
		PasswordHistory:    change.History,
		PasswordExpiresAt:  &change.ExpiresAt,
		LastPasswordChange: &change.ChangedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit.Log(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventRegister,
				Email:         email,
				FailureReason: "duplicate",
			})
			return nil, err
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, err
	}

	s.logger.Info("account registered", slog.String("account_id", account.ID))
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		AccountID: account.ID,
		Email:     email,
		Success:   true,
	})
	return account, nil
}

// Login checks credentials. The order is lockout, password, ban, expiry,
// then MFA. Failures are padded to a uniform duration.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	start := time.Now()
	defer func() {
		s.timing.WaitFrom(start, err == nil)
	}()

	email := pkgauth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		s.metrics.RecordLogin(metrics.LoginInvalid)
		return nil, models.ErrInvalidCredentials
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.CompareDummy(req.Password)
			s.loginFailed(ctx, "", email, req.IPAddress, "invalid_credentials", metrics.LoginInvalid)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to load account for login", slog.Any("error", err))
		return nil, err
	}

	now := s.now()
	if auth.IsLocked(account, now) {
		s.loginFailed(ctx, account.ID, email, req.IPAddress, "locked", metrics.LoginLocked)
		return nil, &models.LockoutError{Until: *account.LockUntil}
	}

	if !pkgauth.PasswordMatches(account.PasswordHash, req.Password) {
		updated, recErr := s.accounts.RecordLoginOutcome(ctx, account.ID, s.cfg.Lockout.Failure(now, req.IPAddress))
		if recErr != nil {
			s.logger.Error("failed to record login failure",
				slog.String("account_id", account.ID),
				slog.Any("error", recErr))
			return nil, recErr
		}
		if auth.IsLocked(updated, now) {
			s.metrics.RecordLockout()
			s.audit.Log(ctx, pkglogger.AuditEvent{
				EventType: pkglogger.EventLockout,
				AccountID: account.ID,
				Email:     email,
				IPAddress: req.IPAddress,
				Metadata:  map[string]string{"until": updated.LockUntil.UTC().Format(time.RFC3339)},
			})
			s.loginFailed(ctx, account.ID, email, req.IPAddress, "locked", metrics.LoginLocked)
			return nil, &models.LockoutError{Until: *updated.LockUntil}
		}
		s.loginFailed(ctx, account.ID, email, req.IPAddress, "invalid_credentials", metrics.LoginInvalid)
		return nil, models.ErrInvalidCredentials
	}

	if account.IsBanned {
		s.loginFailed(ctx, account.ID, email, req.IPAddress, "banned", metrics.LoginBanned)
		return nil, models.ErrAccountBanned
	}

	if s.cfg.Password.IsExpired(account, now) {
		s.loginFailed(ctx, account.ID, email, req.IPAddress, "password_expired", metrics.LoginExpired)
		return nil, models.ErrPasswordExpired
	}

	if account.MFAEnabled {
		result, err := s.issueLoginChallenge(ctx, account, now)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordLogin(metrics.LoginMFARequired)
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventMFAChallenge,
			AccountID: account.ID,
			IPAddress: req.IPAddress,
			Success:   true,
			Metadata:  map[string]string{"method": string(account.MFAMethod)},
		})
		return result, nil
	}

	return s.complete(ctx, account, req.IPAddress, now)
}

func (s *AuthService) loginFailed(ctx context.Context, accountID, email, ip, reason, result string) {
	s.metrics.RecordLogin(result)
	s.logger.Info("login failed", slog.String("reason", reason))
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		AccountID:     accountID,
		Email:         email,
		IPAddress:     ip,
		FailureReason: reason,
	})
}

// issueLoginChallenge stores a login_mfa challenge and, for the email
// method, sends its code. A failed send is reported as a warning.
func (s *AuthService) issueLoginChallenge(ctx context.Context, account *models.Account, now time.Time) (*LoginResult, error) {
	// TOTP challenges only bind the login attempt, the code comes from the app
	secret, err := pkgauth.GenerateSecret()
	if err != nil {
		return nil, err
	}
	if account.MFAMethod != models.MFAMethodTOTP {
		if secret, err = auth.GenerateOTP(); err != nil {
			return nil, err
		}
	}

	ch := auth.NewChallenge(models.PurposeLoginMFA, secret, s.cfg.LoginOTPExpiry, now)
	if err := s.accounts.SetChallenge(ctx, account.ID, ch); err != nil {
		s.logger.Error("failed to store mfa challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	token, err := s.tokens.IssueChallengeToken(account.ID, ch.ID)
	if err != nil {
		s.logger.Error("failed to sign challenge token", slog.Any("error", err))
		return nil, err
	}

	result := &LoginResult{
		Status:      StatusMFARequired,
		ChallengeID: token,
		MFAMethod:   account.MFAMethod,
	}
	if result.MFAMethod == models.MFAMethodNone {
		result.MFAMethod = models.MFAMethodEmail
	}

	if account.MFAMethod != models.MFAMethodTOTP {
		if err := s.send(ctx, LoginOTPEmail(account.Email, secret, s.cfg.LoginOTPExpiry)); err != nil {
			result.Warning = WarningEmailUndelivered
		}
	}
	return result, nil
}

// complete mints both tokens and records the successful outcome
func (s *AuthService) complete(ctx context.Context, account *models.Account, ip string, now time.Time) (*LoginResult, error) {
	identity, err := s.tokens.IssueIdentityToken(account.ID, account.Role, account.Email)
	if err != nil {
		s.logger.Error("failed to sign identity token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	session, err := auth.IssueOpaqueSessionToken(now, s.cfg.SessionExpiry)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, auth.HashSecret(session.Value), models.Session{
		AccountID: account.ID,
		IPAddress: ip,
		CreatedAt: now.Unix(),
	}, s.cfg.SessionExpiry); err != nil {
		s.logger.Error("failed to store session", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	updated, err := s.accounts.RecordLoginOutcome(ctx, account.ID, s.cfg.Lockout.Success(now, ip))
	if err != nil {
		s.logger.Error("failed to record login success", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogin,
		AccountID: account.ID,
		IPAddress: ip,
		Success:   true,
	})

	expiresAt := now.Add(s.tokens.IdentityExpiry())
	return &LoginResult{
		Status:        StatusAuthenticated,
		IdentityToken: identity,
		SessionToken:  session.Value,
		ExpiresAt:     &expiresAt,
		Account:       NewAccountResponse(updated),
	}, nil
}

// challengeAccount resolves a challenge token to its account and pending challenge
func (s *AuthService) challengeAccount(ctx context.Context, challengeToken string) (*models.Account, models.OneTimeChallenge, error) {
	claims, err := s.tokens.ValidateTokenOfType(challengeToken, models.TokenTypeMFAChallenge)
	if err != nil {
		return nil, models.OneTimeChallenge{}, models.ErrChallengeExpired
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.OneTimeChallenge{}, models.ErrChallengeExpired
		}
		return nil, models.OneTimeChallenge{}, err
	}

	ch, ok := account.Challenge(models.PurposeLoginMFA)
	if !ok || ch.ID != claims.ChallengeID {
		return nil, models.OneTimeChallenge{}, models.ErrChallengeExpired
	}
	return account, ch, nil
}

// VerifyMFA completes a login that returned MFARequired. The challenge is
// consumed on success, so a replayed code reports ErrChallengeExpired.
func (s *AuthService) VerifyMFA(ctx context.Context, req VerifyMFARequest) (*LoginResult, error) {
	account, ch, err := s.challengeAccount(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if account.IsBanned {
		return nil, models.ErrAccountBanned
	}

	now := s.now()
	if ch.IsExpired(now) {
		if err := s.accounts.ClearChallenges(ctx, account.ID, models.PurposeLoginMFA); err != nil {
			s.logger.Warn("failed to clear expired challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		}
		return nil, models.ErrChallengeExpired
	}

	method := account.MFAMethod
	if method == models.MFAMethodNone {
		method = models.MFAMethodEmail
	}

	backupIndex := -1
	var valid bool
	switch method {
	case models.MFAMethodTOTP:
		valid, backupIndex, err = s.checkAppCode(account, req.Code)
		if err != nil {
			s.logger.Error("failed to check totp code", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, err
		}
	default:
		valid = auth.VerifyChallenge(ch, models.PurposeLoginMFA, req.Code, now) == auth.ChallengeOK
		if !valid {
			if i := auth.MatchBackupCode(account.BackupCodeHashes, req.Code); i >= 0 {
				valid, backupIndex = true, i
			}
		}
	}

	if !valid {
		s.metrics.RecordMFAVerification(string(method), false)
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventMFAVerify,
			AccountID:     account.ID,
			IPAddress:     req.IPAddress,
			FailureReason: "invalid_code",
		})
		if _, err := s.accounts.RecordChallengeFailure(ctx, account.ID, models.PurposeLoginMFA, ch.ID, s.cfg.MaxOTPAttempts); err != nil {
			if errors.Is(err, models.ErrChallengeExpired) {
				return nil, err
			}
			s.logger.Error("failed to record mfa failure", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, err
		}
		return nil, models.ErrInvalidCode
	}

	consumed, err := s.accounts.ConsumeChallenge(ctx, account.ID, models.PurposeLoginMFA, ch.ID)
	if err != nil {
		s.logger.Error("failed to consume mfa challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}
	if !consumed {
		return nil, models.ErrChallengeExpired
	}

	if backupIndex >= 0 {
		if err := s.accounts.UpdateMFA(ctx, account.ID, models.MFASettings{
			Enabled:             account.MFAEnabled,
			Method:              account.MFAMethod,
			TOTPSecretEncrypted: account.TOTPSecretEncrypted,
			TOTPSecretNonce:     account.TOTPSecretNonce,
			BackupCodeHashes:    auth.RemoveBackupCode(account.BackupCodeHashes, backupIndex),
		}, now); err != nil {
			s.logger.Error("failed to spend backup code", slog.String("account_id", account.ID), slog.Any("error", err))
			return nil, err
		}
		s.logger.Info("backup code used",
			slog.String("account_id", account.ID),
			slog.Int("remaining", len(account.BackupCodeHashes)-1))
	}

	s.metrics.RecordMFAVerification(string(method), true)
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventMFAVerify,
		AccountID: account.ID,
		IPAddress: req.IPAddress,
		Success:   true,
		Metadata:  map[string]string{"method": string(method), "backup_code": fmt.Sprint(backupIndex >= 0)},
	})

	return s.complete(ctx, account, req.IPAddress, now)
}

// checkAppCode accepts an authenticator code or an unused backup code
func (s *AuthService) checkAppCode(account *models.Account, code string) (bool, int, error) {
	if s.totp != nil && len(account.TOTPSecretEncrypted) > 0 {
		ok, err := s.totp.Validate(account.TOTPSecretEncrypted, account.TOTPSecretNonce, code)
		if err != nil {
			return false, -1, err
		}
		if ok {
			return true, -1, nil
		}
	}
	if i := auth.MatchBackupCode(account.BackupCodeHashes, code); i >= 0 {
		return true, i, nil
	}
	return false, -1, nil
}

// ResendMFA replaces the pending login challenge with a fresh code. The old
// challenge id stops working.
func (s *AuthService) ResendMFA(ctx context.Context, challengeToken string) (*LoginResult, error) {
	account, _, err := s.challengeAccount(ctx, challengeToken)
	if err != nil {
		return nil, err
	}
	if account.MFAMethod == models.MFAMethodTOTP {
		return nil, fmt.Errorf("%w: authenticator codes cannot be resent", models.ErrBadRequest)
	}
	if account.IsBanned {
		return nil, models.ErrAccountBanned
	}
	return s.issueLoginChallenge(ctx, account, s.now())
}

// ChangePassword replaces the password of an authenticated account
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !pkgauth.PasswordMatches(account.PasswordHash, currentPassword) {
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordChange,
			AccountID:     accountID,
			FailureReason: "current_password_wrong",
		})
		return models.ErrCurrentPasswordWrong
	}

	if err := s.setPassword(ctx, account, newPassword); err != nil {
		return err
	}

	s.metrics.RecordPasswordChange("change")
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordChange,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// setPassword validates, checks history and stores a new password. Pending
// reset challenges are dropped and the owner is notified.
func (s *AuthService) setPassword(ctx context.Context, account *models.Account, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}
	if s.cfg.Password.CheckReuse(newPassword, account.PasswordHistory) {
		return models.ErrPasswordReused
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return err
	}

	now := s.now()
	change := s.cfg.Password.ApplyChange(account.PasswordHistory, hash, now)
	if err := s.accounts.UpdatePassword(ctx, account.ID, change); err != nil {
		s.logger.Error("failed to update password", slog.String("account_id", account.ID), slog.Any("error", err))
		return err
	}
	if err := s.accounts.ClearChallenges(ctx, account.ID, models.PurposePasswordReset, models.PurposeResetToken); err != nil {
		s.logger.Warn("failed to clear reset challenges", slog.String("account_id", account.ID), slog.Any("error", err))
	}

	_ = s.send(ctx, PasswordChangedEmail(account.Email, now))
	return nil
}

// RequestPasswordReset emails a reset code and link. It returns nil for
// unknown and banned accounts alike.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, ip string) error {
	start := time.Now()
	defer s.timing.WaitFrom(start, false)

	email = pkgauth.NormalizeEmail(email)
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		s.logger.Error("failed to load account for reset", slog.Any("error", err))
		return err
	}
	if account.IsBanned {
		return nil
	}

	now := s.now()
	code, err := auth.GenerateOTP()
	if err != nil {
		return err
	}
	token, err := auth.IssueResetToken(now, s.cfg.ResetTokenExpiry)
	if err != nil {
		return err
	}

	if err := s.accounts.SetChallenge(ctx, account.ID,
		auth.NewChallenge(models.PurposePasswordReset, code, s.cfg.ResetOTPExpiry, now)); err != nil {
		s.logger.Error("failed to store reset code", slog.String("account_id", account.ID), slog.Any("error", err))
		return err
	}
	if err := s.accounts.SetChallenge(ctx, account.ID,
		auth.NewChallenge(models.PurposeResetToken, token.Value, s.cfg.ResetTokenExpiry, now)); err != nil {
		s.logger.Error("failed to store reset token", slog.String("account_id", account.ID), slog.Any("error", err))
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		strings.TrimRight(s.cfg.AppURL, "/"), token.Value, url.QueryEscape(account.Email))
	_ = s.send(ctx, PasswordResetEmail(account.Email, code, s.cfg.ResetOTPExpiry, link, s.cfg.ResetTokenExpiry))

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordReset,
		AccountID: account.ID,
		IPAddress: ip,
		Success:   true,
		Metadata:  map[string]string{"stage": "requested"},
	})
	return nil
}

// ResetPassword sets a new password using a reset code or reset token. A
// code only satisfies password_reset and a token only reset_token. Unknown
// emails, missing, expired and wrong secrets all return ErrChallengeExpired.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) (err error) {
	purpose, secret := models.PurposePasswordReset, req.Code
	switch {
	case req.Code != "" && req.Token != "":
		return fmt.Errorf("%w: provide a code or a token, not both", models.ErrBadRequest)
	case req.Token != "":
		purpose, secret = models.PurposeResetToken, req.Token
	case req.Code == "":
		return fmt.Errorf("%w: code or token is required", models.ErrBadRequest)
	}

	start := time.Now()
	defer func() { s.timing.WaitFrom(start, err == nil) }()

	account, err := s.accounts.GetByEmail(ctx, pkgauth.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrChallengeExpired
		}
		return err
	}

	ch, ok := account.Challenge(purpose)
	if !ok {
		return models.ErrChallengeExpired
	}

	now := s.now()
	switch auth.VerifyChallenge(ch, purpose, secret, now) {
	case auth.ChallengeExpired:
		if err := s.accounts.ClearChallenges(ctx, account.ID, purpose); err != nil {
			s.logger.Warn("failed to clear expired challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		}
		return models.ErrChallengeExpired
	case auth.ChallengeMismatch:
		s.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordReset,
			AccountID:     account.ID,
			IPAddress:     req.IPAddress,
			FailureReason: "invalid_code",
		})
		if _, err := s.accounts.RecordChallengeFailure(ctx, account.ID, purpose, ch.ID, s.cfg.MaxOTPAttempts); err != nil && !errors.Is(err, models.ErrChallengeExpired) {
			return err
		}
		return models.ErrChallengeExpired
	}

	// Strength and reuse are checked before the challenge is spent so the
	// caller can retry with the same code
	if err := pkgauth.ValidatePassword(req.NewPassword); err != nil {
		return fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}
	if s.cfg.Password.CheckReuse(req.NewPassword, account.PasswordHistory) {
		return models.ErrPasswordReused
	}

	consumed, err := s.accounts.ConsumeChallenge(ctx, account.ID, purpose, ch.ID)
	if err != nil {
		return err
	}
	if !consumed {
		return models.ErrChallengeExpired
	}

	if err := s.setPassword(ctx, account, req.NewPassword); err != nil {
		// the password did not change, so hand the code back
		if restoreErr := s.accounts.SetChallenge(ctx, account.ID, ch); restoreErr != nil {
			s.logger.Error("failed to restore reset challenge", slog.String("account_id", account.ID), slog.Any("error", restoreErr))
		}
		return err
	}

	s.metrics.RecordPasswordChange("reset")
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordReset,
		AccountID: account.ID,
		IPAddress: req.IPAddress,
		Success:   true,
		Metadata:  map[string]string{"stage": "completed", "via": string(purpose)},
	})
	return nil
}

// Logout revokes an opaque session token owned by accountID. Unknown tokens
// are ignored.
func (s *AuthService) Logout(ctx context.Context, accountID, sessionToken string) error {
	if sessionToken != "" {
		key := auth.HashSecret(sessionToken)
		session, err := s.sessions.Lookup(ctx, key)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			s.logger.Error("failed to look up session", slog.Any("error", err))
			return err
		case session.AccountID == accountID:
			if err := s.sessions.Delete(ctx, key); err != nil {
				s.logger.Error("failed to delete session", slog.Any("error", err))
				return err
			}
		}
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}

// ValidateSession resolves an opaque session token
func (s *AuthService) ValidateSession(ctx context.Context, sessionToken string) (*models.Session, error) {
	if sessionToken == "" {
		return nil, models.ErrUnauthorized
	}
	session, err := s.sessions.Lookup(ctx, auth.HashSecret(sessionToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	return session, nil
}

// send delivers msg within the configured timeout. Failures are logged and
// returned wrapped in ErrEmailDelivery.
func (s *AuthService) send(ctx context.Context, msg EmailMessage) error {
	return sendEmail(ctx, s.email, s.cfg.EmailTimeout, s.metrics, s.logger, msg)
}

func sendEmail(ctx context.Context, sender EmailSender, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger, msg EmailMessage) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := sender.Send(ctx, msg)
	m.RecordEmail(msg.Template, err)
	if err != nil {
		logger.Warn("email delivery failed",
			slog.String("template", msg.Template),
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrEmailDelivery, err)
	}
	return nil
}
