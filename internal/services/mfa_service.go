package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/metrics"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
)

// MFAEnrollment is returned by RequestEnable. Secret and QRCode are only
// set for the totp method.
type MFAEnrollment struct {
	Method    models.MFAMethod `json:"method"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	Secret    string           `json:"secret,omitempty"`
	QRCode    string           `json:"qr_code,omitempty"`
}

// MFAConfirmation carries the backup codes, shown to the user exactly once
type MFAConfirmation struct {
	Method      models.MFAMethod `json:"method"`
	BackupCodes []string         `json:"backup_codes"`
}

// MFAService handles the two-step enable and the disable of a second factor
type MFAService struct {
	accounts     repositories.AccountRepository
	email        EmailSender
	totp         *auth.TOTPManager
	metrics      *metrics.Metrics
	logger       *slog.Logger
	audit        *pkglogger.AuditLogger
	otpExpiry    time.Duration
	maxAttempts  int
	emailTimeout time.Duration
	now          func() time.Time
}

// NewMFAService creates a new MFAService. totp may be nil, which disables
// the authenticator-app method.
func NewMFAService(deps AuthDeps, cfg AuthConfig) *MFAService {
	return &MFAService{
		accounts:     deps.Accounts,
		email:        deps.Email,
		totp:         deps.TOTP,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		audit:        deps.Audit,
		otpExpiry:    cfg.LoginOTPExpiry,
		maxAttempts:  cfg.MaxOTPAttempts,
		emailTimeout: cfg.EmailTimeout,
		now:          time.Now,
	}
}

// RequestEnable starts enrollment. For email an OTP is sent to the
// registered address; for totp a pending secret is stored. MFA stays
// disabled until ConfirmEnable succeeds.
func (s *MFAService) RequestEnable(ctx context.Context, accountID string, method models.MFAMethod) (*MFAEnrollment, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, models.ErrMFAAlreadyActive
	}

	now := s.now()
	switch method {
	case models.MFAMethodEmail, models.MFAMethodNone:
		return s.requestEmail(ctx, account, now)
	case models.MFAMethodTOTP:
		return s.requestTOTP(ctx, account, now)
	default:
		return nil, fmt.Errorf("%w: unknown mfa method %q", models.ErrBadRequest, method)
	}
}

func (s *MFAService) requestEmail(ctx context.Context, account *models.Account, now time.Time) (*MFAEnrollment, error) {
	// Drop any half-finished authenticator enrollment
	if len(account.TOTPSecretEncrypted) > 0 {
		if err := s.accounts.UpdateMFA(ctx, account.ID, models.MFASettings{}, now); err != nil {
			return nil, err
		}
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		return nil, err
	}
	ch := auth.NewChallenge(models.PurposeMFAEnable, code, s.otpExpiry, now)
	if err := s.accounts.SetChallenge(ctx, account.ID, ch); err != nil {
		s.logger.Error("failed to store mfa enable challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	if err := sendEmail(ctx, s.email, s.emailTimeout, s.metrics, s.logger, MFAEnableEmail(account.Email, code, s.otpExpiry)); err != nil {
		if clearErr := s.accounts.ClearChallenges(ctx, account.ID, models.PurposeMFAEnable); clearErr != nil {
			s.logger.Warn("failed to clear undelivered challenge", slog.String("account_id", account.ID), slog.Any("error", clearErr))
		}
		return nil, err
	}

	return &MFAEnrollment{Method: models.MFAMethodEmail, ExpiresAt: &ch.ExpiresAt}, nil
}

func (s *MFAService) requestTOTP(ctx context.Context, account *models.Account, now time.Time) (*MFAEnrollment, error) {
	if s.totp == nil {
		return nil, fmt.Errorf("%w: authenticator apps are not enabled", models.ErrBadRequest)
	}

	enrollment, err := s.totp.Enroll(account.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}

	// Method set with Enabled false marks a pending authenticator enrollment
	if err := s.accounts.UpdateMFA(ctx, account.ID, models.MFASettings{
		Method:              models.MFAMethodTOTP,
		TOTPSecretEncrypted: enrollment.EncryptedSecret,
		TOTPSecretNonce:     enrollment.Nonce,
	}, now); err != nil {
		s.logger.Error("failed to store pending totp secret", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, err
	}
	if err := s.accounts.ClearChallenges(ctx, account.ID, models.PurposeMFAEnable); err != nil {
		return nil, err
	}

	return &MFAEnrollment{
		Method: models.MFAMethodTOTP,
		Secret: enrollment.Secret,
		QRCode: enrollment.QRCodeDataURL,
	}, nil
}

// ConfirmEnable verifies the enrollment code and switches MFA on
func (s *MFAService) ConfirmEnable(ctx context.Context, accountID, code string) (*MFAConfirmation, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, models.ErrMFAAlreadyActive
	}

	now := s.now()
	method := models.MFAMethodEmail
	if account.MFAMethod == models.MFAMethodTOTP && len(account.TOTPSecretEncrypted) > 0 {
		method = models.MFAMethodTOTP
		if s.totp == nil {
			return nil, fmt.Errorf("%w: authenticator apps are not enabled", models.ErrBadRequest)
		}
		valid, err := s.totp.Validate(account.TOTPSecretEncrypted, account.TOTPSecretNonce, code)
		if err != nil {
			s.logger.Error("failed to check totp code", slog.String("account_id", accountID), slog.Any("error", err))
			return nil, err
		}
		if !valid {
			s.metrics.RecordMFAVerification(string(method), false)
			return nil, models.ErrInvalidCode
		}
	} else if err := s.confirmEmail(ctx, account, code, now); err != nil {
		if errors.Is(err, models.ErrInvalidCode) {
			s.metrics.RecordMFAVerification(string(method), false)
		}
		return nil, err
	}

	codes, hashes, err := auth.GenerateBackupCodes(auth.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	settings := models.MFASettings{
		Enabled:          true,
		Method:           method,
		BackupCodeHashes: hashes,
	}
	if method == models.MFAMethodTOTP {
		settings.TOTPSecretEncrypted = account.TOTPSecretEncrypted
		settings.TOTPSecretNonce = account.TOTPSecretNonce
	}
	if err := s.accounts.UpdateMFA(ctx, accountID, settings, now); err != nil {
		s.logger.Error("failed to enable mfa", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, err
	}

	s.metrics.RecordMFAVerification(string(method), true)
	s.logger.Info("mfa enabled", slog.String("account_id", accountID), slog.String("method", string(method)))
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventMFAEnabled,
		AccountID: accountID,
		Success:   true,
		Metadata:  map[string]string{"method": string(method)},
	})

	return &MFAConfirmation{Method: method, BackupCodes: codes}, nil
}

func (s *MFAService) confirmEmail(ctx context.Context, account *models.Account, code string, now time.Time) error {
	ch, ok := account.Challenge(models.PurposeMFAEnable)
	if !ok {
		return models.ErrChallengeExpired
	}

	switch auth.VerifyChallenge(ch, models.PurposeMFAEnable, code, now) {
	case auth.ChallengeExpired:
		if err := s.accounts.ClearChallenges(ctx, account.ID, models.PurposeMFAEnable); err != nil {
			s.logger.Warn("failed to clear expired challenge", slog.String("account_id", account.ID), slog.Any("error", err))
		}
		return models.ErrChallengeExpired
	case auth.ChallengeMismatch:
		if _, err := s.accounts.RecordChallengeFailure(ctx, account.ID, models.PurposeMFAEnable, ch.ID, s.maxAttempts); err != nil {
			return err
		}
		return models.ErrInvalidCode
	}

	consumed, err := s.accounts.ConsumeChallenge(ctx, account.ID, models.PurposeMFAEnable, ch.ID)
	if err != nil {
		return err
	}
	if !consumed {
		return models.ErrChallengeExpired
	}
	return nil
}

// Disable turns MFA off for an authenticated account and removes the
// secret, backup codes and pending MFA challenges
func (s *MFAService) Disable(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.MFAEnabled {
		return models.ErrMFANotEnabled
	}

	if err := s.accounts.UpdateMFA(ctx, accountID, models.MFASettings{}, s.now()); err != nil {
		s.logger.Error("failed to disable mfa", slog.String("account_id", accountID), slog.Any("error", err))
		return err
	}
	if err := s.accounts.ClearChallenges(ctx, accountID, models.PurposeLoginMFA, models.PurposeMFAEnable); err != nil {
		s.logger.Warn("failed to clear mfa challenges", slog.String("account_id", accountID), slog.Any("error", err))
	}

	s.logger.Info("mfa disabled", slog.String("account_id", accountID))
	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventMFADisabled,
		AccountID: accountID,
		Success:   true,
	})
	return nil
}
