package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMFAService_EmailEnableRequiresConfirmation(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "cautious")
	ctx := context.Background()

	enrollment, err := f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodEmail)
	require.NoError(t, err)
	assert.Equal(t, models.MFAMethodEmail, enrollment.Method)
	require.NotNil(t, enrollment.ExpiresAt)
	assert.False(t, f.account(t, a.ID).MFAEnabled)

	msg, ok := f.email.Last(TemplateMFAEnable)
	require.True(t, ok)
	assert.Equal(t, a.Email, msg.To)

	code := lastCode(t, f.email, TemplateMFAEnable)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.mfa.ConfirmEnable(ctx, a.ID, wrong)
	assert.ErrorIs(t, err, models.ErrInvalidCode)
	assert.False(t, f.account(t, a.ID).MFAEnabled)

	conf, err := f.mfa.ConfirmEnable(ctx, a.ID, code)
	require.NoError(t, err)
	assert.Equal(t, models.MFAMethodEmail, conf.Method)
	assert.Len(t, conf.BackupCodes, auth.BackupCodeCount)

	stored := f.account(t, a.ID)
	assert.True(t, stored.MFAEnabled)
	assert.Equal(t, models.MFAMethodEmail, stored.MFAMethod)
	assert.Len(t, stored.BackupCodeHashes, auth.BackupCodeCount)
	_, pending := stored.Challenge(models.PurposeMFAEnable)
	assert.False(t, pending)

	_, err = f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodEmail)
	assert.ErrorIs(t, err, models.ErrMFAAlreadyActive)
}

func TestMFAService_EmailFailureLeavesMFADisabled(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "unreachable")
	f.email.SendFunc = func(ctx context.Context, msg EmailMessage) error {
		return errors.New("mailbox unavailable")
	}

	_, err := f.mfa.RequestEnable(context.Background(), a.ID, models.MFAMethodEmail)
	assert.ErrorIs(t, err, models.ErrEmailDelivery)

	stored := f.account(t, a.ID)
	assert.False(t, stored.MFAEnabled)
	_, pending := stored.Challenge(models.PurposeMFAEnable)
	assert.False(t, pending)
}

func TestMFAService_EnableCodeCannotCompleteLogin(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "mixup")
	ctx := context.Background()

	_, err := f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodEmail)
	require.NoError(t, err)
	code := lastCode(t, f.email, TemplateMFAEnable)

	// a reset cannot be completed with an enable code
	err = f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: newPassword})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestMFAService_TOTPFlow(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "authenticator")
	ctx := context.Background()

	enrollment, err := f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodTOTP)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))
	assert.False(t, f.account(t, a.ID).MFAEnabled)

	_, err = f.mfa.ConfirmEnable(ctx, a.ID, "000000x")
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	code, err := f.totp.GenerateCode(enrollment.Secret)
	require.NoError(t, err)
	conf, err := f.mfa.ConfirmEnable(ctx, a.ID, code)
	require.NoError(t, err)
	assert.Equal(t, models.MFAMethodTOTP, conf.Method)

	sentBefore := len(f.email.Sent())
	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, res.Status)
	assert.Equal(t, models.MFAMethodTOTP, res.MFAMethod)
	assert.Len(t, f.email.Sent(), sentBefore, "no email for authenticator logins")

	code, err = f.totp.GenerateCode(enrollment.Secret)
	require.NoError(t, err)
	done, err := f.auth.VerifyMFA(ctx, VerifyMFARequest{ChallengeID: res.ChallengeID, Code: code})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, done.Status)

	_, err = f.auth.ResendMFA(ctx, res.ChallengeID)
	assert.Error(t, err)
}

func TestMFAService_BackupCodeIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "lostphone")
	ctx := context.Background()

	enrollment, err := f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodTOTP)
	require.NoError(t, err)
	code, err := f.totp.GenerateCode(enrollment.Secret)
	require.NoError(t, err)
	conf, err := f.mfa.ConfirmEnable(ctx, a.ID, code)
	require.NoError(t, err)
	backup := conf.BackupCodes[0]

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	_, err = f.auth.VerifyMFA(ctx, VerifyMFARequest{ChallengeID: res.ChallengeID, Code: strings.ToLower(backup)})
	require.NoError(t, err)
	assert.Len(t, f.account(t, a.ID).BackupCodeHashes, auth.BackupCodeCount-1)

	res, err = f.login(a.Email, testPassword)
	require.NoError(t, err)
	_, err = f.auth.VerifyMFA(ctx, VerifyMFARequest{ChallengeID: res.ChallengeID, Code: backup})
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestMFAService_BackupCodeWithEmailMethod(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "lostinbox")
	ctx := context.Background()

	_, err := f.mfa.RequestEnable(ctx, a.ID, models.MFAMethodEmail)
	require.NoError(t, err)
	conf, err := f.mfa.ConfirmEnable(ctx, a.ID, lastCode(t, f.email, TemplateMFAEnable))
	require.NoError(t, err)
	require.Len(t, conf.BackupCodes, auth.BackupCodeCount)
	backup := conf.BackupCodes[0]

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	require.Equal(t, StatusMFARequired, res.Status)
	require.Equal(t, models.MFAMethodEmail, res.MFAMethod)

	done, err := f.auth.VerifyMFA(ctx, VerifyMFARequest{ChallengeID: res.ChallengeID, Code: backup})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, done.Status)

	stored := f.account(t, a.ID)
	assert.Len(t, stored.BackupCodeHashes, auth.BackupCodeCount-1)
	assert.True(t, stored.MFAEnabled)
	assert.Equal(t, models.MFAMethodEmail, stored.MFAMethod)

	res, err = f.login(a.Email, testPassword)
	require.NoError(t, err)
	_, err = f.auth.VerifyMFA(ctx, VerifyMFARequest{ChallengeID: res.ChallengeID, Code: backup})
	assert.ErrorIs(t, err, models.ErrInvalidCode)
}

func TestMFAService_TOTPUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	f.mfa.totp = nil
	a := f.register(t, "nototp")

	_, err := f.mfa.RequestEnable(context.Background(), a.ID, models.MFAMethodTOTP)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = f.mfa.RequestEnable(context.Background(), a.ID, "sms")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestMFAService_Disable(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "quitter")
	ctx := context.Background()

	assert.ErrorIs(t, f.mfa.Disable(ctx, a.ID), models.ErrMFANotEnabled)

	enableEmailMFA(t, f, a.ID)
	_, err := f.login(a.Email, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.mfa.Disable(ctx, a.ID))

	stored := f.account(t, a.ID)
	assert.False(t, stored.MFAEnabled)
	assert.Equal(t, models.MFAMethodNone, stored.MFAMethod)
	assert.Empty(t, stored.BackupCodeHashes)
	assert.Empty(t, stored.TOTPSecretEncrypted)
	assert.Empty(t, stored.Challenges)

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, res.Status)
}
