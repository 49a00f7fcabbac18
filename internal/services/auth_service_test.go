package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/arcadia/internal/auth"
	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "Str0ng!Pass"
	newPassword  = "N3w!Passw0rd"
	testIP       = "198.51.100.7"
)

var (
	codePattern  = regexp.MustCompile(`\b\d{6}\b`)
	tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)
)

type authFixture struct {
	auth     *AuthService
	mfa      *MFAService
	admin    *AdminService
	repo     *repositories.MemoryAccountRepository
	accounts *MockAccountRepository
	sessions *repositories.MemorySessionStore
	email    *MockEmailSender
	tokens   *auth.TokenManager
	totp     *auth.TOTPManager

	mu  sync.Mutex
	now time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	totpManager, err := auth.NewTOTPManager([]byte("0123456789abcdef0123456789abcdef"), "Arcadia")
	require.NoError(t, err)

	f := &authFixture{
		repo:     repositories.NewMemoryAccountRepository(),
		sessions: repositories.NewMemorySessionStore(),
		email:    &MockEmailSender{},
		tokens:   auth.NewTokenManager("arcadia-test-signing-key-0123456789", time.Hour, 10*time.Minute),
		totp:     totpManager,
		now:      time.Now().UTC(),
	}
	f.accounts = NewMockAccountRepository(f.repo)

	deps := AuthDeps{
		Accounts: f.accounts,
		Sessions: f.sessions,
		Tokens:   f.tokens,
		TOTP:     f.totp,
		Email:    f.email,
		Timing:   auth.NoDelay(),
		Logger:   logger,
		Audit:    pkglogger.NewAuditLogger(logger),
	}
	cfg := DefaultAuthConfig()
	cfg.AppURL = "https://forum.example"

	f.auth = NewAuthService(deps, cfg)
	f.auth.now = f.clock
	f.auth.hashPassword = func(pw string) (string, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
		return string(h), err
	}

	f.mfa = NewMFAService(deps, cfg)
	f.mfa.now = f.clock

	f.admin = NewAdminService(f.accounts, logger, pkglogger.NewAuditLogger(logger))
	f.admin.now = f.clock
	return f
}

func (f *authFixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *authFixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *authFixture) register(t *testing.T, username string) *models.Account {
	t.Helper()
	a, err := f.auth.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@forum.example",
		Password: testPassword,
	})
	require.NoError(t, err)
	return a
}

func (f *authFixture) login(email, password string) (*LoginResult, error) {
	return f.auth.Login(context.Background(), LoginRequest{Email: email, Password: password, IPAddress: testIP})
}

func (f *authFixture) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func lastCode(t *testing.T, sender *MockEmailSender, template string) string {
	t.Helper()
	msg, ok := sender.Last(template)
	require.True(t, ok, "no %s email sent", template)
	code := codePattern.FindString(msg.TextBody)
	require.NotEmpty(t, code)
	return code
}

func TestAuthService_Register(t *testing.T) {
	f := newAuthFixture(t)

	a := f.register(t, "Pixel_Knight")

	assert.Equal(t, "pixel_knight@forum.example", a.Email)
	assert.Equal(t, models.RoleUser, a.Role)
	require.Len(t, a.PasswordHistory, 1)
	assert.Equal(t, a.PasswordHash, a.PasswordHistory[0].Hash)
	require.NotNil(t, a.PasswordExpiresAt)
	assert.True(t, a.PasswordExpiresAt.Equal(f.clock().Add(90*24*time.Hour)))
	require.NotNil(t, a.LastPasswordChange)
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newAuthFixture(t)

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{"short username", RegisterRequest{"ab", "ab@forum.example", testPassword}, models.ErrInvalidUsername},
		{"username with space", RegisterRequest{"bad name", "x@forum.example", testPassword}, models.ErrInvalidUsername},
		{"bad email", RegisterRequest{"gooduser", "not-an-email", testPassword}, models.ErrInvalidEmail},
		{"no symbol", RegisterRequest{"gooduser", "g@forum.example", "NoSymbol123"}, models.ErrWeakPassword},
		{"too short", RegisterRequest{"gooduser", "g@forum.example", "Sh0rt!"}, models.ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, models.KindValidation, models.KindOf(err))
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "guildmaster")

	_, err := f.auth.Register(context.Background(), RegisterRequest{
		Username: "GuildMaster",
		Email:    "other@forum.example",
		Password: testPassword,
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "speedrunner")

	res, err := f.login("SpeedRunner@forum.example", testPassword)
	require.NoError(t, err)

	assert.Equal(t, StatusAuthenticated, res.Status)
	assert.NotEmpty(t, res.IdentityToken)
	assert.Len(t, res.SessionToken, 64)
	require.NotNil(t, res.Account)
	assert.Equal(t, a.ID, res.Account.ID)

	claims, err := f.tokens.ValidateTokenOfType(res.IdentityToken, models.TokenTypeIdentity)
	require.NoError(t, err)
	assert.Equal(t, a.ID, claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)

	session, err := f.auth.ValidateSession(context.Background(), res.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, a.ID, session.AccountID)

	stored := f.account(t, a.ID)
	assert.Equal(t, testIP, stored.LastLoginIP)
	require.NotNil(t, stored.LastLogin)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.login("nobody@forum.example", testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_Login_LocksOnFifthFailure(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "tank")

	for i := 0; i < 4; i++ {
		_, err := f.login(a.Email, "Wr0ng!pass")
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	assert.Equal(t, 4, f.account(t, a.ID).FailedLoginAttempts)

	_, err := f.login(a.Email, "Wr0ng!pass")
	var lockErr *models.LockoutError
	require.True(t, errors.As(err, &lockErr))
	assert.True(t, lockErr.Until.Equal(f.clock().Add(30*time.Minute)))

	// the right password does not get through a lock
	_, err = f.login(a.Email, testPassword)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, 5, f.account(t, a.ID).FailedLoginAttempts)

	f.advance(30*time.Minute + time.Second)
	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, res.Status)

	stored := f.account(t, a.ID)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockUntil)
}

func TestAuthService_Login_SuccessResetsCounters(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "healer")

	for i := 0; i < 3; i++ {
		_, _ = f.login(a.Email, "Wr0ng!pass")
	}

	for i := 0; i < 2; i++ {
		_, err := f.login(a.Email, testPassword)
		require.NoError(t, err)
		stored := f.account(t, a.ID)
		assert.Equal(t, 0, stored.FailedLoginAttempts)
		assert.Nil(t, stored.LockUntil)
	}
}

func TestAuthService_Login_ConcurrentFailures(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "zergling")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.login(a.Email, "Wr0ng!pass")
		}()
	}
	wg.Wait()

	stored := f.account(t, a.ID)
	assert.GreaterOrEqual(t, stored.FailedLoginAttempts, 5)
	assert.LessOrEqual(t, stored.FailedLoginAttempts, 20)
	require.NotNil(t, stored.LockUntil)
}

func TestAuthService_Login_Banned(t *testing.T) {
	f := newAuthFixture(t)
	admin := f.register(t, "admin_one")
	a := f.register(t, "griefer")

	_, err := f.admin.Ban(context.Background(), admin.ID, a.ID, "griefing")
	require.NoError(t, err)

	_, err = f.login(a.Email, testPassword)
	assert.ErrorIs(t, err, models.ErrAccountBanned)

	// a wrong password still reads as bad credentials
	_, err = f.login(a.Email, "Wr0ng!pass")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestAuthService_Login_PasswordExpiry(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "veteran")

	f.advance(89*24*time.Hour + 23*time.Hour + 59*time.Minute)
	_, err := f.login(a.Email, testPassword)
	require.NoError(t, err)

	f.advance(time.Minute + time.Second)
	_, err = f.login(a.Email, testPassword)
	assert.ErrorIs(t, err, models.ErrPasswordExpired)
	assert.Equal(t, models.KindExpiry, models.KindOf(err))
}

func TestAuthService_Login_StorageFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.accounts.GetByEmailFunc = func(ctx context.Context, email string) (*models.Account, error) {
		return nil, models.ErrStorage
	}

	_, err := f.login("anyone@forum.example", testPassword)
	assert.ErrorIs(t, err, models.ErrStorage)
	assert.Equal(t, models.KindDependency, models.KindOf(err))
}

func enableEmailMFA(t *testing.T, f *authFixture, accountID string) {
	t.Helper()
	_, err := f.mfa.RequestEnable(context.Background(), accountID, models.MFAMethodEmail)
	require.NoError(t, err)
	_, err = f.mfa.ConfirmEnable(context.Background(), accountID, lastCode(t, f.email, TemplateMFAEnable))
	require.NoError(t, err)
}

func TestAuthService_MFA_EmailFlow(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "raider")
	enableEmailMFA(t, f, a.ID)

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, res.Status)
	assert.Equal(t, models.MFAMethodEmail, res.MFAMethod)
	assert.Empty(t, res.IdentityToken)
	assert.Empty(t, res.Warning)
	assert.Nil(t, f.account(t, a.ID).LastLogin)

	code := lastCode(t, f.email, TemplateLoginOTP)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: wrong})
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	done, err := f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: code, IPAddress: testIP})
	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, done.Status)
	assert.NotEmpty(t, done.IdentityToken)
	assert.NotNil(t, f.account(t, a.ID).LastLogin)

	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: code})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_MFA_ExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "afk_player")
	enableEmailMFA(t, f, a.ID)

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	code := lastCode(t, f.email, TemplateLoginOTP)

	f.advance(10*time.Minute + time.Second)
	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: code})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)

	_, ok := f.account(t, a.ID).Challenge(models.PurposeLoginMFA)
	assert.False(t, ok)
}

func TestAuthService_MFA_TooManyWrongCodes(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "guesser")
	enableEmailMFA(t, f, a.ID)

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	code := lastCode(t, f.email, TemplateLoginOTP)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < auth.DefaultMaxOTPAttempts; i++ {
		_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: wrong})
		require.ErrorIs(t, err, models.ErrInvalidCode)
	}

	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: res.ChallengeID, Code: code})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_MFA_EmailFailureIsWarning(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "offline")
	enableEmailMFA(t, f, a.ID)

	f.email.SendFunc = func(ctx context.Context, msg EmailMessage) error {
		return errors.New("smtp unreachable")
	}

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, res.Status)
	assert.Equal(t, WarningEmailUndelivered, res.Warning)
}

func TestAuthService_MFA_Resend(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "impatient")
	enableEmailMFA(t, f, a.ID)

	first, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	firstCode := lastCode(t, f.email, TemplateLoginOTP)

	second, err := f.auth.ResendMFA(context.Background(), first.ChallengeID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ChallengeID, second.ChallengeID)
	secondCode := lastCode(t, f.email, TemplateLoginOTP)

	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: first.ChallengeID, Code: firstCode})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)

	_, err = f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: second.ChallengeID, Code: secondCode})
	assert.NoError(t, err)
}

func TestAuthService_MFA_TamperedChallenge(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.auth.VerifyMFA(context.Background(), VerifyMFARequest{ChallengeID: "not-a-token", Code: "123456"})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_LoginCodeCannotResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "crossover")
	enableEmailMFA(t, f, a.ID)

	_, err := f.login(a.Email, testPassword)
	require.NoError(t, err)
	loginCode := lastCode(t, f.email, TemplateLoginOTP)

	err = f.auth.ResetPassword(context.Background(), ResetPasswordRequest{Email: a.Email, Code: loginCode, NewPassword: newPassword})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "builder")
	ctx := context.Background()

	err := f.auth.ChangePassword(ctx, a.ID, "Wr0ng!pass", newPassword)
	assert.ErrorIs(t, err, models.ErrCurrentPasswordWrong)

	err = f.auth.ChangePassword(ctx, a.ID, testPassword, testPassword)
	assert.ErrorIs(t, err, models.ErrPasswordReused)
	assert.Equal(t, models.KindReuse, models.KindOf(err))

	err = f.auth.ChangePassword(ctx, a.ID, testPassword, "weak")
	assert.ErrorIs(t, err, models.ErrWeakPassword)

	f.advance(time.Hour)
	require.NoError(t, f.auth.ChangePassword(ctx, a.ID, testPassword, newPassword))

	stored := f.account(t, a.ID)
	assert.Len(t, stored.PasswordHistory, 2)
	assert.True(t, stored.PasswordExpiresAt.Equal(f.clock().Add(90*24*time.Hour)))
	_, ok := f.email.Last(TemplatePasswordChanged)
	assert.True(t, ok)

	_, err = f.login(a.Email, testPassword)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.login(a.Email, newPassword)
	assert.NoError(t, err)
}

func TestAuthService_ChangePassword_HistoryWindow(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "rotator")
	ctx := context.Background()

	passwords := []string{testPassword, "R0tate!one", "R0tate!two", "R0tate!three", "R0tate!four", "R0tate!five"}
	for i := 1; i < len(passwords); i++ {
		require.NoError(t, f.auth.ChangePassword(ctx, a.ID, passwords[i-1], passwords[i]))
	}

	// the original password has been pushed out of the last five
	assert.NoError(t, f.auth.ChangePassword(ctx, a.ID, passwords[5], testPassword))
	assert.ErrorIs(t, f.auth.ChangePassword(ctx, a.ID, testPassword, passwords[3]), models.ErrPasswordReused)
}

func TestAuthService_ResetPassword_WithCode(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "forgetful")
	ctx := context.Background()

	// lock the account first; a reset clears it
	for i := 0; i < 5; i++ {
		_, _ = f.login(a.Email, "Wr0ng!pass")
	}

	require.NoError(t, f.auth.RequestPasswordReset(ctx, a.Email, testIP))
	code := lastCode(t, f.email, TemplatePasswordReset)

	err := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: testPassword})
	assert.ErrorIs(t, err, models.ErrPasswordReused)

	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: newPassword}))

	stored := f.account(t, a.ID)
	assert.Equal(t, 0, stored.FailedLoginAttempts)
	assert.Nil(t, stored.LockUntil)
	assert.Empty(t, stored.Challenges)

	err = f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: "An0ther!pass"})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)

	_, err = f.login(a.Email, newPassword)
	assert.NoError(t, err)
}

func TestAuthService_ResetPassword_WithToken(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "linkclicker")
	ctx := context.Background()

	require.NoError(t, f.auth.RequestPasswordReset(ctx, a.Email, testIP))
	msg, ok := f.email.Last(TemplatePasswordReset)
	require.True(t, ok)
	m := tokenPattern.FindStringSubmatch(msg.TextBody)
	require.Len(t, m, 2)

	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Token: m[1], NewPassword: newPassword}))

	err := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Token: m[1], NewPassword: "An0ther!pass"})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_ResetPassword_Expired(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "slowpoke")
	ctx := context.Background()

	require.NoError(t, f.auth.RequestPasswordReset(ctx, a.Email, testIP))
	code := lastCode(t, f.email, TemplatePasswordReset)

	f.advance(30*time.Minute + time.Second)
	err := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: newPassword})
	assert.ErrorIs(t, err, models.ErrChallengeExpired)
}

func TestAuthService_ResetPassword_SameErrorForUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "known_user")
	ctx := context.Background()

	unknownErr := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "nobody@forum.example", Code: "123456", NewPassword: newPassword})
	noChallengeErr := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: "123456", NewPassword: newPassword})

	require.NoError(t, f.auth.RequestPasswordReset(ctx, a.Email, testIP))
	wrong := "123456"
	if lastCode(t, f.email, TemplatePasswordReset) == wrong {
		wrong = "654321"
	}
	wrongCodeErr := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: wrong, NewPassword: newPassword})
	unknownTokenErr := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: "nobody@forum.example", Token: "deadbeef", NewPassword: newPassword})

	for _, err := range []error{unknownErr, noChallengeErr, wrongCodeErr, unknownTokenErr} {
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrChallengeExpired)
		assert.Equal(t, unknownErr.Error(), err.Error())
	}
}

func TestAuthService_ResetPassword_StorageFailureKeepsCode(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "flaky_disk")
	ctx := context.Background()

	require.NoError(t, f.auth.RequestPasswordReset(ctx, a.Email, testIP))
	code := lastCode(t, f.email, TemplatePasswordReset)

	dbErr := errors.New("connection reset")
	f.accounts.UpdatePasswordFunc = func(ctx context.Context, id string, change models.PasswordChange) error {
		return dbErr
	}
	err := f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: newPassword})
	require.ErrorIs(t, err, dbErr)

	_, ok := f.account(t, a.ID).Challenge(models.PurposePasswordReset)
	assert.True(t, ok, "reset code still pending")

	f.accounts.UpdatePasswordFunc = nil
	require.NoError(t, f.auth.ResetPassword(ctx, ResetPasswordRequest{Email: a.Email, Code: code, NewPassword: newPassword}))

	_, err = f.login(a.Email, newPassword)
	assert.NoError(t, err)
}

func TestAuthService_ResetPassword_RequiresOneSecret(t *testing.T) {
	f := newAuthFixture(t)

	err := f.auth.ResetPassword(context.Background(), ResetPasswordRequest{Email: "a@forum.example", NewPassword: newPassword})
	assert.ErrorIs(t, err, models.ErrBadRequest)

	err = f.auth.ResetPassword(context.Background(), ResetPasswordRequest{Email: "a@forum.example", Code: "1", Token: "2"})
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestAuthService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	assert.NoError(t, f.auth.RequestPasswordReset(context.Background(), "ghost@forum.example", testIP))
	assert.Empty(t, f.email.Sent())
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	a := f.register(t, "leaver")
	other := f.register(t, "stranger")
	ctx := context.Background()

	res, err := f.login(a.Email, testPassword)
	require.NoError(t, err)

	// someone else's logout leaves the session alone
	require.NoError(t, f.auth.Logout(ctx, other.ID, res.SessionToken))
	_, err = f.auth.ValidateSession(ctx, res.SessionToken)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, a.ID, res.SessionToken))
	_, err = f.auth.ValidateSession(ctx, res.SessionToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
