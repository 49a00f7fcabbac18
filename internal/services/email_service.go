package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
)

// Email templates, used as the metrics label
const (
	TemplateLoginOTP        = "login_otp"
	TemplateMFAEnable       = "mfa_enable"
	TemplatePasswordReset   = "password_reset"
	TemplatePasswordChanged = "password_changed"
)

// EmailMessage is one transactional email
type EmailMessage struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	Template string
}

// EmailSender delivers transactional email
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// sesAPI is the subset of the SES client used for sending
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailSender sends email using AWS SES
type SESEmailSender struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESEmailSender loads the default AWS config for region
func NewSESEmailSender(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESEmailSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *SESEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("template", msg.Template),
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("template", msg.Template),
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailSender is the development fallback when no provider is configured.
// Nothing is delivered.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Warn("email provider not configured, message dropped",
		slog.String("template", msg.Template),
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("subject", msg.Subject))
	return nil
}

// LoginOTPEmail carries the second-factor code for a login
func LoginOTPEmail(to, code string, ttl time.Duration) EmailMessage {
	text := fmt.Sprintf(`Your Arcadia sign-in code

Use this code to finish signing in:

%s

It expires in %s. If you did not try to sign in, change your password.
`, code, humanDuration(ttl))

	return EmailMessage{
		To:       to,
		Subject:  "Your Arcadia sign-in code",
		TextBody: text,
		HTMLBody: codeHTML("Your sign-in code", "Use this code to finish signing in.", code, ttl),
		Template: TemplateLoginOTP,
	}
}

// MFAEnableEmail confirms the address before email MFA is switched on
func MFAEnableEmail(to, code string, ttl time.Duration) EmailMessage {
	text := fmt.Sprintf(`Confirm two-factor sign-in

Enter this code to turn on email verification for your account:

%s

It expires in %s.
`, code, humanDuration(ttl))

	return EmailMessage{
		To:       to,
		Subject:  "Confirm two-factor sign-in",
		TextBody: text,
		HTMLBody: codeHTML("Confirm two-factor sign-in", "Enter this code to turn on email verification.", code, ttl),
		Template: TemplateMFAEnable,
	}
}

// PasswordResetEmail carries both the short code and the reset link
func PasswordResetEmail(to, code string, codeTTL time.Duration, resetLink string, linkTTL time.Duration) EmailMessage {
	text := fmt.Sprintf(`Reset your Arcadia password

Your reset code is %s (valid for %s).

Or open this link (valid for %s):
%s

If you did not ask for a reset you can ignore this email.
`, code, humanDuration(codeTTL), humanDuration(linkTTL), resetLink)

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h1>Reset your password</h1>
    <p>Your reset code is <strong style="font-size: 24px; letter-spacing: 4px;">%s</strong> (valid for %s).</p>
    <p><a href="%s">Reset password</a> (link valid for %s)</p>
    <p style="color: #666; font-size: 12px;">If you did not ask for a reset you can ignore this email.</p>
</body>
</html>
`, code, humanDuration(codeTTL), resetLink, humanDuration(linkTTL))

	return EmailMessage{
		To:       to,
		Subject:  "Reset your Arcadia password",
		TextBody: text,
		HTMLBody: html,
		Template: TemplatePasswordReset,
	}
}

// PasswordChangedEmail notifies the owner after any password change
func PasswordChangedEmail(to string, at time.Time) EmailMessage {
	text := fmt.Sprintf(`Your Arcadia password was changed

The password for this account was changed at %s UTC.
If this was not you, reset your password immediately.
`, at.UTC().Format("2006-01-02 15:04"))

	return EmailMessage{
		To:       to,
		Subject:  "Your Arcadia password was changed",
		TextBody: text,
		Template: TemplatePasswordChanged,
	}
}

func codeHTML(title, intro, code string, ttl time.Duration) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h1>%s</h1>
    <p>%s</p>
    <p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
    <p>This code expires in %s.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply.</p>
</body>
</html>
`, title, intro, code, humanDuration(ttl))
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", d/time.Minute)
	default:
		return d.String()
	}
}
