package handlers

import (
	"errors"
	"fmt"
	"strings"

	pkgauth "github.com/BradenHooton/arcadia/pkg/auth"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorResponse represents a validation error with field-level details
type ValidationErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidateRequest validates a request struct using the shared validator
// and returns a user-friendly error for the first failing field
func ValidateRequest(req any) error {
	err := pkgauth.Validator().Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		first := ValidationErrorResponse{
			Field:   strings.ToLower(ve[0].Field()),
			Message: formatValidationError(ve[0]),
		}
		return fmt.Errorf("validation failed: %s: %s", first.Field, first.Message)
	}
	return fmt.Errorf("validation failed: %w", err)
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "username":
		return "must be 3-30 letters, digits or underscores"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "required_without":
		return fmt.Sprintf("required when %s is absent", strings.ToLower(fe.Param()))
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", strings.ToLower(fe.Param()))
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

// VerifyMFARequest is the body of POST /auth/mfa/verify
type VerifyMFARequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	Code        string `json:"code" validate:"required,max=32"`
}

// ResendMFARequest is the body of POST /auth/mfa/resend
type ResendMFARequest struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
}

// ForgotPasswordRequest is the body of POST /auth/password/forgot
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

// ResetPasswordRequest is the body of POST /auth/password/reset. Exactly one
// of Code and Token is accepted.
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,max=254"`
	Code        string `json:"code" validate:"required_without=Token,excluded_with=Token,max=32"`
	Token       string `json:"token" validate:"required_without=Code,max=256"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// ChangePasswordRequest is the body of POST /auth/password/change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// LogoutRequest is the optional body of POST /auth/logout
type LogoutRequest struct {
	SessionToken string `json:"session_token"`
}

// EnableMFARequest is the body of POST /auth/mfa/enable
type EnableMFARequest struct {
	Method string `json:"method" validate:"required,oneof=email totp"`
}

// ConfirmMFARequest is the body of POST /auth/mfa/enable/confirm
type ConfirmMFARequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// BanRequest is the body of POST /admin/accounts/{id}/ban
type BanRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// SetRoleRequest is the body of PUT /admin/accounts/{id}/role
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user moderator admin"`
}
