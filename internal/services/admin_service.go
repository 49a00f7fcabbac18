package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/arcadia/internal/models"
	"github.com/BradenHooton/arcadia/internal/repositories"
	pkglogger "github.com/BradenHooton/arcadia/pkg/logger"
)

// MaxBanReasonLength bounds the stored ban reason
const MaxBanReasonLength = 500

// AdminService applies administrative standing changes. Every method takes
// the acting admin's id for the audit trail.
type AdminService struct {
	accounts repositories.AccountRepository
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
	now      func() time.Time
}

// NewAdminService creates a new AdminService.
func NewAdminService(accounts repositories.AccountRepository, logger *slog.Logger, audit *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		accounts: accounts,
		logger:   logger,
		audit:    audit,
		now:      time.Now,
	}
}

// GetAccount returns targetID for administrative review
func (s *AdminService) GetAccount(ctx context.Context, targetID string) (*models.Account, error) {
	return s.accounts.GetByID(ctx, targetID)
}

// FindByUsername looks up an account by its case-insensitive username
func (s *AdminService) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", models.ErrBadRequest)
	}
	return s.accounts.GetByUsername(ctx, username)
}

// Ban blocks login and every bearer request for targetID
func (s *AdminService) Ban(ctx context.Context, actorID, targetID, reason string) (*models.Account, error) {
	if actorID == targetID {
		return nil, fmt.Errorf("%w: cannot ban yourself", models.ErrForbidden)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > MaxBanReasonLength {
		return nil, fmt.Errorf("%w: ban reason must be 1-%d characters", models.ErrBadRequest, MaxBanReasonLength)
	}

	banned := true
	account, err := s.accounts.UpdateStanding(ctx, targetID, models.StandingUpdate{
		IsBanned:  &banned,
		BanReason: reason,
		BannedBy:  actorID,
		At:        s.now(),
	})
	if err != nil {
		return nil, s.fail("ban", targetID, err)
	}

	s.audit.LogAdminAction(ctx, pkglogger.EventBan, actorID, targetID, map[string]string{"reason": reason})
	return account, nil
}

func (s *AdminService) Unban(ctx context.Context, actorID, targetID string) (*models.Account, error) {
	banned := false
	account, err := s.accounts.UpdateStanding(ctx, targetID, models.StandingUpdate{
		IsBanned: &banned,
		At:       s.now(),
	})
	if err != nil {
		return nil, s.fail("unban", targetID, err)
	}

	s.audit.LogAdminAction(ctx, pkglogger.EventUnban, actorID, targetID, nil)
	return account, nil
}

// SetRole changes the role of targetID. Admins cannot change their own role.
func (s *AdminService) SetRole(ctx context.Context, actorID, targetID string, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, models.ErrInvalidRole
	}
	if actorID == targetID {
		return nil, fmt.Errorf("%w: cannot change your own role", models.ErrForbidden)
	}

	account, err := s.accounts.UpdateStanding(ctx, targetID, models.StandingUpdate{
		Role: &role,
		At:   s.now(),
	})
	if err != nil {
		return nil, s.fail("set role", targetID, err)
	}

	s.audit.LogAdminAction(ctx, pkglogger.EventRoleChange, actorID, targetID, map[string]string{"role": string(role)})
	return account, nil
}

// Unlock clears the failed-attempt counter and any active lock
func (s *AdminService) Unlock(ctx context.Context, actorID, targetID string) (*models.Account, error) {
	account, err := s.accounts.UpdateStanding(ctx, targetID, models.StandingUpdate{
		ClearLockout: true,
		At:           s.now(),
	})
	if err != nil {
		return nil, s.fail("unlock", targetID, err)
	}

	s.audit.LogAdminAction(ctx, pkglogger.EventUnlock, actorID, targetID, nil)
	return account, nil
}

func (s *AdminService) fail(action, targetID string, err error) error {
	s.logger.Warn("admin action failed",
		slog.String("action", action),
		slog.String("target_id", targetID),
		slog.Any("error", err))
	return err
}
