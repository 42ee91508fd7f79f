package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/ledger"
	"github.com/campusexchange/points/internal/repository"
)

// CreditDebitRequest adjusts a user's points balance directly.
type CreditDebitRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"required"`
}

// ResetPasswordRequest sets a new password for a user, admin-initiated.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// AdminService implements admin control (C7): credit/debit, ban-with-
// escheat, promote/demote, reset-password, and device/session revoke. Every
// points-moving operation runs through ledger.Core; every permission
// invalidation runs through authz.Resolver so a just-demoted admin loses
// access on its very next request rather than at cache expiry.
type AdminService struct {
	db       *sqlx.DB
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	rbac     *repository.RBACRepository
	audit    *repository.AuditRepository
	ledger   *ledger.Core
	resolver *authz.Resolver
}

// NewAdminService creates an AdminService.
func NewAdminService(
	db *sqlx.DB,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	rbac *repository.RBACRepository,
	audit *repository.AuditRepository,
	ledger *ledger.Core,
	resolver *authz.Resolver,
) *AdminService {
	return &AdminService{db: db, users: users, sessions: sessions, rbac: rbac, audit: audit, ledger: ledger, resolver: resolver}
}

// Credit adds points to a user's balance.
func (s *AdminService) Credit(ctx context.Context, actorID, targetID uuid.UUID, req CreditDebitRequest) error {
	return s.applyAdjustment(ctx, actorID, targetID, req.Amount, "admin_credit", req.Reason)
}

// Debit removes points from a user's balance; forbidden against a
// super-admin target unless the actor is also a super-admin.
func (s *AdminService) Debit(ctx context.Context, actorID, targetID uuid.UUID, req CreditDebitRequest) error {
	return s.applyAdjustment(ctx, actorID, targetID, -req.Amount, "admin_debit", req.Reason)
}

func (s *AdminService) applyAdjustment(ctx context.Context, actorID, targetID uuid.UUID, delta int64, action, reason string) error {
	if err := s.guardSuperAdminTarget(ctx, actorID, targetID); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("admin_service.applyAdjustment: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, _, err := s.ledger.ApplyDelta(ctx, tx, targetID, delta, &actorID, action, reason, nil, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Ban rejects admins/super-admins as targets, transfers every remaining
// point of the target to the super-admin, and marks the account banned.
func (s *AdminService) Ban(ctx context.Context, actorID, targetID uuid.UUID) error {
	isAdmin, err := s.rbac.HasRole(ctx, targetID, domain.RoleAdmin)
	if err != nil {
		return err
	}
	isSuper, err := s.rbac.HasRole(ctx, targetID, domain.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if isAdmin || isSuper {
		return domain.ErrSuperAdminProtected
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("admin_service.Ban: begin tx: %w", err)
	}
	defer tx.Rollback()

	if target.Points > 0 {
		superID, err := s.ledger.SuperAdminID(ctx)
		if err != nil {
			return err
		}
		if err := s.ledger.Transfer(ctx, tx, targetID, superID, target.Points, &actorID, "ban_transfer", "account banned"); err != nil {
			return err
		}
	}
	if err := s.users.SetBannedTx(ctx, tx, targetID, true); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("admin_service.Ban: commit: %w", err)
	}

	s.resolver.InvalidateUser(targetID)
	if err := s.sessions.RevokeAllForUser(ctx, targetID); err != nil {
		return fmt.Errorf("admin_service.Ban: revoke sessions: %w", err)
	}
	return nil
}

// Unban lifts a ban without touching the escheated balance.
func (s *AdminService) Unban(ctx context.Context, actorID, targetID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("admin_service.Unban: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.users.SetBannedTx(ctx, tx, targetID, false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("admin_service.Unban: commit: %w", err)
	}
	return s.audit.InsertAdminAction(ctx, actorID, targetID, "admin_unban", "account unbanned")
}

// Promote grants the admin role to a user.
func (s *AdminService) Promote(ctx context.Context, actorID, targetID uuid.UUID) error {
	roleID, err := s.rbac.RoleIDByName(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.rbac.AssignRole(ctx, targetID, roleID); err != nil {
		return err
	}
	s.resolver.InvalidateUser(targetID)
	return s.audit.InsertAdminAction(ctx, actorID, targetID, "admin_promote", "granted admin role")
}

// Demote revokes the admin role from a user; forbidden against a
// super-admin target unless the actor is also a super-admin.
func (s *AdminService) Demote(ctx context.Context, actorID, targetID uuid.UUID) error {
	if err := s.guardSuperAdminTarget(ctx, actorID, targetID); err != nil {
		return err
	}
	roleID, err := s.rbac.RoleIDByName(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if err := s.rbac.RevokeRole(ctx, targetID, roleID); err != nil {
		return err
	}
	s.resolver.InvalidateUser(targetID)
	return s.audit.InsertAdminAction(ctx, actorID, targetID, "admin_demote", "revoked admin role")
}

// ResetPassword sets a new password hash and revokes every refresh token of
// the target, forcing re-authentication on every device.
func (s *AdminService) ResetPassword(ctx context.Context, actorID, targetID uuid.UUID, req ResetPasswordRequest) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("admin_service.ResetPassword: hash: %w", err)
	}
	if err := s.users.SetPasswordHash(ctx, targetID, string(hash)); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForUser(ctx, targetID); err != nil {
		return err
	}
	return s.audit.InsertAdminAction(ctx, actorID, targetID, "admin_reset_password", "password reset, sessions revoked")
}

// RevokeDevice revokes a device and every refresh token bound to it.
func (s *AdminService) RevokeDevice(ctx context.Context, actorID, deviceID uuid.UUID) error {
	if err := s.sessions.RevokeDevice(ctx, deviceID); err != nil {
		return err
	}
	return s.audit.InsertAdminAction(ctx, actorID, actorID, "admin_revoke_device", fmt.Sprintf("device %s revoked", deviceID))
}

// RevokeSession revokes a single refresh token.
func (s *AdminService) RevokeSession(ctx context.Context, actorID, tokenID uuid.UUID) error {
	return s.sessions.RevokeToken(ctx, tokenID)
}

// Devices lists every device registered to a user.
func (s *AdminService) Devices(ctx context.Context, userID uuid.UUID) ([]*domain.UserDevice, error) {
	return s.sessions.ListDevices(ctx, userID)
}

// Sessions lists every refresh-token session of a user.
func (s *AdminService) Sessions(ctx context.Context, userID uuid.UUID) ([]*domain.RefreshToken, error) {
	return s.sessions.ListSessions(ctx, userID)
}

// Users lists users, paginated.
func (s *AdminService) Users(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// BannedUsers lists every currently banned user.
func (s *AdminService) BannedUsers(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListBanned(ctx)
}

// Logs returns a user's audit trail, paginated.
func (s *AdminService) Logs(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.AuditLog, int, error) {
	return s.audit.ForUser(ctx, userID, limit, offset)
}

// AllLogs returns the global audit trail, paginated.
func (s *AdminService) AllLogs(ctx context.Context, limit, offset int) ([]*domain.AuditLog, int, error) {
	return s.audit.List(ctx, limit, offset)
}

// FeesSummary reports fee revenue grouped by action.
func (s *AdminService) FeesSummary(ctx context.Context) ([]repository.FeeSummary, error) {
	return s.audit.FeesSummary(ctx)
}

// guardSuperAdminTarget rejects operations against a super-admin target
// unless the actor is also a super-admin (§4.7).
func (s *AdminService) guardSuperAdminTarget(ctx context.Context, actorID, targetID uuid.UUID) error {
	targetIsSuper, err := s.rbac.HasRole(ctx, targetID, domain.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !targetIsSuper {
		return nil
	}
	actorIsSuper, err := s.rbac.HasRole(ctx, actorID, domain.RoleSuperAdmin)
	if err != nil {
		return err
	}
	if !actorIsSuper {
		return domain.ErrSuperAdminProtected
	}
	return nil
}
