package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// RBACRepository handles Role/Permission/RolePermission/UserRole joins and
// the rotating AuthSecret set.
type RBACRepository struct {
	db *sqlx.DB
}

// NewRBACRepository creates a new RBACRepository.
func NewRBACRepository(db *sqlx.DB) *RBACRepository {
	return &RBACRepository{db: db}
}

// PermissionsForUser returns the flat set of permission names granted to
// userID across every role it holds.
func (r *RBACRepository) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := r.db.SelectContext(ctx, &names, `
		SELECT DISTINCT p.name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac_repo.PermissionsForUser: %w", err)
	}
	return names, nil
}

// RoleIDByName resolves a role's id, used by seeding and promote/demote.
func (r *RBACRepository) RoleIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id, `SELECT id FROM roles WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("rbac_repo.RoleIDByName: role %q not seeded", name)
		}
		return uuid.Nil, fmt.Errorf("rbac_repo.RoleIDByName: %w", err)
	}
	return id, nil
}

// AssignRole grants roleID to userID, idempotently.
func (r *RBACRepository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	if err != nil {
		return fmt.Errorf("rbac_repo.AssignRole: %w", err)
	}
	return nil
}

// RevokeRole removes roleID from userID.
func (r *RBACRepository) RevokeRole(ctx context.Context, userID, roleID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=$1 AND role_id=$2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("rbac_repo.RevokeRole: %w", err)
	}
	return nil
}

// HasRole reports whether userID currently holds the named role.
func (r *RBACRepository) HasRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1 AND ro.name = $2`, userID, roleName)
	if err != nil {
		return false, fmt.Errorf("rbac_repo.HasRole: %w", err)
	}
	return count > 0, nil
}

// FindSuperAdminID resolves the singleton super-admin principal by role
// membership — used by ledger.Core on cache miss.
func (r *RBACRepository) FindSuperAdminID(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id, `
		SELECT ur.user_id FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ro.name = $1
		ORDER BY ur.user_id
		LIMIT 1`, domain.RoleSuperAdmin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("rbac_repo.FindSuperAdminID: no super_admin assigned")
		}
		return uuid.Nil, fmt.Errorf("rbac_repo.FindSuperAdminID: %w", err)
	}
	return id, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// AuthSecret rotation set
// ──────────────────────────────────────────────────────────────────────────────

// ActiveSecrets returns every AuthSecret not expired at asOf, primary first
// (used by the signer; verification tries all of them regardless of order).
func (r *RBACRepository) ActiveSecrets(ctx context.Context, asOf time.Time) ([]domain.AuthSecret, error) {
	var secrets []domain.AuthSecret
	err := r.db.SelectContext(ctx, &secrets, `
		SELECT * FROM auth_secrets
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY is_primary DESC, created_at DESC`, asOf)
	if err != nil {
		return nil, fmt.Errorf("rbac_repo.ActiveSecrets: %w", err)
	}
	return secrets, nil
}

// InsertPrimarySecretIfMissing seeds the first AuthSecret at bootstrap
// (§4.9) if the table is empty.
func (r *RBACRepository) InsertPrimarySecretIfMissing(ctx context.Context, secret string) error {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM auth_secrets`); err != nil {
		return fmt.Errorf("rbac_repo.InsertPrimarySecretIfMissing: count: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_secrets (id, secret, is_primary, expires_at, created_at)
		VALUES ($1, $2, true, NULL, $3)`, uuid.New(), secret, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rbac_repo.InsertPrimarySecretIfMissing: insert: %w", err)
	}
	return nil
}
