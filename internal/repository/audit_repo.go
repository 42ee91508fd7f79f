package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// AuditRepository provides read access to AuditLog rows written by Ledger
// and AdminService. Writes go exclusively through ledger.Core so the audit
// trail stays consistent with every points mutation.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertAdminAction writes an audit row for an admin action that carries no
// points delta (promote/demote/device revoke/etc).
func (r *AuditRepository) InsertAdminAction(ctx context.Context, actorID, targetID uuid.UUID, action, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, target_user_id, action, reason, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,'{}',now())`, uuid.New(), actorID, targetID, action, reason)
	if err != nil {
		return fmt.Errorf("audit_repo.InsertAdminAction: %w", err)
	}
	return nil
}

// ForUser returns a paginated audit trail for one user (GET /admin/users/{id}/logs).
func (r *AuditRepository) ForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.AuditLog, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM audit_logs WHERE target_user_id = $1 OR actor_user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("audit_repo.ForUser count: %w", err)
	}
	var rows []*domain.AuditLog
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM audit_logs WHERE target_user_id = $1 OR actor_user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit_repo.ForUser select: %w", err)
	}
	return rows, total, nil
}

// List returns a global paginated audit trail (GET /admin/logs).
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*domain.AuditLog, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`); err != nil {
		return nil, 0, fmt.Errorf("audit_repo.List count: %w", err)
	}
	var rows []*domain.AuditLog
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("audit_repo.List select: %w", err)
	}
	return rows, total, nil
}

// FeeSummary aggregates fee revenue credited to the super-admin over all
// time, keyed by action (GET /admin/fees/summary).
type FeeSummary struct {
	Action string `db:"action" json:"action"`
	Total  int64  `db:"total" json:"total"`
	Count  int64  `db:"count" json:"count"`
}

// FeesSummary returns fee totals grouped by audit action for fee-tagged rows.
func (r *AuditRepository) FeesSummary(ctx context.Context) ([]FeeSummary, error) {
	var rows []FeeSummary
	err := r.db.SelectContext(ctx, &rows, `
		SELECT action, COALESCE(SUM(points_delta),0) AS total, COUNT(*) AS count
		FROM audit_logs
		WHERE action LIKE '%_fee%'
		GROUP BY action
		ORDER BY action`)
	if err != nil {
		return nil, fmt.Errorf("audit_repo.FeesSummary: %w", err)
	}
	return rows, nil
}
