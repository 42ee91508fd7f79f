package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// GroupRepository handles Group and GroupMember rows (C10 access control).
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository creates a new GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, g *domain.Group) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO groups (id, name, created_at) VALUES (:id, :name, :created_at)`, g)
	if err != nil {
		return fmt.Errorf("group_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a group by id.
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	var g domain.Group
	err := r.db.GetContext(ctx, &g, `SELECT * FROM groups WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("group_repo.GetByID: %w", domain.ErrGroupNotFound)
	}
	return &g, nil
}

// List returns every group.
func (r *GroupRepository) List(ctx context.Context) ([]*domain.Group, error) {
	var groups []*domain.Group
	if err := r.db.SelectContext(ctx, &groups, `SELECT * FROM groups ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("group_repo.List: %w", err)
	}
	return groups, nil
}

// AddMembers inserts a batch of members, idempotently.
func (r *GroupRepository) AddMembers(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("group_repo.AddMembers: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, uid := range userIDs {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO group_members (group_id, user_id, joined_at) VALUES ($1, $2, now())
			ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, uid); err != nil {
			return fmt.Errorf("group_repo.AddMembers: insert %s: %w", uid, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("group_repo.AddMembers: commit: %w", err)
	}
	return nil
}

// RemoveMembers deletes a batch of members.
func (r *GroupRepository) RemoveMembers(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM group_members WHERE group_id = ? AND user_id IN (?)`, groupID, userIDs)
	if err != nil {
		return fmt.Errorf("group_repo.RemoveMembers: build query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err = r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("group_repo.RemoveMembers: %w", err)
	}
	return nil
}

// IsMember reports whether userID belongs to groupID.
func (r *GroupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return false, fmt.Errorf("group_repo.IsMember: %w", err)
	}
	return count > 0, nil
}

// MemberGroupIDs returns every group id userID belongs to, used for the §C10
// offer/bet visibility filter (WHERE group_id IS NULL OR group_id = ANY(...)).
func (r *GroupRepository) MemberGroupIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT group_id FROM group_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("group_repo.MemberGroupIDs: %w", err)
	}
	return ids, nil
}
