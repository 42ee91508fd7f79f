package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// UserRepository handles all database operations for Users.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user row with Points starting at zero.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, points, banned, description, alias, quote, visibility, created_at)
		VALUES (:id, :email, :password_hash, :points, :banned, :description, :alias, :quote, :visibility, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, u); err != nil {
		if isPgUniqueViolation(err, "users_email_key") {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("user_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByIDTx fetches a user within an already-open transaction (used when a
// caller needs a read before deciding whether to lock it).
func (r *UserRepository) GetByIDTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := tx.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByIDTx: %w", err)
	}
	return &u, nil
}

// GetByEmail fetches a user by email address (used for login).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByEmail: %w", err)
	}
	return &u, nil
}

// List returns a paginated list of all users. Returns (users, totalCount, error).
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	var users []*domain.User
	var total int

	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List count: %w", err)
	}
	if err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("user_repo.List select: %w", err)
	}
	return users, total, nil
}

// ListBanned returns every currently-banned user, used by GET /admin/users/banned.
func (r *UserRepository) ListBanned(ctx context.Context) ([]*domain.User, error) {
	var users []*domain.User
	err := r.db.SelectContext(ctx, &users, `SELECT * FROM users WHERE banned = true ORDER BY banned_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("user_repo.ListBanned: %w", err)
	}
	return users, nil
}

// UpdateProfile updates the user-editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, p domain.Profile) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET description=$1, alias=$2, quote=$3, visibility=$4 WHERE id=$5`,
		p.Description, p.Alias, p.Quote, p.Visibility, userID)
	if err != nil {
		return fmt.Errorf("user_repo.UpdateProfile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetPasswordHash overwrites a user's password hash (admin reset-password).
func (r *UserRepository) SetPasswordHash(ctx context.Context, userID uuid.UUID, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, userID)
	if err != nil {
		return fmt.Errorf("user_repo.SetPasswordHash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// SetBannedTx marks a user banned/unbanned within tx (the ban operation
// also calls Ledger.Transfer in the same transaction — see AdminService.Ban).
func (r *UserRepository) SetBannedTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, banned bool) error {
	var res sql.Result
	var err error
	if banned {
		res, err = tx.ExecContext(ctx, `UPDATE users SET banned=true, banned_at=now() WHERE id=$1`, userID)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE users SET banned=false, banned_at=NULL WHERE id=$1`, userID)
	}
	if err != nil {
		return fmt.Errorf("user_repo.SetBannedTx: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// isPgUniqueViolation checks whether err is a PostgreSQL unique constraint
// violation for the given constraint name.
func isPgUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "unique constraint") &&
		strings.Contains(err.Error(), constraintName)
}
