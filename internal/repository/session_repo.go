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

// SessionRepository handles UserDevice and RefreshToken rows.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateRefreshToken inserts a new refresh token, optionally bound to a device.
func (r *SessionRepository) CreateRefreshToken(ctx context.Context, rt *domain.RefreshToken) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, device_id, token_hash, expires_at, revoked_at, created_at)
		VALUES (:id, :user_id, :device_id, :token_hash, :expires_at, :revoked_at, :created_at)`, rt)
	if err != nil {
		return fmt.Errorf("session_repo.CreateRefreshToken: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash fetches a refresh token by its hash (tokens are
// never stored or compared in plaintext).
func (r *SessionRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := r.db.GetContext(ctx, &rt, `SELECT * FROM refresh_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("session_repo.GetRefreshTokenByHash: %w", err)
	}
	return &rt, nil
}

// RevokeAllForUser revokes every not-yet-revoked refresh token belonging to
// userID — called on ban and on admin reset-password (§4.7).
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`, userID)
	if err != nil {
		return fmt.Errorf("session_repo.RevokeAllForUser: %w", err)
	}
	return nil
}

// RevokeToken revokes a single refresh token by id.
func (r *SessionRepository) RevokeToken(ctx context.Context, tokenID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, tokenID)
	if err != nil {
		return fmt.Errorf("session_repo.RevokeToken: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session_repo.RevokeToken: %w", sql.ErrNoRows)
	}
	return nil
}

// ListDevices returns every device registered to userID.
func (r *SessionRepository) ListDevices(ctx context.Context, userID uuid.UUID) ([]*domain.UserDevice, error) {
	var devices []*domain.UserDevice
	err := r.db.SelectContext(ctx, &devices, `SELECT * FROM user_devices WHERE user_id = $1 ORDER BY last_seen_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("session_repo.ListDevices: %w", err)
	}
	return devices, nil
}

// ListSessions returns every refresh token (session) belonging to userID.
func (r *SessionRepository) ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.RefreshToken, error) {
	var tokens []*domain.RefreshToken
	err := r.db.SelectContext(ctx, &tokens, `SELECT * FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("session_repo.ListSessions: %w", err)
	}
	return tokens, nil
}

// RevokeDevice marks a device revoked and revokes any refresh token bound to it.
func (r *SessionRepository) RevokeDevice(ctx context.Context, deviceID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session_repo.RevokeDevice: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE user_devices SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, deviceID)
	if err != nil {
		return fmt.Errorf("session_repo.RevokeDevice: update device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = fmt.Errorf("session_repo.RevokeDevice: %w", sql.ErrNoRows)
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE refresh_tokens SET revoked_at = now() WHERE device_id = $1 AND revoked_at IS NULL`, deviceID); err != nil {
		return fmt.Errorf("session_repo.RevokeDevice: revoke tokens: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("session_repo.RevokeDevice: commit: %w", err)
	}
	return nil
}

// TouchDevice upserts a device row and bumps LastSeenAt, used on login.
func (r *SessionRepository) TouchDevice(ctx context.Context, userID uuid.UUID, label string) (*domain.UserDevice, error) {
	var d domain.UserDevice
	err := r.db.GetContext(ctx, &d, `
		INSERT INTO user_devices (id, user_id, label, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, label) DO UPDATE SET last_seen_at = $4
		RETURNING *`, uuid.New(), userID, label, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("session_repo.TouchDevice: %w", err)
	}
	return &d, nil
}
