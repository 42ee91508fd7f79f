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

// PayoutRepository handles PayoutJob rows (C6).
type PayoutRepository struct {
	db *sqlx.DB
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// GetByBetID fetches the (unique) payout job for a bet, if any.
func (r *PayoutRepository) GetByBetID(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) (*domain.PayoutJob, error) {
	var j domain.PayoutJob
	var err error
	if tx != nil {
		err = tx.GetContext(ctx, &j, `SELECT * FROM payout_jobs WHERE bet_id = $1 FOR UPDATE`, betID)
	} else {
		err = r.db.GetContext(ctx, &j, `SELECT * FROM payout_jobs WHERE bet_id = $1`, betID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutJobNotFound
		}
		return nil, fmt.Errorf("payout_repo.GetByBetID: %w", err)
	}
	return &j, nil
}

// InsertTx inserts a brand-new payout job within tx (first-time resolve()).
func (r *PayoutRepository) InsertTx(ctx context.Context, tx *sqlx.Tx, j *domain.PayoutJob) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payout_jobs (id, bet_id, result_option_id, resolved_by, status, attempts, max_attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.BetID, j.ResultOptionID, j.ResolvedBy, j.Status, j.Attempts, j.MaxAttempts, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("payout_repo.InsertTx: %w", err)
	}
	return nil
}

// ReviveTx resets a dead/failed/retry_wait job back to queued with
// attempts=0 (re-resolve reviving an exhausted job, §4.5).
func (r *PayoutRepository) ReviveTx(ctx context.Context, tx *sqlx.Tx, jobID, resultOptionID, resolvedBy uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payout_jobs
		SET status = $1, attempts = 0, result_option_id = $2, resolved_by = $3, next_attempt_at = NULL, started_at = NULL, completed_at = NULL
		WHERE id = $4`, domain.PayoutStatusQueued, resultOptionID, resolvedBy, jobID)
	if err != nil {
		return fmt.Errorf("payout_repo.ReviveTx: %w", err)
	}
	return nil
}

// ClaimTx transitions a job queued->processing within tx, incrementing
// attempts and stamping startedAt. Returns domain.ErrPayoutJobNotQueued if
// another worker has already claimed it (idempotent claim guard).
func (r *PayoutRepository) ClaimTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) (*domain.PayoutJob, error) {
	var j domain.PayoutJob
	err := tx.GetContext(ctx, &j, `SELECT * FROM payout_jobs WHERE id = $1 FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutJobNotFound
		}
		return nil, fmt.Errorf("payout_repo.ClaimTx: select: %w", err)
	}
	if j.Status != domain.PayoutStatusQueued {
		return nil, domain.ErrPayoutJobNotQueued
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE payout_jobs SET status = $1, started_at = $2, attempts = attempts + 1 WHERE id = $3`,
		domain.PayoutStatusProcessing, now, jobID)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ClaimTx: update: %w", err)
	}
	j.Status = domain.PayoutStatusProcessing
	j.StartedAt = &now
	j.Attempts++
	return &j, nil
}

// CompleteTx marks a job completed within the same transaction that settles
// the bet (§4.6 step 3/4 — exactly-once via shared commit).
func (r *PayoutRepository) CompleteTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payout_jobs SET status = $1, completed_at = now() WHERE id = $2`,
		domain.PayoutStatusCompleted, jobID)
	if err != nil {
		return fmt.Errorf("payout_repo.CompleteTx: %w", err)
	}
	return nil
}

// FailOrRetry runs its own short recovery transaction (§4.6 failure
// handling) to move a job to retry_wait (with backoff) or dead.
func (r *PayoutRepository) FailOrRetry(ctx context.Context, jobID uuid.UUID, attempts, maxAttempts int, backoff time.Duration) error {
	if attempts < maxAttempts {
		next := time.Now().UTC().Add(backoff)
		_, err := r.db.ExecContext(ctx, `
			UPDATE payout_jobs SET status = $1, next_attempt_at = $2 WHERE id = $3`,
			domain.PayoutStatusRetryWait, next, jobID)
		if err != nil {
			return fmt.Errorf("payout_repo.FailOrRetry: retry_wait: %w", err)
		}
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE payout_jobs SET status = $1 WHERE id = $2`, domain.PayoutStatusDead, jobID)
	if err != nil {
		return fmt.Errorf("payout_repo.FailOrRetry: dead: %w", err)
	}
	return nil
}

// DueForRetry returns every retry_wait job whose nextAttemptAt has passed —
// consumed by the sweeper to push ids back onto the durable queue.
func (r *PayoutRepository) DueForRetry(ctx context.Context, asOf time.Time) ([]*domain.PayoutJob, error) {
	var jobs []*domain.PayoutJob
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT * FROM payout_jobs WHERE status = $1 AND next_attempt_at <= $2`,
		domain.PayoutStatusRetryWait, asOf)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.DueForRetry: %w", err)
	}
	return jobs, nil
}

// RequeueTx flips a retry_wait job back to queued within tx, called by the
// sweeper right before it LPUSHes the id back onto the durable queue.
func (r *PayoutRepository) RequeueTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payout_jobs SET status = $1, next_attempt_at = NULL WHERE id = $2 AND status = $3`,
		domain.PayoutStatusQueued, jobID, domain.PayoutStatusRetryWait)
	if err != nil {
		return fmt.Errorf("payout_repo.RequeueTx: %w", err)
	}
	return nil
}

// GetByID fetches a job without locking (admin inspection).
func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PayoutJob, error) {
	var j domain.PayoutJob
	err := r.db.GetContext(ctx, &j, `SELECT * FROM payout_jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPayoutJobNotFound
		}
		return nil, fmt.Errorf("payout_repo.GetByID: %w", err)
	}
	return &j, nil
}

// BeginTx opens a transaction on the underlying pool — used by the worker
// and the sweeper to build their own two-phase transaction scopes.
func (r *PayoutRepository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}
