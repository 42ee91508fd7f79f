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

// IdempotencyRepository handles IdempotencyKey rows (C3).
type IdempotencyRepository struct {
	db *sqlx.DB
}

// NewIdempotencyRepository creates a new IdempotencyRepository.
func NewIdempotencyRepository(db *sqlx.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// UpsertProcessingTx implements §4.3 step 1: insert a new row with
// status=processing, or — if one already exists for (idemKey,userId,route,
// method) — return it without modification so the caller can inspect its
// requestHash/status. The INSERT ... ON CONFLICT DO NOTHING + re-SELECT
// pattern keeps the whole operation atomic within tx without a separate
// existence check racing the insert.
func (r *IdempotencyRepository) UpsertProcessingTx(
	ctx context.Context,
	tx *sqlx.Tx,
	idemKey string,
	userID uuid.UUID,
	route, method, requestHash string,
) (row *domain.IdempotencyKey, created bool, err error) {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (idem_key, user_id, route, method, request_hash, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (idem_key, user_id, route, method) DO NOTHING`,
		idemKey, userID, route, method, requestHash, domain.IdempotencyStatusProcessing, now)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency_repo.UpsertProcessingTx: insert: %w", err)
	}

	n, _ := res.RowsAffected()
	created = n > 0

	var k domain.IdempotencyKey
	err = tx.GetContext(ctx, &k, `
		SELECT * FROM idempotency_keys WHERE idem_key=$1 AND user_id=$2 AND route=$3 AND method=$4 FOR UPDATE`,
		idemKey, userID, route, method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("idempotency_repo.UpsertProcessingTx: row vanished after insert")
		}
		return nil, false, fmt.Errorf("idempotency_repo.UpsertProcessingTx: reselect: %w", err)
	}
	return &k, created, nil
}

// CompleteTx implements §4.3 step 3: writes the captured response back and
// marks the row completed, within the caller's idempotency transaction tx.
func (r *IdempotencyRepository) CompleteTx(
	ctx context.Context,
	tx *sqlx.Tx,
	idemKey string,
	userID uuid.UUID,
	route, method string,
	responseStatus int,
	responseBody string,
) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status=$1, response_status=$2, response_body=$3, completed_at=$4
		WHERE idem_key=$5 AND user_id=$6 AND route=$7 AND method=$8`,
		domain.IdempotencyStatusCompleted, responseStatus, responseBody, time.Now().UTC(),
		idemKey, userID, route, method)
	if err != nil {
		return fmt.Errorf("idempotency_repo.CompleteTx: %w", err)
	}
	return nil
}
