// Package ledger implements the points core's only path to mutating
// users.points. Every other component calls into Core rather than writing
// the column directly (§3 ownership note).
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// Core is the Ledger component (C1). It holds no state of its own besides
// the cached super-admin id — every operation takes the caller's open
// transaction, mirroring the teacher's WalletRepository.DeductBalance/
// AddBalance + LogTransaction pair.
type Core struct {
	superAdminID   uuid.UUID
	superAdminSet  bool
	resolveSuperID func(ctx context.Context) (uuid.UUID, error)
}

// New constructs a Core. resolveSuperID is called at most once per process
// (on cache miss) to resolve the super-admin id from the RBAC tables.
func New(resolveSuperID func(ctx context.Context) (uuid.UUID, error)) *Core {
	return &Core{resolveSuperID: resolveSuperID}
}

// SuperAdminID returns the cached super-admin user id, resolving it from
// storage on first use.
func (c *Core) SuperAdminID(ctx context.Context) (uuid.UUID, error) {
	if c.superAdminSet {
		return c.superAdminID, nil
	}
	id, err := c.resolveSuperID(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("ledger: resolve super-admin id: %w", err)
	}
	c.superAdminID = id
	c.superAdminSet = true
	return id, nil
}

// metadata is a tiny helper turning a map into the AuditLog.Metadata JSON
// column without each caller hand-rolling json.Marshal error handling.
func metadata(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ApplyDelta selects the user row FOR UPDATE, applies delta, rejects the
// mutation with domain.ErrInsufficientPoints when the result would go
// negative, writes the new balance, and emits one audit row — all inside
// tx, which the caller opened and will commit or roll back.
//
// actor is nil for system-initiated deltas (fee crediting, payout
// settlement); action/reason/related/meta populate the audit trail.
func (c *Core) ApplyDelta(
	ctx context.Context,
	tx *sqlx.Tx,
	userID uuid.UUID,
	delta int64,
	actor *uuid.UUID,
	action, reason string,
	related *uuid.UUID,
	meta map[string]any,
) (before, after int64, err error) {
	var current int64
	err = tx.GetContext(ctx, &current, `SELECT points FROM users WHERE id = $1 FOR UPDATE`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger.ApplyDelta: select for update: %w", err)
	}

	after = current + delta
	if after < 0 {
		return current, current, domain.ErrInsufficientPoints
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users SET points = $1 WHERE id = $2`, after, userID); err != nil {
		return current, current, fmt.Errorf("ledger.ApplyDelta: update balance: %w", err)
	}

	auditID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, actor_user_id, target_user_id, action, reason, points_delta, balance_before, balance_after, related_entity, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		auditID, actor, userID, action, reason, delta, current, after, related, metadata(meta), time.Now().UTC(),
	)
	if err != nil {
		return current, after, fmt.Errorf("ledger.ApplyDelta: insert audit row: %w", err)
	}

	return current, after, nil
}

// Transfer moves amount (>0) from fromID to toID, locking both user rows in
// ascending id order to avoid deadlocks with concurrent transfers, and
// emits two paired audit rows (action+"_debit" / action+"_credit") sharing
// a correlation id.
func (c *Core) Transfer(
	ctx context.Context,
	tx *sqlx.Tx,
	fromID, toID uuid.UUID,
	amount int64,
	actor *uuid.UUID,
	action, reason string,
) error {
	if amount <= 0 {
		return fmt.Errorf("ledger.Transfer: amount must be positive, got %d", amount)
	}

	firstID, secondID := fromID, toID
	if secondID.String() < firstID.String() {
		firstID, secondID = secondID, firstID
	}
	// Lock in ascending id order regardless of debit/credit direction.
	for _, id := range []uuid.UUID{firstID, secondID} {
		var dummy int64
		if err := tx.GetContext(ctx, &dummy, `SELECT points FROM users WHERE id = $1 FOR UPDATE`, id); err != nil {
			return fmt.Errorf("ledger.Transfer: lock user %s: %w", id, err)
		}
	}

	correlation := uuid.New()

	if _, _, err := c.applyDeltaLocked(ctx, tx, fromID, -amount, actor, action+"_debit", reason, &correlation); err != nil {
		return err
	}
	if _, _, err := c.applyDeltaLocked(ctx, tx, toID, amount, actor, action+"_credit", reason, &correlation); err != nil {
		return err
	}
	return nil
}

// applyDeltaLocked performs the balance update + audit row for a user whose
// row is already locked by the caller (used by Transfer, which locks both
// rows up front in sorted order before applying either delta).
func (c *Core) applyDeltaLocked(
	ctx context.Context,
	tx *sqlx.Tx,
	userID uuid.UUID,
	delta int64,
	actor *uuid.UUID,
	action, reason string,
	correlation *uuid.UUID,
) (before, after int64, err error) {
	var current int64
	if err = tx.GetContext(ctx, &current, `SELECT points FROM users WHERE id = $1`, userID); err != nil {
		return 0, 0, fmt.Errorf("ledger: reselect locked user: %w", err)
	}

	after = current + delta
	if after < 0 {
		return current, current, domain.ErrInsufficientPoints
	}

	if _, err = tx.ExecContext(ctx, `UPDATE users SET points = $1 WHERE id = $2`, after, userID); err != nil {
		return current, current, fmt.Errorf("ledger: update balance: %w", err)
	}

	auditID := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs
			(id, actor_user_id, target_user_id, action, reason, points_delta, balance_before, balance_after, correlation_id, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		auditID, actor, userID, action, reason, delta, current, after, correlation, "{}", time.Now().UTC(),
	)
	if err != nil {
		return current, after, fmt.Errorf("ledger: insert audit row: %w", err)
	}

	return current, after, nil
}

// CreditFee credits a 2% (or otherwise precomputed) fee amount to the
// super-admin, used by the offer/bet engines and the payout worker. A
// zero fee is a no-op — not every stake/cashout produces a nonzero floor.
func (c *Core) CreditFee(ctx context.Context, tx *sqlx.Tx, fee int64, actor *uuid.UUID, action, reason string, related *uuid.UUID) error {
	if fee <= 0 {
		return nil
	}
	superID, err := c.SuperAdminID(ctx)
	if err != nil {
		return err
	}
	_, _, err = c.ApplyDelta(ctx, tx, superID, fee, actor, action, reason, related, nil)
	return err
}
