package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
)

// BetRepository handles Bet, BetOption, and BetPosition rows.
type BetRepository struct {
	db *sqlx.DB
}

// NewBetRepository creates a new BetRepository.
func NewBetRepository(db *sqlx.DB) *BetRepository {
	return &BetRepository{db: db}
}

// CreateTx inserts a bet and its options in one transaction.
func (r *BetRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, b *domain.Bet, options []*domain.BetOption) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bets (id, creator_user_id, group_id, title, bet_type, closes_at, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		b.ID, b.CreatorUserID, b.GroupID, b.Title, b.BetType, b.ClosesAt, b.Status, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("bet_repo.CreateTx: insert bet: %w", err)
	}
	for _, o := range options {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO bet_options (id, bet_id, label, numeric_value, current_odds)
			VALUES ($1,$2,$3,$4,$5)`, o.ID, o.BetID, o.Label, o.NumericValue, o.CurrentOdds); err != nil {
			return fmt.Errorf("bet_repo.CreateTx: insert option: %w", err)
		}
	}
	return nil
}

// GetByID fetches a bet by id.
func (r *BetRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bet, error) {
	var b domain.Bet
	err := r.db.GetContext(ctx, &b, `SELECT * FROM bets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetByID: %w", err)
	}
	return &b, nil
}

// GetForUpdate locks the bet row within tx — every buy/sell/cancel/resolve
// call begins here, serializing per-bet operations (§5 ordering rule).
func (r *BetRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Bet, error) {
	var b domain.Bet
	err := tx.GetContext(ctx, &b, `SELECT * FROM bets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetForUpdate: %w", err)
	}
	return &b, nil
}

// SetStatusTx transitions the bet's status within tx; the resolution fields
// are left unchanged (SetResolvedTx sets those).
func (r *BetRepository) SetStatusTx(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID, status domain.BetStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE bets SET status = $1 WHERE id = $2`, status, betID)
	if err != nil {
		return fmt.Errorf("bet_repo.SetStatusTx: %w", err)
	}
	return nil
}

// SetResolvedTx marks the bet resolved with its winning option, within tx.
func (r *BetRepository) SetResolvedTx(ctx context.Context, tx *sqlx.Tx, betID, resultOptionID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE bets SET status = $1, result_option_id = $2, resolved_at = now() WHERE id = $3`,
		domain.BetStatusResolved, resultOptionID, betID)
	if err != nil {
		return fmt.Errorf("bet_repo.SetResolvedTx: %w", err)
	}
	return nil
}

// Options returns every option of a bet.
func (r *BetRepository) Options(ctx context.Context, betID uuid.UUID) ([]*domain.BetOption, error) {
	var opts []*domain.BetOption
	err := r.db.SelectContext(ctx, &opts, `SELECT * FROM bet_options WHERE bet_id = $1 ORDER BY label`, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.Options: %w", err)
	}
	return opts, nil
}

// GetOptionForUpdate locks a bet option row within tx.
func (r *BetRepository) GetOptionForUpdate(ctx context.Context, tx *sqlx.Tx, optionID uuid.UUID) (*domain.BetOption, error) {
	var o domain.BetOption
	err := tx.GetContext(ctx, &o, `SELECT * FROM bet_options WHERE id = $1 FOR UPDATE`, optionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBetOptionNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetOptionForUpdate: %w", err)
	}
	return &o, nil
}

// OptionCount returns how many options exist for a bet — used to enforce
// the >=2 options invariant before any mutation that could shrink the set.
func (r *BetRepository) OptionCount(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM bet_options WHERE bet_id = $1`, betID)
	if err != nil {
		return 0, fmt.Errorf("bet_repo.OptionCount: %w", err)
	}
	return n, nil
}

// InsertPositionTx inserts a new open position within tx (buy()).
func (r *BetRepository) InsertPositionTx(ctx context.Context, tx *sqlx.Tx, p *domain.BetPosition) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bet_positions (id, bet_id, bet_option_id, user_id, stake_points, odds_at_purchase, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.BetID, p.BetOptionID, p.UserID, p.StakePoints, p.OddsAtPurchase, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("bet_repo.InsertPositionTx: %w", err)
	}
	return nil
}

// GetPositionForUpdate locks a position row within tx.
func (r *BetRepository) GetPositionForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.BetPosition, error) {
	var p domain.BetPosition
	err := tx.GetContext(ctx, &p, `SELECT * FROM bet_positions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetPositionForUpdate: %w", err)
	}
	return &p, nil
}

// GetPosition fetches a position without locking (read paths).
func (r *BetRepository) GetPosition(ctx context.Context, id uuid.UUID) (*domain.BetPosition, error) {
	var p domain.BetPosition
	err := r.db.GetContext(ctx, &p, `SELECT * FROM bet_positions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("bet_repo.GetPosition: %w", err)
	}
	return &p, nil
}

// PositionsByUser returns userID's positions across all bets, paginated,
// plus the total count.
func (r *BetRepository) PositionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.BetPosition, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM bet_positions WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("bet_repo.PositionsByUser count: %w", err)
	}
	var rows []*domain.BetPosition
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM bet_positions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("bet_repo.PositionsByUser select: %w", err)
	}
	return rows, total, nil
}

// PositionsForBet returns every position of a bet (admin / public listing).
func (r *BetRepository) PositionsForBet(ctx context.Context, betID uuid.UUID) ([]*domain.BetPosition, error) {
	var rows []*domain.BetPosition
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM bet_positions WHERE bet_id = $1 ORDER BY created_at`, betID)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PositionsForBet: %w", err)
	}
	return rows, nil
}

// OpenPositionsForBetTx locks and returns every open position of a bet
// within tx — used by cancel() and by the payout worker's settlement step,
// both of which must observe a consistent open-position set.
func (r *BetRepository) OpenPositionsForBetTx(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) ([]*domain.BetPosition, error) {
	var rows []*domain.BetPosition
	err := tx.SelectContext(ctx, &rows,
		`SELECT * FROM bet_positions WHERE bet_id = $1 AND status = $2 ORDER BY id FOR UPDATE`,
		betID, domain.PositionStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.OpenPositionsForBetTx: %w", err)
	}
	return rows, nil
}

// SetPositionSoldTx marks a position sold, idempotent on status='open' so a
// concurrent duplicate sell sees zero rows affected rather than double-pay.
func (r *BetRepository) SetPositionSoldTx(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, soldPoints int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bet_positions SET status = $1, sold_points = $2 WHERE id = $3 AND status = $4`,
		domain.PositionStatusSold, soldPoints, positionID, domain.PositionStatusOpen)
	if err != nil {
		return fmt.Errorf("bet_repo.SetPositionSoldTx: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotOpen
	}
	return nil
}

// SetPositionCancelledTx marks a position cancelled with a refund amount.
func (r *BetRepository) SetPositionCancelledTx(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, payout int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bet_positions SET status = $1, payout_points = $2 WHERE id = $3 AND status = $4`,
		domain.PositionStatusCancelled, payout, positionID, domain.PositionStatusOpen)
	if err != nil {
		return fmt.Errorf("bet_repo.SetPositionCancelledTx: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotOpen
	}
	return nil
}

// SetPositionSettledTx marks a position settled with its payout, idempotent
// on status='open' — the Payout worker's only write to bet_positions.
func (r *BetRepository) SetPositionSettledTx(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, payout int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bet_positions SET status = $1, payout_points = $2 WHERE id = $3 AND status = $4`,
		domain.PositionStatusSettled, payout, positionID, domain.PositionStatusOpen)
	if err != nil {
		return fmt.Errorf("bet_repo.SetPositionSettledTx: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotOpen
	}
	return nil
}

// BetListFilter narrows bet List results, mirroring OfferFilter's shape.
type BetListFilter struct {
	ActiveOnly bool
	GroupIDs   []uuid.UUID
}

// List returns bets matching filter, paginated, plus total count.
func (r *BetRepository) List(ctx context.Context, f BetListFilter, limit, offset int) ([]*domain.Bet, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	pos := 1

	if f.ActiveOnly {
		where += fmt.Sprintf(" AND status = $%d", pos)
		args = append(args, domain.BetStatusOpen)
		pos++
	}
	if f.GroupIDs != nil {
		where += fmt.Sprintf(" AND (group_id IS NULL OR group_id = ANY($%d))", pos)
		args = append(args, pqUUIDArray(f.GroupIDs))
		pos++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bets "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("bet_repo.List count: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT * FROM bets %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, pos, pos+1)

	var bets []*domain.Bet
	if err := r.db.SelectContext(ctx, &bets, query, args...); err != nil {
		return nil, 0, fmt.Errorf("bet_repo.List select: %w", err)
	}
	return bets, total, nil
}

// PendingResolution returns bets past ClosesAt that are still open/closed —
// GET /admin/bets/pending-resolution.
func (r *BetRepository) PendingResolution(ctx context.Context) ([]*domain.Bet, error) {
	var bets []*domain.Bet
	err := r.db.SelectContext(ctx, &bets, `
		SELECT * FROM bets WHERE status IN ($1,$2) AND closes_at <= now() ORDER BY closes_at`,
		domain.BetStatusOpen, domain.BetStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.PendingResolution: %w", err)
	}
	return bets, nil
}
