package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/ledger"
	"github.com/campusexchange/points/internal/queue"
	"github.com/campusexchange/points/internal/relay"
	"github.com/campusexchange/points/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Request / Response types
// ──────────────────────────────────────────────────────────────────────────────

// CreateBetOptionRequest describes one option of a bet being created.
type CreateBetOptionRequest struct {
	Label        string           `json:"label" binding:"required"`
	NumericValue *decimal.Decimal `json:"numericValue,omitempty"`
	InitialOdds  decimal.Decimal  `json:"initialOdds" binding:"required"`
}

// CreateBetRequest creates a new bet with its initial option set.
type CreateBetRequest struct {
	Title    string                   `json:"title" binding:"required"`
	BetType  domain.BetType           `json:"betType" binding:"required"`
	GroupID  *uuid.UUID               `json:"groupId,omitempty"`
	ClosesAt time.Time                `json:"closesAt" binding:"required"`
	Options  []CreateBetOptionRequest `json:"options" binding:"required,min=2,dive"`
}

// BuyRequest places a new position on a bet option.
type BuyRequest struct {
	OptionID uuid.UUID `json:"optionId" binding:"required"`
	Stake    int64     `json:"stake" binding:"required,gt=0"`
}

// SellRequest cashes out an open position early.
type SellRequest struct {
	PositionID uuid.UUID `json:"positionId" binding:"required"`
}

// ResolveRequest resolves a bet to a winning option.
type ResolveRequest struct {
	ResultOptionID uuid.UUID `json:"resultOptionId" binding:"required"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BetService
// ──────────────────────────────────────────────────────────────────────────────

// BetService implements the bet engine (C5): buy/sell/cancel/resolve over
// per-option frozen-odds positions. Resolve only enqueues settlement — the
// actual money movement happens asynchronously in internal/payout.Worker.
type BetService struct {
	db      *sqlx.DB
	bets    *repository.BetRepository
	payouts *repository.PayoutRepository
	groups  *repository.GroupRepository
	ledger  *ledger.Core
	queue   *queue.PayoutQueue
	pub     *relay.Publisher

	maxPayoutAttempts int
}

// NewBetService creates a BetService. maxPayoutAttempts seeds the attempt
// ceiling stamped onto every freshly-inserted payout job.
func NewBetService(
	db *sqlx.DB,
	bets *repository.BetRepository,
	payouts *repository.PayoutRepository,
	groups *repository.GroupRepository,
	ledger *ledger.Core,
	q *queue.PayoutQueue,
	pub *relay.Publisher,
	maxPayoutAttempts int,
) *BetService {
	return &BetService{db: db, bets: bets, payouts: payouts, groups: groups, ledger: ledger, queue: q, pub: pub, maxPayoutAttempts: maxPayoutAttempts}
}

// ──────────────────────────────────────────────────────────────────────────────
// Create
// ──────────────────────────────────────────────────────────────────────────────

// Create opens a new bet with at least two options, each carrying odds
// >=1.01, and a strictly-future close time.
func (s *BetService) Create(ctx context.Context, creatorID uuid.UUID, req CreateBetRequest) (*domain.Bet, error) {
	if len(req.Options) < 2 {
		return nil, domain.ErrBetOptionCount
	}
	if !req.ClosesAt.After(time.Now().UTC()) {
		return nil, domain.ErrBetClosesAtPast
	}
	for _, o := range req.Options {
		if !domain.ValidOdds(o.InitialOdds) {
			return nil, domain.ErrBetOddsTooLow
		}
	}

	now := time.Now().UTC()
	bet := &domain.Bet{
		ID:            uuid.New(),
		CreatorUserID: creatorID,
		GroupID:       req.GroupID,
		Title:         req.Title,
		BetType:       req.BetType,
		ClosesAt:      req.ClosesAt,
		Status:        domain.BetStatusOpen,
		CreatedAt:     now,
	}
	options := make([]*domain.BetOption, 0, len(req.Options))
	for _, o := range req.Options {
		options = append(options, &domain.BetOption{
			ID:           uuid.New(),
			BetID:        bet.ID,
			Label:        o.Label,
			NumericValue: o.NumericValue,
			CurrentOdds:  o.InitialOdds,
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bet_service.Create: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.bets.CreateTx(ctx, tx, bet, options); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bet_service.Create: commit: %w", err)
	}

	s.publishNewBet(ctx, bet, options)
	return bet, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy locks the bet and the chosen option, debits stake from the buyer, and
// opens a position at the option's current odds — which are then frozen for
// settlement regardless of later odds movement.
func (s *BetService) Buy(ctx context.Context, userID, betID uuid.UUID, req BuyRequest) (*domain.BetPosition, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bet_service.Buy: begin tx: %w", err)
	}
	defer tx.Rollback()

	bet, err := s.bets.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !bet.IsOpenForBuy(now) {
		if bet.Status == domain.BetStatusOpen {
			return nil, domain.ErrBetClosed
		}
		return nil, domain.ErrBetNotOpen
	}

	option, err := s.bets.GetOptionForUpdate(ctx, tx, req.OptionID)
	if err != nil {
		return nil, err
	}
	if option.BetID != bet.ID {
		return nil, domain.ErrBetOptionNotFound
	}

	if _, _, err := s.ledger.ApplyDelta(ctx, tx, userID, -req.Stake, &userID, "bet_buy", "bet position opened", &bet.ID, map[string]any{
		"bet_id": bet.ID, "option_id": option.ID,
	}); err != nil {
		return nil, err
	}

	pos := &domain.BetPosition{
		ID:             uuid.New(),
		BetID:          bet.ID,
		BetOptionID:    option.ID,
		UserID:         userID,
		StakePoints:    req.Stake,
		OddsAtPurchase: option.CurrentOdds,
		Status:         domain.PositionStatusOpen,
		CreatedAt:      now,
	}
	if err := s.bets.InsertPositionTx(ctx, tx, pos); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bet_service.Buy: commit: %w", err)
	}
	return pos, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell cashes out an open position early at the option's current odds.
// Forbidden once the bet is resolving, resolved, or cancelled — sell must
// never race the payout worker's own settlement of the same position.
func (s *BetService) Sell(ctx context.Context, userID, betID uuid.UUID, req SellRequest) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("bet_service.Sell: begin tx: %w", err)
	}
	defer tx.Rollback()

	bet, err := s.bets.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return 0, err
	}
	if !bet.SellAllowed() {
		return 0, domain.ErrBetWrongStateForSell
	}

	pos, err := s.bets.GetPositionForUpdate(ctx, tx, req.PositionID)
	if err != nil {
		return 0, err
	}
	if pos.BetID != bet.ID {
		return 0, domain.ErrPositionNotFound
	}
	if pos.UserID != userID {
		return 0, domain.ErrPositionNotOwned
	}
	if pos.Status != domain.PositionStatusOpen {
		return 0, domain.ErrPositionNotOpen
	}

	option, err := s.bets.GetOptionForUpdate(ctx, tx, pos.BetOptionID)
	if err != nil {
		return 0, err
	}

	cashout := pos.CashoutAmount(option.CurrentOdds)
	fee := domain.CashoutFee(cashout)
	net := cashout - fee

	if err := s.bets.SetPositionSoldTx(ctx, tx, pos.ID, net); err != nil {
		return 0, err
	}
	if _, _, err := s.ledger.ApplyDelta(ctx, tx, userID, net, &userID, "bet_sell", "early cash-out", &bet.ID, map[string]any{
		"bet_id": bet.ID, "position_id": pos.ID, "gross": cashout, "fee": fee,
	}); err != nil {
		return 0, err
	}
	related := bet.ID
	if err := s.ledger.CreditFee(ctx, tx, fee, &userID, "bet_sell_fee", "early cash-out fee", &related); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("bet_service.Sell: commit: %w", err)
	}
	return net, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Cancel
// ──────────────────────────────────────────────────────────────────────────────

// Cancel (admin) voids a bet, refunding every open position's full stake
// and locking the bet against any further resolution.
func (s *BetService) Cancel(ctx context.Context, actorID, betID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bet_service.Cancel: begin tx: %w", err)
	}
	defer tx.Rollback()

	bet, err := s.bets.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return err
	}
	if !bet.CancelAllowed() {
		return domain.ErrBetWrongStateForCancel
	}

	positions, err := s.bets.OpenPositionsForBetTx(ctx, tx, bet.ID)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		if err := s.bets.SetPositionCancelledTx(ctx, tx, pos.ID, pos.StakePoints); err != nil {
			return err
		}
		if _, _, err := s.ledger.ApplyDelta(ctx, tx, pos.UserID, pos.StakePoints, &actorID, "bet_cancel_refund", "bet cancelled", &bet.ID, map[string]any{
			"bet_id": bet.ID, "position_id": pos.ID,
		}); err != nil {
			return err
		}
	}

	if err := s.bets.SetStatusTx(ctx, tx, bet.ID, domain.BetStatusCancelled); err != nil {
		return err
	}

	return tx.Commit()
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolve
// ──────────────────────────────────────────────────────────────────────────────

// Resolve (admin, two-phase) validates the result option, inserts or revives
// the bet's PayoutJob, flips the bet to resolving, and pushes the job id
// onto the durable queue. The actual money movement happens asynchronously
// in internal/payout.Worker.
func (s *BetService) Resolve(ctx context.Context, actorID, betID uuid.UUID, req ResolveRequest) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("bet_service.Resolve: begin tx: %w", err)
	}
	defer tx.Rollback()

	bet, err := s.bets.GetForUpdate(ctx, tx, betID)
	if err != nil {
		return err
	}
	if bet.Status == domain.BetStatusCancelled {
		return domain.ErrBetWrongStateForCancel
	}

	option, err := s.bets.GetOptionForUpdate(ctx, tx, req.ResultOptionID)
	if err != nil {
		return err
	}
	if option.BetID != bet.ID {
		return domain.ErrBetOptionNotFound
	}

	// A bet flips to resolving the instant its first payout job is created
	// and nothing reverts it to open, so "already resolved/resolving" is
	// decided by the job's revivability, not the bet's status directly —
	// otherwise a failed/dead job could never be revived through this path.
	var jobID uuid.UUID
	existing, err := s.payouts.GetByBetID(ctx, tx, bet.ID)
	switch {
	case err == nil:
		if !existing.Revivable() {
			return domain.ErrBetAlreadyResolved
		}
		if err := s.payouts.ReviveTx(ctx, tx, existing.ID, req.ResultOptionID, actorID); err != nil {
			return err
		}
		jobID = existing.ID
	case errors.Is(err, domain.ErrPayoutJobNotFound):
		if bet.Status == domain.BetStatusResolved || bet.Status == domain.BetStatusResolving {
			// No job on record despite a resolving/resolved bet: an
			// inconsistent state rather than a legitimate fresh resolve.
			return domain.ErrBetAlreadyResolved
		}
		job := &domain.PayoutJob{
			ID:             uuid.New(),
			BetID:          bet.ID,
			ResultOptionID: req.ResultOptionID,
			ResolvedBy:     actorID,
			Status:         domain.PayoutStatusQueued,
			Attempts:       0,
			MaxAttempts:    s.maxPayoutAttempts,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.payouts.InsertTx(ctx, tx, job); err != nil {
			return err
		}
		jobID = job.ID
	default:
		return err
	}

	if err := s.bets.SetStatusTx(ctx, tx, bet.ID, domain.BetStatusResolving); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("bet_service.Resolve: commit: %w", err)
	}

	return s.queue.Push(ctx, jobID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// Get fetches a bet by id alongside its options.
func (s *BetService) Get(ctx context.Context, id uuid.UUID) (*domain.Bet, []*domain.BetOption, error) {
	bet, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	options, err := s.bets.Options(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return bet, options, nil
}

// List returns bets visible to userID (ungrouped, or in a group userID
// belongs to), optionally filtered to active-only.
func (s *BetService) List(ctx context.Context, userID uuid.UUID, activeOnly bool, limit, offset int) ([]*domain.Bet, int, error) {
	groupIDs, err := s.groups.MemberGroupIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if groupIDs == nil {
		// No memberships: an empty, non-nil list keeps the group filter on.
		groupIDs = []uuid.UUID{}
	}
	return s.bets.List(ctx, repository.BetListFilter{ActiveOnly: activeOnly, GroupIDs: groupIDs}, limit, offset)
}

// PositionsForUser returns userID's own positions, paginated.
func (s *BetService) PositionsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.BetPosition, int, error) {
	return s.bets.PositionsByUser(ctx, userID, limit, offset)
}

// PositionsForBet returns every position of a bet (public listing).
func (s *BetService) PositionsForBet(ctx context.Context, betID uuid.UUID) ([]*domain.BetPosition, error) {
	return s.bets.PositionsForBet(ctx, betID)
}

// PendingResolution returns bets past ClosesAt awaiting admin resolution.
func (s *BetService) PendingResolution(ctx context.Context) ([]*domain.Bet, error) {
	return s.bets.PendingResolution(ctx)
}

func (s *BetService) publishNewBet(ctx context.Context, bet *domain.Bet, options []*domain.BetOption) {
	if s.pub == nil {
		return
	}
	opts := make([]domain.BetOption, 0, len(options))
	for _, o := range options {
		opts = append(opts, *o)
	}
	_ = s.pub.Publish(ctx, relay.NewBetEvent(bet.ID, bet.Title, bet.ClosesAt, opts))
}
