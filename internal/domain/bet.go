package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetType distinguishes how a bet's options are framed.
type BetType string

const (
	BetTypeBoolean  BetType = "boolean"
	BetTypeNumber   BetType = "number"
	BetTypeMultiple BetType = "multiple"
)

// BetStatus is the state machine driven by buy/sell/cancel/resolve (§4.5).
type BetStatus string

const (
	BetStatusOpen      BetStatus = "open"
	BetStatusClosed    BetStatus = "closed"
	BetStatusResolving BetStatus = "resolving"
	BetStatusResolved  BetStatus = "resolved"
	BetStatusCancelled BetStatus = "cancelled"
)

// Bet is an open-outcome market with per-option odds and buy/sell semantics.
type Bet struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CreatorUserID   uuid.UUID  `db:"creator_user_id" json:"creatorUserId"`
	GroupID         *uuid.UUID `db:"group_id" json:"groupId,omitempty"`
	Title           string     `db:"title" json:"title"`
	BetType         BetType    `db:"bet_type" json:"betType"`
	ClosesAt        time.Time  `db:"closes_at" json:"closesAt"`
	Status          BetStatus  `db:"status" json:"status"`
	ResultOptionID  *uuid.UUID `db:"result_option_id" json:"resultOptionId,omitempty"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
}

// IsOpenForBuy reports whether buy() may proceed at time now: status open
// and not yet past ClosesAt.
func (b *Bet) IsOpenForBuy(now time.Time) bool {
	return b.Status == BetStatusOpen && now.Before(b.ClosesAt)
}

// SellAllowed reports whether sell() may proceed. The design adopts the
// stricter rule from the two observed source variants: resolving, resolved
// and cancelled all forbid sell (§9 open question resolution).
func (b *Bet) SellAllowed() bool {
	switch b.Status {
	case BetStatusResolving, BetStatusResolved, BetStatusCancelled:
		return false
	default:
		return true
	}
}

// CancelAllowed reports whether cancel() may proceed: forbidden once
// resolved or resolving.
func (b *Bet) CancelAllowed() bool {
	return b.Status != BetStatusResolved && b.Status != BetStatusResolving
}

// BetOption is one selectable outcome of a Bet.
//
// Invariant: at least two options exist per bet at all times; CurrentOdds
// is mutable at any time (it is a live price), but options themselves may
// only be added/removed while the bet carries zero positions.
type BetOption struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	BetID        uuid.UUID       `db:"bet_id" json:"betId"`
	Label        string          `db:"label" json:"label"`
	NumericValue *decimal.Decimal `db:"numeric_value" json:"numericValue,omitempty"`
	CurrentOdds  decimal.Decimal `db:"current_odds" json:"currentOdds"`
}

// ValidOdds reports whether odds satisfies the >=1.01 boundary of §8.
func ValidOdds(odds decimal.Decimal) bool {
	return odds.GreaterThanOrEqual(decimal.NewFromFloat(MinBetOdds))
}

// BetPositionStatus is the per-position lifecycle. Only the Payout worker
// may transition a position into settled (§3 ownership note).
type BetPositionStatus string

const (
	PositionStatusOpen      BetPositionStatus = "open"
	PositionStatusSold      BetPositionStatus = "sold"
	PositionStatusSettled   BetPositionStatus = "settled"
	PositionStatusCancelled BetPositionStatus = "cancelled"
)

// BetPosition is a user's stake on one option of one bet.
type BetPosition struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	BetID           uuid.UUID         `db:"bet_id" json:"betId"`
	BetOptionID     uuid.UUID         `db:"bet_option_id" json:"betOptionId"`
	UserID          uuid.UUID         `db:"user_id" json:"userId"`
	StakePoints     int64             `db:"stake_points" json:"stakePoints"`
	OddsAtPurchase  decimal.Decimal   `db:"odds_at_purchase" json:"oddsAtPurchase"`
	Status          BetPositionStatus `db:"status" json:"status"`
	PayoutPoints    *int64            `db:"payout_points" json:"payoutPoints,omitempty"`
	SoldPoints      *int64            `db:"sold_points" json:"soldPoints,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
}

// floorDecimalToInt truncates a non-negative decimal toward zero, the
// "floor" used throughout §4 for point amounts (stake/odds products are
// never negative in this domain).
func floorDecimalToInt(d decimal.Decimal) int64 {
	return d.Truncate(0).IntPart()
}

// CashoutAmount computes the early-exit value of this position at the
// option's current odds: rawCashout = stake*currentOdds/oddsAtPurchase,
// cashout = floor(rawCashout). The 2% fee is computed separately by the
// caller via CashoutFee so both gross and fee are available to the ledger.
func (p *BetPosition) CashoutAmount(currentOdds decimal.Decimal) int64 {
	stake := decimal.NewFromInt(p.StakePoints)
	raw := stake.Mul(currentOdds).Div(p.OddsAtPurchase)
	return floorDecimalToInt(raw)
}

// CashoutFee computes floor(cashout*0.02) for a given gross cashout amount.
func CashoutFee(cashout int64) int64 {
	return cashout * FeeRateNum / FeeRateDen
}

// SettlementGross computes floor(stake*oddsAtPurchase) for a winning
// position — the amount before the settlement fee is deducted.
func (p *BetPosition) SettlementGross() int64 {
	stake := decimal.NewFromInt(p.StakePoints)
	gross := stake.Mul(p.OddsAtPurchase)
	return floorDecimalToInt(gross)
}

// SettlementNet computes the net payout for a winning position:
// max(0, gross - floor(gross*0.02)).
func (p *BetPosition) SettlementNet() (gross, fee, net int64) {
	gross = p.SettlementGross()
	fee = gross * FeeRateNum / FeeRateDen
	net = gross - fee
	if net < 0 {
		net = 0
	}
	return gross, fee, net
}

// ──────────────────────────────────────────────────────────────────────────────
// Payout jobs (C6)
// ──────────────────────────────────────────────────────────────────────────────

// PayoutJobStatus is the state machine driven by the worker and its sweeper.
type PayoutJobStatus string

const (
	PayoutStatusQueued     PayoutJobStatus = "queued"
	PayoutStatusProcessing PayoutJobStatus = "processing"
	PayoutStatusRetryWait  PayoutJobStatus = "retry_wait"
	PayoutStatusCompleted  PayoutJobStatus = "completed"
	PayoutStatusFailed     PayoutJobStatus = "failed"
	PayoutStatusDead       PayoutJobStatus = "dead"
)

// PayoutJob is the durable-queue unit of work settling exactly one bet.
// BetID is unique — re-resolving a bet reuses or revives this row rather
// than inserting a second job for it.
type PayoutJob struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	BetID          uuid.UUID       `db:"bet_id" json:"betId"`
	ResultOptionID uuid.UUID       `db:"result_option_id" json:"resultOptionId"`
	ResolvedBy     uuid.UUID       `db:"resolved_by" json:"resolvedBy"`
	Status         PayoutJobStatus `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	MaxAttempts    int             `db:"max_attempts" json:"maxAttempts"`
	NextAttemptAt  *time.Time      `db:"next_attempt_at" json:"nextAttemptAt,omitempty"`
	StartedAt      *time.Time      `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}

// Revivable reports whether a re-resolve call may revive this job rather
// than reject it: failed, dead and retry_wait jobs are revivable; a
// completed, queued or processing job is a conflict.
func (j *PayoutJob) Revivable() bool {
	switch j.Status {
	case PayoutStatusFailed, PayoutStatusDead, PayoutStatusRetryWait:
		return true
	default:
		return false
	}
}
