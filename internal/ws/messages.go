// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeOddsSnapshot MsgType = "odds_snapshot" // sent once, immediately on connect
	MsgTypeOddsUpdate   MsgType = "odds_update"
	MsgTypeBetResolved  MsgType = "bet_resolved"
	MsgTypeNewBet       MsgType = "new_bet"
	MsgTypeError        MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// OddsUpdateMessage — broadcast whenever a bet's option odds move.
// ──────────────────────────────────────────────────────────────────────────────

// OptionOdds is one bet option's current odds.
type OptionOdds struct {
	OptionID uuid.UUID       `json:"option_id"`
	Label    string          `json:"label"`
	Odds     decimal.Decimal `json:"odds"`
}

// OddsUpdateMessage notifies all clients that a bet's option odds changed
// (relayed from an odds_update event on the pub/sub channel).
type OddsUpdateMessage struct {
	Type      MsgType      `json:"type"`
	BetID     uuid.UUID    `json:"bet_id"`
	Options   []OptionOdds `json:"options"`
	Timestamp time.Time    `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// OddsSnapshotMessage — sent once to a freshly connected client.
// ──────────────────────────────────────────────────────────────────────────────

// OddsSnapshotMessage carries the odds relay's current view of every open
// bet so a client doesn't have to wait for the next OddsUpdateMessage.
type OddsSnapshotMessage struct {
	Type      MsgType                    `json:"type"`
	Bets      map[uuid.UUID][]OptionOdds `json:"bets"`
	Timestamp time.Time                  `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// BetResolvedMessage — broadcast when a bet is resolved.
// ──────────────────────────────────────────────────────────────────────────────

// BetResolvedMessage tells clients a bet settled and which option won.
type BetResolvedMessage struct {
	Type           MsgType   `json:"type"`
	BetID          uuid.UUID `json:"bet_id"`
	ResultOptionID uuid.UUID `json:"result_option_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// NewBetMessage — broadcast when a new bet market opens.
// ──────────────────────────────────────────────────────────────────────────────

// NewBetMessage carries the identity and initial odds of a freshly opened bet.
type NewBetMessage struct {
	Type      MsgType      `json:"type"`
	BetID     uuid.UUID    `json:"bet_id"`
	Title     string       `json:"title"`
	ClosesAt  time.Time    `json:"closes_at"`
	Options   []OptionOdds `json:"options"`
	Timestamp time.Time    `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
