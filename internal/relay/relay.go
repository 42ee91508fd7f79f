// Package relay implements the odds relay (C8): bet creation and bet
// settlement publish events onto a Redis pub/sub channel; a single subscriber
// goroutine per process consumes that channel (new_bet, bet_resolved and
// odds_update events alike) and fans each message out to every locally
// connected WebSocket client via the Hub. Buys, sells and cancels publish no
// odds_update event.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/ws"
)

// Event is the wire shape published to and consumed from the odds channel.
// Kind distinguishes the three broadcast shapes the Hub exposes. Odds are
// carried as strings rather than decimal.Decimal so the JSON on the wire is
// exact regardless of which process (or future language) decodes it.
type Event struct {
	Kind           string        `json:"kind"` // "odds_update" | "bet_resolved" | "new_bet"
	BetID          uuid.UUID     `json:"bet_id"`
	Title          string        `json:"title,omitempty"`
	ClosesAt       time.Time     `json:"closes_at,omitempty"`
	ResultOptionID uuid.UUID     `json:"result_option_id,omitempty"`
	Options        []EventOption `json:"options,omitempty"`
}

// EventOption is one bet option's id/label/odds as carried on the wire.
type EventOption struct {
	OptionID uuid.UUID `json:"option_id"`
	Label    string    `json:"label"`
	Odds     string    `json:"odds"`
}

const (
	KindOddsUpdate  = "odds_update"
	KindBetResolved = "bet_resolved"
	KindNewBet      = "new_bet"
)

// OddsUpdateEvent builds the Event for a bet whose option odds moved.
func OddsUpdateEvent(betID uuid.UUID, options []domain.BetOption) Event {
	return Event{Kind: KindOddsUpdate, BetID: betID, Options: toEventOptions(options)}
}

// BetResolvedEvent builds the Event for a newly resolved bet.
func BetResolvedEvent(betID, resultOptionID uuid.UUID) Event {
	return Event{Kind: KindBetResolved, BetID: betID, ResultOptionID: resultOptionID}
}

// NewBetEvent builds the Event for a freshly opened bet.
func NewBetEvent(betID uuid.UUID, title string, closesAt time.Time, options []domain.BetOption) Event {
	return Event{Kind: KindNewBet, BetID: betID, Title: title, ClosesAt: closesAt, Options: toEventOptions(options)}
}

func toEventOptions(options []domain.BetOption) []EventOption {
	out := make([]EventOption, 0, len(options))
	for _, o := range options {
		out = append(out, EventOption{OptionID: o.ID, Label: o.Label, Odds: o.CurrentOdds.String()})
	}
	return out
}

// Publisher publishes Events to the configured Redis channel. Bet/offer
// service code depends on this narrow type rather than *redis.Client
// directly.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher constructs a Publisher bound to one pub/sub channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish serialises and publishes one Event. Publish failures are
// transient relay hiccups, not correctness failures — callers should log
// and continue rather than fail the triggering request.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("relay.Publish: marshal: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("relay.Publish: %w", err)
	}
	return nil
}

// Broadcaster is the narrow interface relay needs from ws.Hub — declared
// locally so callers can supply a fake in tests without standing up a real
// Hub (same locally-declared-interface idiom used across the authz package).
type Broadcaster interface {
	BroadcastOdds(betID uuid.UUID, options []ws.OptionOdds)
	BroadcastBetResolved(betID, resultOptionID uuid.UUID)
	BroadcastNewBet(betID uuid.UUID, title string, closesAt time.Time, options []ws.OptionOdds)
}

// Subscriber consumes Events from Redis pub/sub and fans them out to hub.
type Subscriber struct {
	client  *redis.Client
	channel string
	hub     Broadcaster
	logger  *slog.Logger
}

// NewSubscriber constructs a Subscriber.
func NewSubscriber(client *redis.Client, channel string, hub Broadcaster, logger *slog.Logger) *Subscriber {
	return &Subscriber{client: client, channel: channel, hub: hub, logger: logger}
}

// Run subscribes and processes messages until ctx is cancelled. Intended to
// run as a single long-lived goroutine per process, started from main
// alongside the payout worker's goroutines.
func (s *Subscriber) Run(ctx context.Context) {
	defer s.recoverAndLog()

	sub := s.client.Subscribe(ctx, s.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("relay.Subscriber: shutting down")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.dispatch(msg.Payload)
		}
	}
}

func (s *Subscriber) dispatch(payload string) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		s.logger.Error("relay.Subscriber: malformed event", "err", err)
		return
	}
	switch evt.Kind {
	case KindOddsUpdate:
		s.hub.BroadcastOdds(evt.BetID, toWSOptions(evt.Options))
	case KindBetResolved:
		s.hub.BroadcastBetResolved(evt.BetID, evt.ResultOptionID)
	case KindNewBet:
		s.hub.BroadcastNewBet(evt.BetID, evt.Title, evt.ClosesAt, toWSOptions(evt.Options))
	default:
		s.logger.Warn("relay.Subscriber: unknown event kind", "kind", evt.Kind)
	}
}

// toWSOptions decodes each option's string-encoded odds back into
// decimal.Decimal, dropping any option whose odds fail to parse rather than
// broadcasting a zero value that could be mistaken for a real quote.
func toWSOptions(opts []EventOption) []ws.OptionOdds {
	out := make([]ws.OptionOdds, 0, len(opts))
	for _, o := range opts {
		odds, err := decimal.NewFromString(o.Odds)
		if err != nil {
			continue
		}
		out = append(out, ws.OptionOdds{OptionID: o.OptionID, Label: o.Label, Odds: odds})
	}
	return out
}

func (s *Subscriber) recoverAndLog() {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in relay subscriber", "panic", r)
	}
}
