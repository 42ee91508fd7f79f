package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/ws"
)

// fakeBroadcaster records the last call made to it, standing in for
// ws.Hub so dispatch can be exercised without a real WebSocket hub.
type fakeBroadcaster struct {
	oddsCalls     []ws.OptionOdds
	oddsBetID     uuid.UUID
	resolvedBetID uuid.UUID
	resultOption  uuid.UUID
	newBetTitle   string
}

func (f *fakeBroadcaster) BroadcastOdds(betID uuid.UUID, options []ws.OptionOdds) {
	f.oddsBetID = betID
	f.oddsCalls = options
}

func (f *fakeBroadcaster) BroadcastBetResolved(betID, resultOptionID uuid.UUID) {
	f.resolvedBetID = betID
	f.resultOption = resultOptionID
}

func (f *fakeBroadcaster) BroadcastNewBet(betID uuid.UUID, title string, closesAt time.Time, options []ws.OptionOdds) {
	f.newBetTitle = title
}

func testSubscriber(hub Broadcaster) *Subscriber {
	return &Subscriber{hub: hub, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestOddsUpdateEvent_RoundTripsThroughDispatch(t *testing.T) {
	betID := uuid.New()
	options := []domain.BetOption{
		{ID: uuid.New(), Label: "yes", CurrentOdds: decimal.NewFromFloat(1.75)},
		{ID: uuid.New(), Label: "no", CurrentOdds: decimal.NewFromFloat(2.10)},
	}
	evt := OddsUpdateEvent(betID, options)

	hub := &fakeBroadcaster{}
	sub := testSubscriber(hub)

	payload := marshalEvent(t, evt)
	sub.dispatch(payload)

	if hub.oddsBetID != betID {
		t.Errorf("dispatched BroadcastOdds betID = %v, want %v", hub.oddsBetID, betID)
	}
	if len(hub.oddsCalls) != 2 {
		t.Fatalf("dispatched options len = %d, want 2", len(hub.oddsCalls))
	}
	if !hub.oddsCalls[0].Odds.Equal(decimal.NewFromFloat(1.75)) {
		t.Errorf("first option odds = %s, want 1.75", hub.oddsCalls[0].Odds)
	}
}

func TestBetResolvedEvent_RoundTripsThroughDispatch(t *testing.T) {
	betID, resultID := uuid.New(), uuid.New()
	evt := BetResolvedEvent(betID, resultID)

	hub := &fakeBroadcaster{}
	sub := testSubscriber(hub)
	sub.dispatch(marshalEvent(t, evt))

	if hub.resolvedBetID != betID || hub.resultOption != resultID {
		t.Errorf("dispatch did not forward resolved bet correctly: got (%v,%v)", hub.resolvedBetID, hub.resultOption)
	}
}

func TestNewBetEvent_RoundTripsThroughDispatch(t *testing.T) {
	betID := uuid.New()
	evt := NewBetEvent(betID, "will it snow", time.Now().Add(time.Hour), nil)

	hub := &fakeBroadcaster{}
	sub := testSubscriber(hub)
	sub.dispatch(marshalEvent(t, evt))

	if hub.newBetTitle != "will it snow" {
		t.Errorf("dispatch did not forward new bet title: got %q", hub.newBetTitle)
	}
}

func TestDispatch_MalformedPayload_DoesNotPanic(t *testing.T) {
	hub := &fakeBroadcaster{}
	sub := testSubscriber(hub)
	sub.dispatch("{not json")
	// No broadcaster method should have fired.
	if hub.oddsBetID != uuid.Nil || hub.resolvedBetID != uuid.Nil {
		t.Error("malformed payload should not trigger any broadcast")
	}
}

func TestDispatch_UnknownKind_IsIgnored(t *testing.T) {
	hub := &fakeBroadcaster{}
	sub := testSubscriber(hub)
	sub.dispatch(`{"kind":"something_else","bet_id":"` + uuid.New().String() + `"}`)

	if hub.oddsBetID != uuid.Nil || hub.resolvedBetID != uuid.Nil || hub.newBetTitle != "" {
		t.Error("unknown event kind should not trigger any broadcast")
	}
}

func TestToWSOptions_DropsUnparsableOdds(t *testing.T) {
	opts := []EventOption{
		{OptionID: uuid.New(), Label: "good", Odds: "1.50"},
		{OptionID: uuid.New(), Label: "bad", Odds: "not-a-number"},
	}
	out := toWSOptions(opts)
	if len(out) != 1 {
		t.Fatalf("toWSOptions len = %d, want 1 (one malformed entry dropped)", len(out))
	}
	if out[0].Label != "good" {
		t.Errorf("surviving option = %q, want good", out[0].Label)
	}
}

func marshalEvent(t *testing.T, evt Event) string {
	t.Helper()
	b, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return string(b)
}
