package ws_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/campusexchange/points/internal/ws"
)

func TestHub_Snapshot_EmptyInitially(t *testing.T) {
	h := ws.NewHub(nil)
	snap := h.Snapshot()
	if len(snap) != 0 {
		t.Errorf("fresh hub snapshot should be empty, got %d entries", len(snap))
	}
}

func TestHub_BroadcastOdds_UpdatesSnapshot(t *testing.T) {
	h := ws.NewHub(nil)
	betID := uuid.New()
	options := []ws.OptionOdds{
		{OptionID: uuid.New(), Label: "yes", Odds: decimal.NewFromFloat(1.8)},
		{OptionID: uuid.New(), Label: "no", Odds: decimal.NewFromFloat(2.2)},
	}

	h.BroadcastOdds(betID, options)

	snap := h.Snapshot()
	got, ok := snap[betID]
	if !ok {
		t.Fatalf("snapshot missing bet %s after BroadcastOdds", betID)
	}
	if len(got) != 2 {
		t.Errorf("snapshot options len = %d, want 2", len(got))
	}
}

func TestHub_BroadcastNewBet_SeedsSnapshot(t *testing.T) {
	h := ws.NewHub(nil)
	betID := uuid.New()
	options := []ws.OptionOdds{{OptionID: uuid.New(), Label: "yes", Odds: decimal.NewFromFloat(1.5)}}

	h.BroadcastNewBet(betID, "will it snow", time.Now().Add(24*time.Hour), options)

	snap := h.Snapshot()
	if _, ok := snap[betID]; !ok {
		t.Fatalf("snapshot missing bet %s after BroadcastNewBet", betID)
	}
}

func TestHub_BroadcastBetResolved_RemovesFromSnapshot(t *testing.T) {
	h := ws.NewHub(nil)
	betID := uuid.New()
	options := []ws.OptionOdds{{OptionID: uuid.New(), Label: "yes", Odds: decimal.NewFromFloat(1.5)}}

	h.BroadcastOdds(betID, options)
	if _, ok := h.Snapshot()[betID]; !ok {
		t.Fatalf("precondition failed: bet should be in snapshot before resolution")
	}

	h.BroadcastBetResolved(betID, options[0].OptionID)

	if _, ok := h.Snapshot()[betID]; ok {
		t.Error("resolved bet should be removed from the snapshot")
	}
}

func TestHub_ConnectedCount_StartsAtZero(t *testing.T) {
	h := ws.NewHub(nil)
	if got := h.ConnectedCount(); got != 0 {
		t.Errorf("ConnectedCount() = %d, want 0", got)
	}
}
