package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusexchange/points/internal/domain"
)

// TestCashoutAmount validates early-exit ("sell") maths.
//
//	Scenario: stake=500, odds at purchase = 1.5x, current odds = 2.0x
//	  rawCashout = 500 × 2.0 / 1.5 ≈ 666.67
//	  cashout    = floor(666.67)   = 666
//	  fee        = floor(666 × 2 / 100) = 13
//	  net        = 666 - 13 = 653
func TestCashoutAmount(t *testing.T) {
	pos := &domain.BetPosition{
		StakePoints:    500,
		OddsAtPurchase: decimal.NewFromFloat(1.5),
	}
	cashout := pos.CashoutAmount(decimal.NewFromFloat(2.0))
	if cashout != 666 {
		t.Errorf("CashoutAmount = %d, want 666", cashout)
	}

	fee := domain.CashoutFee(cashout)
	if fee != 13 {
		t.Errorf("CashoutFee(666) = %d, want 13", fee)
	}
	net := cashout - fee
	if net != 653 {
		t.Errorf("net = %d, want 653", net)
	}
}

// TestCashoutAmount_OddsDrop confirms a position entered at better odds than
// the option's current odds still floors to a non-negative cashout.
func TestCashoutAmount_OddsDrop(t *testing.T) {
	pos := &domain.BetPosition{
		StakePoints:    1000,
		OddsAtPurchase: decimal.NewFromFloat(3.0),
	}
	cashout := pos.CashoutAmount(decimal.NewFromFloat(1.2))
	// 1000 * 1.2 / 3.0 = 400
	if cashout != 400 {
		t.Errorf("CashoutAmount = %d, want 400", cashout)
	}
}

// TestSettlementNet validates winning-position settlement maths.
//
//	Scenario: stake=1000, oddsAtPurchase=2.5
//	  gross = floor(1000 × 2.5) = 2500
//	  fee   = floor(2500 × 2 / 100) = 50
//	  net   = 2500 - 50 = 2450
func TestSettlementNet(t *testing.T) {
	pos := &domain.BetPosition{
		StakePoints:    1000,
		OddsAtPurchase: decimal.NewFromFloat(2.5),
	}
	gross, fee, net := pos.SettlementNet()
	if gross != 2500 {
		t.Errorf("gross = %d, want 2500", gross)
	}
	if fee != 50 {
		t.Errorf("fee = %d, want 50", fee)
	}
	if net != 2450 {
		t.Errorf("net = %d, want 2450", net)
	}
}

func TestValidOdds(t *testing.T) {
	cases := []struct {
		odds string
		want bool
	}{
		{"1.01", true},
		{"1.00", false},
		{"0.99", false},
		{"5.00", true},
	}
	for _, c := range cases {
		odds, err := decimal.NewFromString(c.odds)
		if err != nil {
			t.Fatalf("parse %q: %v", c.odds, err)
		}
		if got := domain.ValidOdds(odds); got != c.want {
			t.Errorf("ValidOdds(%s) = %v, want %v", c.odds, got, c.want)
		}
	}
}

func TestBet_IsOpenForBuy(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	open := &domain.Bet{Status: domain.BetStatusOpen, ClosesAt: future}
	if !open.IsOpenForBuy(now) {
		t.Error("open bet before closesAt should be open for buy")
	}

	closedByTime := &domain.Bet{Status: domain.BetStatusOpen, ClosesAt: past}
	if closedByTime.IsOpenForBuy(now) {
		t.Error("bet past closesAt should not be open for buy")
	}

	resolving := &domain.Bet{Status: domain.BetStatusResolving, ClosesAt: future}
	if resolving.IsOpenForBuy(now) {
		t.Error("resolving bet should not be open for buy")
	}
}

func TestBet_SellAllowed(t *testing.T) {
	allowed := []domain.BetStatus{domain.BetStatusOpen, domain.BetStatusClosed}
	forbidden := []domain.BetStatus{domain.BetStatusResolving, domain.BetStatusResolved, domain.BetStatusCancelled}

	for _, s := range allowed {
		if !(&domain.Bet{Status: s}).SellAllowed() {
			t.Errorf("status %s should allow sell", s)
		}
	}
	for _, s := range forbidden {
		if (&domain.Bet{Status: s}).SellAllowed() {
			t.Errorf("status %s should forbid sell", s)
		}
	}
}

func TestBet_CancelAllowed(t *testing.T) {
	if !(&domain.Bet{Status: domain.BetStatusOpen}).CancelAllowed() {
		t.Error("open bet should allow cancel")
	}
	if (&domain.Bet{Status: domain.BetStatusResolved}).CancelAllowed() {
		t.Error("resolved bet should forbid cancel")
	}
	if (&domain.Bet{Status: domain.BetStatusResolving}).CancelAllowed() {
		t.Error("resolving bet should forbid cancel")
	}
}

func TestPayoutJob_Revivable(t *testing.T) {
	revivable := []domain.PayoutJobStatus{domain.PayoutStatusFailed, domain.PayoutStatusDead, domain.PayoutStatusRetryWait}
	notRevivable := []domain.PayoutJobStatus{domain.PayoutStatusQueued, domain.PayoutStatusProcessing, domain.PayoutStatusCompleted}

	for _, s := range revivable {
		if !(&domain.PayoutJob{Status: s}).Revivable() {
			t.Errorf("status %s should be revivable", s)
		}
	}
	for _, s := range notRevivable {
		if (&domain.PayoutJob{Status: s}).Revivable() {
			t.Errorf("status %s should not be revivable", s)
		}
	}
}
