package domain_test

import (
	"testing"

	"github.com/campusexchange/points/internal/domain"
)

func TestOffer_Unbounded(t *testing.T) {
	unbounded := &domain.Offer{MaxAcceptances: nil}
	if !unbounded.Unbounded() {
		t.Error("nil MaxAcceptances should be unbounded")
	}

	cap5 := int64(5)
	bounded := &domain.Offer{MaxAcceptances: &cap5}
	if bounded.Unbounded() {
		t.Error("non-nil MaxAcceptances should not be unbounded")
	}
}

func TestOffer_HasCapacity(t *testing.T) {
	cap2 := int64(2)

	atCapacity := &domain.Offer{MaxAcceptances: &cap2, AcceptedCount: 2}
	if atCapacity.HasCapacity() {
		t.Error("offer at cap should report no capacity")
	}

	underCapacity := &domain.Offer{MaxAcceptances: &cap2, AcceptedCount: 1}
	if !underCapacity.HasCapacity() {
		t.Error("offer under cap should report capacity")
	}

	unbounded := &domain.Offer{MaxAcceptances: nil, AcceptedCount: 1_000_000}
	if !unbounded.HasCapacity() {
		t.Error("unbounded offer should always have capacity")
	}
}

func TestOffer_RecomputeActive(t *testing.T) {
	cap1 := int64(1)
	o := &domain.Offer{MaxAcceptances: &cap1, AcceptedCount: 0, IsActive: true}
	o.RecomputeActive()
	if !o.IsActive {
		t.Error("offer with remaining capacity should stay active")
	}

	o.AcceptedCount = 1
	o.RecomputeActive()
	if o.IsActive {
		t.Error("offer at cap should become inactive after recompute")
	}
}

// TestOffer_AcceptanceFee validates the 2% floor fee on offer acceptance.
//
//	Scenario: pointsCost = 250 → fee = floor(250 × 2 / 100) = 5
func TestOffer_AcceptanceFee(t *testing.T) {
	o := &domain.Offer{PointsCost: 250}
	if fee := o.AcceptanceFee(); fee != 5 {
		t.Errorf("AcceptanceFee() = %d, want 5", fee)
	}

	// Sub-50-point costs floor to zero fee.
	small := &domain.Offer{PointsCost: 49}
	if fee := small.AcceptanceFee(); fee != 0 {
		t.Errorf("AcceptanceFee(49) = %d, want 0", fee)
	}
}

func TestValidRating(t *testing.T) {
	cases := []struct {
		rating int
		want   bool
	}{
		{0, false},
		{1, true},
		{3, true},
		{5, true},
		{6, false},
		{-1, false},
	}
	for _, c := range cases {
		if got := domain.ValidRating(c.rating); got != c.want {
			t.Errorf("ValidRating(%d) = %v, want %v", c.rating, got, c.want)
		}
	}
}
