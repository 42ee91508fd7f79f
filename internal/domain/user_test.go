package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/domain"
)

func TestUser_ToPublicProfile(t *testing.T) {
	u := &domain.User{
		ID:           uuid.New(),
		Email:        "student@campus.edu",
		PasswordHash: "should-not-leak",
		Points:       5000,
		Profile: domain.Profile{
			Alias:       "quant42",
			Description: "buys yes on everything",
			Quote:       "fortune favors the levered",
			Visibility:  domain.VisibilityPrivate,
		},
	}

	pub := u.ToPublicProfile()
	if pub.Alias != "quant42" || pub.Description != u.Description || pub.Quote != u.Quote {
		t.Errorf("ToPublicProfile() did not copy profile fields: %+v", pub)
	}
	if pub.ID != u.ID {
		t.Errorf("ToPublicProfile() ID mismatch")
	}
}

func TestPrincipal_Has(t *testing.T) {
	p := domain.Principal{
		Permissions: map[string]struct{}{
			domain.PermAdminAccess: {},
		},
	}
	if !p.Has(domain.PermAdminAccess) {
		t.Error("principal should have admin.access")
	}
	if p.Has(domain.PermAdminSuper) {
		t.Error("principal should not have admin.super")
	}
}

func TestAuthSecret_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	noExpiry := domain.AuthSecret{ExpiresAt: nil}
	if noExpiry.Expired(now) {
		t.Error("secret with no expiry should never be expired")
	}

	past := now.Add(-time.Hour)
	expired := domain.AuthSecret{ExpiresAt: &past}
	if !expired.Expired(now) {
		t.Error("secret with ExpiresAt in the past should be expired")
	}

	future := now.Add(time.Hour)
	fresh := domain.AuthSecret{ExpiresAt: &future}
	if fresh.Expired(now) {
		t.Error("secret with ExpiresAt in the future should not be expired")
	}
}

func TestRefreshToken_Active(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	valid := domain.RefreshToken{ExpiresAt: now.Add(time.Hour)}
	if !valid.Active(now) {
		t.Error("unexpired, unrevoked token should be active")
	}

	expired := domain.RefreshToken{ExpiresAt: now.Add(-time.Hour)}
	if expired.Active(now) {
		t.Error("expired token should not be active")
	}

	revokedAt := now.Add(-time.Minute)
	revoked := domain.RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}
	if revoked.Active(now) {
		t.Error("revoked token should not be active even if unexpired")
	}
}
