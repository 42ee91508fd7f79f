package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/domain"
)

// memSecretStore is a fixed, in-memory SecretStore backing the Verifier
// tests — no database required.
type memSecretStore struct {
	secrets []domain.AuthSecret
}

func (m memSecretStore) ActiveSecrets(ctx context.Context, asOf time.Time) ([]domain.AuthSecret, error) {
	return m.secrets, nil
}

func newTestVerifier(t *testing.T, secrets ...domain.AuthSecret) *authz.Verifier {
	t.Helper()
	v := authz.NewVerifier(memSecretStore{secrets: secrets}, time.Minute)
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return v
}

func primarySecret(secret string) domain.AuthSecret {
	return domain.AuthSecret{ID: uuid.New(), Secret: secret, IsPrimary: true, CreatedAt: time.Now()}
}

func TestVerifier_SignThenVerify_RoundTrips(t *testing.T) {
	v := newTestVerifier(t, primarySecret("primary-secret-value-123456"))

	userID := uuid.New()
	token, err := v.Sign(userID, "access", 15*time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != userID.String() {
		t.Errorf("claims.Subject = %q, want %q", claims.Subject, userID.String())
	}
	if claims.TokenType != "access" {
		t.Errorf("claims.TokenType = %q, want access", claims.TokenType)
	}
}

// TestVerifier_RotatedSecret_StillVerifiesOldTokens confirms tokens signed
// under a secret that has since been demoted from primary still verify, as
// long as that secret remains in the active set (the whole point of §4.2's
// rotation design — old tokens survive a rotation until they expire).
func TestVerifier_RotatedSecret_StillVerifiesOldTokens(t *testing.T) {
	oldSecret := primarySecret("old-secret-value-abcdefgh")
	v := newTestVerifier(t, oldSecret)

	userID := uuid.New()
	token, err := v.Sign(userID, "access", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Rotate: old secret is demoted (no longer primary) but still active;
	// a new primary is introduced.
	rotated := oldSecret
	rotated.IsPrimary = false
	newPrimary := primarySecret("new-secret-value-ijklmnop")

	v2 := authz.NewVerifier(memSecretStore{secrets: []domain.AuthSecret{rotated, newPrimary}}, time.Minute)
	if err := v2.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := v2.Verify(context.Background(), token); err != nil {
		t.Errorf("token signed under demoted secret should still verify, got err: %v", err)
	}
}

func TestVerifier_Verify_RejectsTokenFromUnknownSecret(t *testing.T) {
	v1 := newTestVerifier(t, primarySecret("secret-one-abcdefghijkl"))
	userID := uuid.New()
	token, err := v1.Sign(userID, "access", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	v2 := newTestVerifier(t, primarySecret("secret-two-zyxwvutsrqpo"))
	if _, err := v2.Verify(context.Background(), token); err == nil {
		t.Error("token signed under an unknown secret should fail verification")
	}
}

func TestVerifier_Verify_RejectsExpiredSecret(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	secret := domain.AuthSecret{
		ID: uuid.New(), Secret: "expiring-secret-abcdefghi", IsPrimary: true,
		ExpiresAt: &expired,
	}
	// Sign directly against a verifier where the secret is still fresh...
	signingV := authz.NewVerifier(memSecretStore{secrets: []domain.AuthSecret{
		{ID: secret.ID, Secret: secret.Secret, IsPrimary: true},
	}}, time.Minute)
	if err := signingV.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	token, err := signingV.Sign(uuid.New(), "access", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// ...but verify against a store reporting that same secret as expired.
	v := newTestVerifier(t, secret)
	if _, err := v.Verify(context.Background(), token); err == nil {
		t.Error("expired secret should not be used to verify, even if the signature matches")
	}
}

func TestVerifier_Sign_NoPrimary_Errors(t *testing.T) {
	nonPrimary := domain.AuthSecret{ID: uuid.New(), Secret: "not-primary-abcdefghijk", IsPrimary: false}
	v := newTestVerifier(t, nonPrimary)

	if _, err := v.Sign(uuid.New(), "access", time.Minute); err == nil {
		t.Error("Sign should fail when no secret is marked primary")
	}
}
