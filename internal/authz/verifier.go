// Package authz implements JWT verification over a rotating secret set and
// per-user permission resolution with a TTL cache (C2).
package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/domain"
)

// Claims extends jwt.RegisteredClaims with the application's token type,
// generalizing the teacher's AppClaims — here with two genuinely distinct
// signing secrets is unnecessary since §4.2 specifies one rotating *set* of
// secrets used for both signing and verification; TokenType still
// differentiates access from refresh tokens within that set.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"` // "access" or "refresh"
}

// SecretStore is the narrow read interface Verifier needs from the RBAC
// repository — declared locally so this package doesn't import repository
// directly (same cross-package-interface idiom as the teacher's
// Rebalancer/Broadcaster/Refunder interfaces).
type SecretStore interface {
	ActiveSecrets(ctx context.Context, asOf time.Time) ([]domain.AuthSecret, error)
}

// Verifier holds the rotating AuthSecret set, refreshed from storage with a
// 60s TTL (§4.2). Verification tries every non-expired secret; signing
// always uses the current primary.
type Verifier struct {
	store SecretStore
	ttl   time.Duration

	mu        sync.RWMutex
	secrets   []domain.AuthSecret
	fetchedAt time.Time
}

// NewVerifier constructs a Verifier. Call Refresh once at startup before
// serving any request so the secret set is warm.
func NewVerifier(store SecretStore, ttl time.Duration) *Verifier {
	return &Verifier{store: store, ttl: ttl}
}

// Refresh reloads the secret set from storage unconditionally.
func (v *Verifier) Refresh(ctx context.Context) error {
	secrets, err := v.store.ActiveSecrets(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("authz.Verifier.Refresh: %w", err)
	}
	v.mu.Lock()
	v.secrets = secrets
	v.fetchedAt = time.Now()
	v.mu.Unlock()
	return nil
}

// ensureFresh refreshes the cached set if it is older than ttl.
func (v *Verifier) ensureFresh(ctx context.Context) error {
	v.mu.RLock()
	stale := time.Since(v.fetchedAt) > v.ttl
	v.mu.RUnlock()
	if !stale {
		return nil
	}
	return v.Refresh(ctx)
}

func (v *Verifier) snapshot() []domain.AuthSecret {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.AuthSecret, len(v.secrets))
	copy(out, v.secrets)
	return out
}

// primary returns the current signing secret.
func (v *Verifier) primary() (domain.AuthSecret, error) {
	for _, s := range v.snapshot() {
		if s.IsPrimary {
			return s, nil
		}
	}
	return domain.AuthSecret{}, fmt.Errorf("authz: no primary secret loaded")
}

// Sign produces a token of the given type for userID using the primary secret.
func (v *Verifier) Sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, error) {
	primary, err := v.primary()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: tokenType,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(primary.Secret))
	if err != nil {
		return "", fmt.Errorf("authz.Sign: %w", err)
	}
	return signed, nil
}

// Verify tries the token against every active, non-expired secret in turn;
// the first successful parse wins (§4.2). It refreshes the cached secret
// set first if it has gone stale past its TTL.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	if err := v.ensureFresh(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var lastErr error
	for _, secret := range v.snapshot() {
		if secret.Expired(now) {
			continue
		}
		claims, err := parseWith(tokenString, secret.Secret)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no active secrets to verify against")
	}
	return nil, domain.ErrTokenInvalid
}

func parseWith(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
