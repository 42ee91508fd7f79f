package authz

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/domain"
)

// UserSource is the narrow read interface Resolver needs for the base user row.
type UserSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Resolver combines token verification, the base user row, and the
// permission cache into a fully-resolved domain.Principal (§9: "Dynamic
// user objects become a small, named AuthenticatedPrincipal record").
type Resolver struct {
	verifier *Verifier
	users    UserSource
	perms    *PermissionCache
}

// NewResolver constructs a Resolver.
func NewResolver(verifier *Verifier, users UserSource, perms *PermissionCache) *Resolver {
	return &Resolver{verifier: verifier, users: users, perms: perms}
}

// Resolve verifies an access token and returns the principal it names.
// Banned users are rejected with a distinct error regardless of token
// validity (§4.2).
func (r *Resolver) Resolve(ctx context.Context, accessToken string) (*domain.Principal, error) {
	claims, err := r.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != "access" {
		return nil, domain.ErrTokenInvalid
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz.Resolve: fetch user: %w", err)
	}
	if user.Banned {
		return nil, domain.ErrUserBanned
	}

	permSet, err := r.perms.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("authz.Resolve: fetch permissions: %w", err)
	}

	return &domain.Principal{
		UserID:      userID,
		Email:       user.Email,
		Banned:      user.Banned,
		Permissions: permSet,
	}, nil
}

// InvalidateUser drops userID's cached permission set, called on role
// changes so the 30s staleness window is not observed for that user (§8
// "Authz freshness").
func (r *Resolver) InvalidateUser(userID uuid.UUID) {
	r.perms.Invalidate(userID)
}
