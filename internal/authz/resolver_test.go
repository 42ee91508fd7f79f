package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/authz"
	"github.com/campusexchange/points/internal/domain"
)

type fakeUsers struct {
	byID map[uuid.UUID]*domain.User
}

func (f fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

type fixedPerms struct{ names []string }

func (f fixedPerms) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return f.names, nil
}

func newResolver(t *testing.T, user *domain.User, perms ...string) (*authz.Resolver, *authz.Verifier) {
	t.Helper()
	v := authz.NewVerifier(memSecretStore{secrets: []domain.AuthSecret{primarySecret("resolver-test-secret-xyz")}}, time.Minute)
	if err := v.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	users := fakeUsers{byID: map[uuid.UUID]*domain.User{user.ID: user}}
	cache := authz.NewPermissionCache(fixedPerms{names: perms}, time.Minute)
	return authz.NewResolver(v, users, cache), v
}

func TestResolver_Resolve_ValidAccessToken(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "a@campus.edu"}
	resolver, v := newResolver(t, user, domain.PermAdminAccess)

	token, err := v.Sign(user.ID, "access", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	principal, err := resolver.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal.UserID != user.ID {
		t.Errorf("principal.UserID = %v, want %v", principal.UserID, user.ID)
	}
	if !principal.Has(domain.PermAdminAccess) {
		t.Error("principal should carry admin.access")
	}
}

func TestResolver_Resolve_RejectsRefreshToken(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "a@campus.edu"}
	resolver, v := newResolver(t, user)

	refreshToken, err := v.Sign(user.ID, "refresh", time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), refreshToken); err != domain.ErrTokenInvalid {
		t.Errorf("Resolve with refresh token = %v, want ErrTokenInvalid", err)
	}
}

func TestResolver_Resolve_RejectsBannedUser(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "a@campus.edu", Banned: true}
	resolver, v := newResolver(t, user)

	token, err := v.Sign(user.ID, "access", time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), token); err != domain.ErrUserBanned {
		t.Errorf("Resolve for banned user = %v, want ErrUserBanned", err)
	}
}

func TestResolver_Resolve_RejectsGarbageToken(t *testing.T) {
	user := &domain.User{ID: uuid.New(), Email: "a@campus.edu"}
	resolver, _ := newResolver(t, user)

	if _, err := resolver.Resolve(context.Background(), "not.a.jwt"); err == nil {
		t.Error("Resolve should reject a malformed token")
	}
}
