package authz_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campusexchange/points/internal/authz"
)

type countingPermSource struct {
	calls int64
	perms []string
}

func (s *countingPermSource) PermissionsForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	atomic.AddInt64(&s.calls, 1)
	return s.perms, nil
}

func TestPermissionCache_CachesWithinTTL(t *testing.T) {
	src := &countingPermSource{perms: []string{"admin.access"}}
	cache := authz.NewPermissionCache(src, time.Minute)
	userID := uuid.New()

	for i := 0; i < 5; i++ {
		set, err := cache.Get(context.Background(), userID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if _, ok := set["admin.access"]; !ok {
			t.Fatalf("expected admin.access in permission set")
		}
	}

	if calls := atomic.LoadInt64(&src.calls); calls != 1 {
		t.Errorf("source called %d times, want 1 (should be cached)", calls)
	}
}

func TestPermissionCache_RefreshesAfterTTL(t *testing.T) {
	src := &countingPermSource{perms: []string{"admin.access"}}
	cache := authz.NewPermissionCache(src, time.Millisecond)
	userID := uuid.New()

	if _, err := cache.Get(context.Background(), userID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.Get(context.Background(), userID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if calls := atomic.LoadInt64(&src.calls); calls != 2 {
		t.Errorf("source called %d times, want 2 (TTL should have expired)", calls)
	}
}

func TestPermissionCache_InvalidateForcesRefresh(t *testing.T) {
	src := &countingPermSource{perms: []string{"admin.access"}}
	cache := authz.NewPermissionCache(src, time.Hour)
	userID := uuid.New()

	if _, err := cache.Get(context.Background(), userID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Invalidate(userID)
	if _, err := cache.Get(context.Background(), userID); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if calls := atomic.LoadInt64(&src.calls); calls != 2 {
		t.Errorf("source called %d times, want 2 (invalidate should bust the cache)", calls)
	}
}

func TestPermissionCache_DifferentUsersDoNotShareEntries(t *testing.T) {
	src := &countingPermSource{perms: []string{"admin.access"}}
	cache := authz.NewPermissionCache(src, time.Minute)

	if _, err := cache.Get(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := cache.Get(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if calls := atomic.LoadInt64(&src.calls); calls != 2 {
		t.Errorf("source called %d times, want 2 (one per distinct user)", calls)
	}
}
