package idempotency_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/apperr"
	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/idempotency"
)

// fakeStore is an in-memory idempotency.Store stand-in. The *sqlx.Tx
// parameter is never dereferenced, so tests can pass nil through Run.
type fakeStore struct {
	completedStatus int
	completedBody   string
	completeCalls   int
}

func (f *fakeStore) UpsertProcessingTx(ctx context.Context, tx *sqlx.Tx, idemKey string, userID uuid.UUID, route, method, requestHash string) (*domain.IdempotencyKey, bool, error) {
	return &domain.IdempotencyKey{IdemKey: idemKey, UserID: userID, Route: route, Method: method, RequestHash: requestHash, Status: domain.IdempotencyStatusProcessing}, true, nil
}

func (f *fakeStore) CompleteTx(ctx context.Context, tx *sqlx.Tx, idemKey string, userID uuid.UUID, route, method string, responseStatus int, responseBody string) error {
	f.completeCalls++
	f.completedStatus = responseStatus
	f.completedBody = responseBody
	return nil
}

func TestRun_ApplicationError_IsCapturedForReplay(t *testing.T) {
	store := &fakeStore{}
	w := idempotency.New(store)

	appErr := apperr.New(apperr.KindInsufficientPoints, "insufficient_points", "not enough points")
	_, replayed, err := w.Run(context.Background(), nil, "key-1", uuid.New(), "POST /bets/:id/buy", "POST", "hash", func(ctx context.Context) (idempotency.Result, error) {
		return idempotency.Result{}, appErr
	})

	if !errors.Is(err, appErr) {
		t.Fatalf("Run error = %v, want the handler's apperr.Error", err)
	}
	if replayed {
		t.Error("Run should not report a fresh execution as replayed")
	}
	if store.completeCalls != 1 {
		t.Fatalf("CompleteTx calls = %d, want 1 (recognized application errors must be captured)", store.completeCalls)
	}
	if store.completedStatus != http.StatusConflict {
		t.Errorf("captured status = %d, want %d", store.completedStatus, http.StatusConflict)
	}
}

func TestRun_CrashError_LeavesRowProcessing(t *testing.T) {
	store := &fakeStore{}
	w := idempotency.New(store)

	_, _, err := w.Run(context.Background(), nil, "key-2", uuid.New(), "POST /bets/:id/buy", "POST", "hash", func(ctx context.Context) (idempotency.Result, error) {
		return idempotency.Result{}, errors.New("boom: db connection reset")
	})

	if err == nil {
		t.Fatal("Run should surface the handler's error")
	}
	if store.completeCalls != 0 {
		t.Errorf("CompleteTx calls = %d, want 0 (a crash must leave the row processing)", store.completeCalls)
	}
}

func TestRun_CancelledContext_LeavesRowProcessing(t *testing.T) {
	store := &fakeStore{}
	w := idempotency.New(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	appErr := apperr.New(apperr.KindConflict, "conflict", "stale odds")
	_, _, err := w.Run(ctx, nil, "key-3", uuid.New(), "POST /bets/:id/buy", "POST", "hash", func(ctx context.Context) (idempotency.Result, error) {
		return idempotency.Result{}, appErr
	})

	if err == nil {
		t.Fatal("Run should surface the handler's error")
	}
	if store.completeCalls != 0 {
		t.Errorf("CompleteTx calls = %d, want 0 (a cancelled request must not capture a replayable response)", store.completeCalls)
	}
}

func TestCanonicalRequest_IsDeterministic(t *testing.T) {
	params := map[string]string{"id": "42"}
	query := map[string]string{"page": "1"}
	body := []byte(`{"amount":100}`)

	h1 := idempotency.CanonicalRequest("POST", params, query, body)
	h2 := idempotency.CanonicalRequest("POST", params, query, body)

	if h1 != h2 {
		t.Errorf("CanonicalRequest should be deterministic for identical input: %q != %q", h1, h2)
	}
	if len(h1) != 64 { // hex-encoded sha256
		t.Errorf("CanonicalRequest hash length = %d, want 64", len(h1))
	}
}

func TestCanonicalRequest_DiffersOnBodyChange(t *testing.T) {
	h1 := idempotency.CanonicalRequest("POST", nil, nil, []byte(`{"amount":100}`))
	h2 := idempotency.CanonicalRequest("POST", nil, nil, []byte(`{"amount":200}`))

	if h1 == h2 {
		t.Error("CanonicalRequest should differ when the request body differs")
	}
}

func TestCanonicalRequest_DiffersOnMethodChange(t *testing.T) {
	body := []byte(`{"amount":100}`)
	h1 := idempotency.CanonicalRequest("POST", nil, nil, body)
	h2 := idempotency.CanonicalRequest("DELETE", nil, nil, body)

	if h1 == h2 {
		t.Error("CanonicalRequest should differ when the HTTP method differs")
	}
}

func TestCanonicalRequest_NilMapsHandledSafely(t *testing.T) {
	h := idempotency.CanonicalRequest("GET", nil, nil, nil)
	if h == "" {
		t.Error("CanonicalRequest should produce a hash even with all-nil inputs")
	}
}
