// Package idempotency implements the at-most-once execution wrapper (C3).
// The upsert and the captured response are written in the transaction the
// caller passes to Run. The handler receives only ctx, so whatever it writes
// commits in its own transaction, not atomically with the idempotency row.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/apperr"
	"github.com/campusexchange/points/internal/domain"
)

// Store is the narrow repository interface the wrapper depends on.
type Store interface {
	UpsertProcessingTx(ctx context.Context, tx *sqlx.Tx, idemKey string, userID uuid.UUID, route, method, requestHash string) (*domain.IdempotencyKey, bool, error)
	CompleteTx(ctx context.Context, tx *sqlx.Tx, idemKey string, userID uuid.UUID, route, method string, responseStatus int, responseBody string) error
}

// Wrapper implements the §4.3 contract.
type Wrapper struct {
	store Store
}

// New constructs a Wrapper.
func New(store Store) *Wrapper {
	return &Wrapper{store: store}
}

// Result is what a wrapped handler must return so the wrapper can capture
// and, on replay, reproduce it verbatim.
type Result struct {
	Status int
	Body   any
}

// CanonicalRequest builds the sha256(canonical(method,params,query,body))
// hash described in §4.3 step 1. params/query/body may be nil.
func CanonicalRequest(method string, params, query map[string]string, body []byte) string {
	canon := struct {
		Method string            `json:"method"`
		Params map[string]string `json:"params,omitempty"`
		Query  map[string]string `json:"query,omitempty"`
		Body   string            `json:"body,omitempty"`
	}{Method: method, Params: params, Query: query, Body: string(body)}

	b, _ := json.Marshal(canon) // canonical struct field order — deterministic by construction
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Run executes the §4.3 contract: upsert a processing row, resolve
// conflicts, invoke handler exactly once on a fresh key, and persist its
// result. replayed is true when the response returned is a replay of a
// previously completed request rather than a fresh execution.
func (w *Wrapper) Run(
	ctx context.Context,
	tx *sqlx.Tx,
	idemKey string,
	userID uuid.UUID,
	route, method string,
	requestHash string,
	handler func(ctx context.Context) (Result, error),
) (result Result, replayed bool, err error) {
	row, created, err := w.store.UpsertProcessingTx(ctx, tx, idemKey, userID, route, method, requestHash)
	if err != nil {
		return Result{}, false, fmt.Errorf("idempotency.Run: upsert: %w", err)
	}

	if !created {
		if row.RequestHash != requestHash {
			return Result{}, false, domain.ErrIdempotencyPayloadMismatch
		}
		switch row.Status {
		case domain.IdempotencyStatusCompleted:
			var body any
			if row.ResponseBody != nil {
				_ = json.Unmarshal([]byte(*row.ResponseBody), &body)
			}
			status := 200
			if row.ResponseStatus != nil {
				status = *row.ResponseStatus
			}
			return Result{Status: status, Body: body}, true, nil
		default: // processing
			return Result{}, false, domain.ErrIdempotencyInFlight
		}
	}

	result, err = handler(ctx)
	if err != nil {
		var appErr *apperr.Error
		if ctx.Err() == nil && errors.As(err, &appErr) {
			// A recognized application error (bad request, conflict,
			// insufficient points, ...) is still a completed attempt as far
			// as the caller's retry is concerned — capture its mapped
			// status/body so a replay with the same key gets the identical
			// response back instead of re-running the handler. The first
			// call still returns err so its own caller renders it normally.
			if captureErr := w.captureError(ctx, tx, idemKey, userID, route, method, err); captureErr != nil {
				return Result{}, false, fmt.Errorf("idempotency.Run: capture error: %w", captureErr)
			}
			return Result{}, false, err
		}
		// A crash or context cancellation leaves the row "processing" for
		// this attempt with no captured response; whether the row survives
		// is up to the caller's transaction (withIdempotency rolls it back,
		// so the caller's next identical request starts fresh).
		return Result{}, false, err
	}

	bodyJSON, marshalErr := json.Marshal(result.Body)
	if marshalErr != nil {
		return Result{}, false, fmt.Errorf("idempotency.Run: marshal response: %w", marshalErr)
	}

	if err = w.store.CompleteTx(ctx, tx, idemKey, userID, route, method, result.Status, string(bodyJSON)); err != nil {
		return Result{}, false, fmt.Errorf("idempotency.Run: complete: %w", err)
	}

	return result, false, nil
}

// captureError persists the {ok:false,code,message,issues?} envelope a
// handler's application error would produce at the HTTP boundary, mirroring
// handler.fail's shape exactly so a replay is byte-identical to what the
// first caller actually saw.
func (w *Wrapper) captureError(
	ctx context.Context,
	tx *sqlx.Tx,
	idemKey string,
	userID uuid.UUID,
	route, method string,
	err error,
) error {
	body := map[string]any{"ok": false, "code": apperr.CodeOf(err), "message": err.Error()}
	if issues := apperr.IssuesOf(err); len(issues) > 0 {
		body["issues"] = issues
	}
	bodyJSON, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return fmt.Errorf("idempotency.captureError: marshal: %w", marshalErr)
	}
	status := apperr.HTTPStatus(apperr.KindOf(err))
	return w.store.CompleteTx(ctx, tx, idemKey, userID, route, method, status, string(bodyJSON))
}
