package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKeyStatus tracks whether a wrapped handler has finished.
type IdempotencyKeyStatus string

const (
	IdempotencyStatusProcessing IdempotencyKeyStatus = "processing"
	IdempotencyStatusCompleted  IdempotencyKeyStatus = "completed"
)

// IdempotencyKey records one at-most-once execution, unique per
// (IdemKey, UserID, Route, Method). RequestHash guards against a client
// reusing the same key with a different payload.
type IdempotencyKey struct {
	IdemKey        string               `db:"idem_key"`
	UserID         uuid.UUID            `db:"user_id"`
	Route          string               `db:"route"`
	Method         string               `db:"method"`
	RequestHash    string               `db:"request_hash"`
	Status         IdempotencyKeyStatus `db:"status"`
	ResponseStatus *int                 `db:"response_status"`
	ResponseBody   *string              `db:"response_body"`
	CreatedAt      time.Time            `db:"created_at"`
	CompletedAt    *time.Time           `db:"completed_at"`
}

// MaxIdempotencyKeyLength is the header length bound from §6.
const MaxIdempotencyKeyLength = 128
