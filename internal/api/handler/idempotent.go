package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/api/middleware"
	"github.com/campusexchange/points/internal/apperr"
	"github.com/campusexchange/points/internal/idempotency"
)

// withIdempotency runs fn under the §4.3 idempotency contract when the
// caller supplied an Idempotency-Key header, and directly otherwise.
// bodyForHash is the already-bound request, re-marshaled by the caller —
// hashing the parsed struct rather than the raw request body sidesteps
// having to rewind gin's request body reader a second time.
//
// The wrapper's own bookkeeping transaction is separate from whatever
// transaction fn opens internally: every service method manages its own
// atomic unit of work, so the idempotency row and fn's writes commit
// separately. The bookkeeping transaction stays open while fn runs: the
// key's (idemKey, userID, route, method) row is inserted and re-SELECTed FOR
// UPDATE before fn runs, so two concurrent requests on the same key still
// serialize on that row. When fn fails with an application error, the
// bookkeeping transaction is still committed so the captured error response
// is replayed to a retry with the same key.
func withIdempotency(
	c *gin.Context,
	db *sqlx.DB,
	wrapper *idempotency.Wrapper,
	route string,
	bodyForHash []byte,
	fn func(ctx context.Context) (idempotency.Result, error),
) {
	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		result, err := fn(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(result.Status, result.Body)
		return
	}

	userID := middleware.GetUserID(c)

	tx, err := db.BeginTxx(c.Request.Context(), nil)
	if err != nil {
		fail(c, err)
		return
	}
	defer tx.Rollback()

	hash := idempotency.CanonicalRequest(c.Request.Method, ginParamsMap(c), nil, bodyForHash)
	result, _, err := wrapper.Run(c.Request.Context(), tx, idemKey, userID, route, c.Request.Method, hash, fn)
	if err != nil {
		var appErr *apperr.Error
		if c.Request.Context().Err() == nil && errors.As(err, &appErr) {
			// Run captured this error as the key's completed response.
			_ = tx.Commit()
		}
		fail(c, err)
		return
	}
	if err := tx.Commit(); err != nil {
		fail(c, err)
		return
	}

	status := result.Status
	if status == 0 {
		status = 200
	}
	c.JSON(status, result.Body)
}

func ginParamsMap(c *gin.Context) map[string]string {
	params := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		params[p.Key] = p.Value
	}
	return params
}
