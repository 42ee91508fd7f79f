// Package queue implements the durable FIFO payout job queue (C6) on top of
// Redis lists: LPUSH to enqueue, BRPOP to block-and-pop. A job surviving in
// Postgres as a payout_jobs row but missing from this queue (process crash
// between DB commit and LPUSH) is recovered by the sweeper's retry_wait scan
// rather than by the queue itself — the queue only carries the "something is
// ready, go look" signal, never the job's state.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when no job arrived before the poll timeout.
var ErrEmpty = errors.New("queue: empty")

// PayoutQueue is a Redis-backed FIFO of payout job ids.
type PayoutQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration // passed straight to BRPOP
}

// New constructs a PayoutQueue bound to a single Redis list key.
func New(client *redis.Client, key string, popTimeout time.Duration) *PayoutQueue {
	return &PayoutQueue{client: client, key: key, timeout: popTimeout}
}

// Push enqueues a payout job id. Called right after the job row commits so
// a worker can pick it up without waiting for the sweeper's next pass.
func (q *PayoutQueue) Push(ctx context.Context, jobID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return fmt.Errorf("queue.Push: %w", err)
	}
	return nil
}

// Pop blocks up to the configured poll timeout for a job id, returning
// ErrEmpty if none arrives in time so the caller's loop can re-check for
// shutdown in between blocking calls.
func (q *PayoutQueue) Pop(ctx context.Context) (uuid.UUID, error) {
	res, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrEmpty
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue.Pop: %w", err)
	}
	// BRPop returns [key, value]; value is the job id we pushed.
	if len(res) != 2 {
		return uuid.Nil, fmt.Errorf("queue.Pop: unexpected reply shape %v", res)
	}
	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue.Pop: malformed job id %q: %w", res[1], err)
	}
	return id, nil
}

// Len reports the current queue depth, used for health/metrics endpoints.
func (q *PayoutQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue.Len: %w", err)
	}
	return n, nil
}
