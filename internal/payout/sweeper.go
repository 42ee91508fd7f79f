package payout

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sweeper periodically moves retry_wait jobs whose backoff has elapsed back
// onto the durable queue, grounded on the teacher's ticker-loop scheduler
// idiom (panic-recovery deferred, select on ctx.Done vs ticker.C).
type Sweeper struct {
	queue   Queue
	payouts PayoutRepo
	logger  *slog.Logger
	every   time.Duration
}

// NewSweeper constructs a Sweeper that scans every `every`.
func NewSweeper(q Queue, payouts PayoutRepo, logger *slog.Logger, every time.Duration) *Sweeper {
	return &Sweeper{queue: q, payouts: payouts, logger: logger, every: every}
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	defer s.recoverAndLog()

	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("payout.Sweeper: shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	due, err := s.payouts.DueForRetry(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("payout.Sweeper: DueForRetry", "err", err)
		return
	}
	for _, job := range due {
		if err := s.requeue(ctx, job.ID); err != nil {
			s.logger.Error("payout.Sweeper: requeue failed", "job", job.ID, "err", err)
		}
	}
}

// requeue flips a job back to queued and LPUSHes it within the same
// transaction's effective window — the DB flip commits first, then the
// LPUSH; a crash between the two just means the next sweep pass finds the
// job still queued and LPUSHes it again, which is harmless (ClaimTx is
// idempotent on status=queued).
func (s *Sweeper) requeue(ctx context.Context, jobID uuid.UUID) error {
	tx, err := s.payouts.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.payouts.RequeueTx(ctx, tx, jobID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.queue.Push(ctx, jobID)
}

func (s *Sweeper) recoverAndLog() {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in payout sweeper", "panic", r)
	}
}
