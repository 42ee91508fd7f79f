// Package payout implements the asynchronous Payout worker (C6): it pops
// job ids off the durable queue, settles the winning/losing positions of
// the resolving bet inside one transaction, and retries with backoff on
// failure up to a configured attempt ceiling before dead-lettering the job.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusexchange/points/internal/domain"
	"github.com/campusexchange/points/internal/queue"
	"github.com/campusexchange/points/internal/relay"
)

// Queue is the narrow interface Worker needs from queue.PayoutQueue.
type Queue interface {
	Pop(ctx context.Context) (uuid.UUID, error)
	Push(ctx context.Context, jobID uuid.UUID) error
}

// Ledger is the narrow interface Worker needs from ledger.Core.
type Ledger interface {
	ApplyDelta(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, delta int64, actor *uuid.UUID, action, reason string, related *uuid.UUID, meta map[string]any) (before, after int64, err error)
	CreditFee(ctx context.Context, tx *sqlx.Tx, fee int64, actor *uuid.UUID, action, reason string, related *uuid.UUID) error
}

// PayoutRepo is the narrow interface Worker needs from repository.PayoutRepository.
type PayoutRepo interface {
	BeginTx(ctx context.Context) (*sqlx.Tx, error)
	ClaimTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) (*domain.PayoutJob, error)
	CompleteTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) error
	FailOrRetry(ctx context.Context, jobID uuid.UUID, attempts, maxAttempts int, backoff time.Duration) error
	DueForRetry(ctx context.Context, asOf time.Time) ([]*domain.PayoutJob, error)
	RequeueTx(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PayoutJob, error)
}

// BetRepo is the narrow interface Worker needs from repository.BetRepository.
type BetRepo interface {
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Bet, error)
	SetResolvedTx(ctx context.Context, tx *sqlx.Tx, betID, resultOptionID uuid.UUID) error
	OpenPositionsForBetTx(ctx context.Context, tx *sqlx.Tx, betID uuid.UUID) ([]*domain.BetPosition, error)
	SetPositionSettledTx(ctx context.Context, tx *sqlx.Tx, positionID uuid.UUID, payout int64) error
	Options(ctx context.Context, betID uuid.UUID) ([]*domain.BetOption, error)
}

// Publisher is the narrow interface Worker needs from relay.Publisher.
type Publisher interface {
	Publish(ctx context.Context, evt relay.Event) error
}

// Worker settles exactly one bet per claimed job.
type Worker struct {
	id          int
	queue       Queue
	payouts     PayoutRepo
	bets        BetRepo
	ledger      Ledger
	publisher   Publisher
	logger      *slog.Logger
	baseBackoff time.Duration
}

// New constructs a Worker. id distinguishes workers in logs when several run
// concurrently against the same queue.
func New(id int, q Queue, payouts PayoutRepo, bets BetRepo, ledger Ledger, publisher Publisher, logger *slog.Logger, baseBackoff time.Duration) *Worker {
	return &Worker{id: id, queue: q, payouts: payouts, bets: bets, ledger: ledger, publisher: publisher, logger: logger, baseBackoff: baseBackoff}
}

// Run pops jobs until ctx is cancelled. Intended to be started as its own
// goroutine — run several for parallel settlement throughput.
func (w *Worker) Run(ctx context.Context) {
	defer w.recoverAndLog()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("payout.Worker: shutting down", "worker", w.id)
			return
		default:
		}

		jobID, err := w.queue.Pop(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("payout.Worker: pop failed", "worker", w.id, "err", err)
			continue
		}

		w.process(ctx, jobID)
	}
}

// process claims and settles one job, recovering from a panic in the
// settlement path so one bad job never kills the worker goroutine.
func (w *Worker) process(ctx context.Context, jobID uuid.UUID) {
	defer w.recoverAndLog()

	if err := w.settle(ctx, jobID); err != nil {
		w.logger.Error("payout.Worker: settle failed", "worker", w.id, "job", jobID, "err", err)
		w.failOrRetry(ctx, jobID)
	}
}

// settle runs in two phases. The claim (status processing, attempts+1)
// commits in its own transaction, so other workers skip the job and a
// failed settlement still counts as an attempt. A second transaction then
// locks the bet and its open positions, credits winners net of the
// settlement fee, marks losers settled with a zero payout, marks the bet
// resolved, and completes the job — all inside one commit so a crash
// mid-settlement leaves nothing half-paid.
func (w *Worker) settle(ctx context.Context, jobID uuid.UUID) error {
	claimTx, err := w.payouts.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("payout.settle: begin claim: %w", err)
	}
	defer claimTx.Rollback()

	job, err := w.payouts.ClaimTx(ctx, claimTx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrPayoutJobNotQueued) {
			// Another worker (or a duplicate queue entry) already claimed
			// this job; nothing to do.
			return nil
		}
		return fmt.Errorf("payout.settle: claim: %w", err)
	}
	if err := claimTx.Commit(); err != nil {
		return fmt.Errorf("payout.settle: commit claim: %w", err)
	}

	tx, err := w.payouts.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("payout.settle: begin: %w", err)
	}
	defer tx.Rollback()

	bet, err := w.bets.GetForUpdate(ctx, tx, job.BetID)
	if err != nil {
		return fmt.Errorf("payout.settle: lock bet: %w", err)
	}

	positions, err := w.bets.OpenPositionsForBetTx(ctx, tx, bet.ID)
	if err != nil {
		return fmt.Errorf("payout.settle: lock positions: %w", err)
	}

	for _, pos := range positions {
		if err := w.settlePosition(ctx, tx, bet, pos, job); err != nil {
			return fmt.Errorf("payout.settle: position %s: %w", pos.ID, err)
		}
	}

	if err := w.bets.SetResolvedTx(ctx, tx, bet.ID, job.ResultOptionID); err != nil {
		return fmt.Errorf("payout.settle: resolve bet: %w", err)
	}
	if err := w.payouts.CompleteTx(ctx, tx, job.ID); err != nil {
		return fmt.Errorf("payout.settle: complete job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("payout.settle: commit: %w", err)
	}

	w.publishResolved(ctx, bet.ID, job.ResultOptionID)
	return nil
}

func (w *Worker) settlePosition(ctx context.Context, tx *sqlx.Tx, bet *domain.Bet, pos *domain.BetPosition, job *domain.PayoutJob) error {
	var net int64
	if pos.BetOptionID == job.ResultOptionID {
		gross, fee, n := pos.SettlementNet()
		net = n
		related := bet.ID
		if net > 0 {
			if _, _, err := w.ledger.ApplyDelta(ctx, tx, pos.UserID, net, nil, "bet_settlement", "winning position settled", &related, map[string]any{
				"bet_id": bet.ID, "position_id": pos.ID, "gross": gross, "fee": fee,
			}); err != nil {
				return fmt.Errorf("credit winner: %w", err)
			}
		}
		if err := w.ledger.CreditFee(ctx, tx, fee, nil, "bet_settlement_fee", "settlement fee", &related); err != nil {
			return fmt.Errorf("credit fee: %w", err)
		}
	}
	if err := w.bets.SetPositionSettledTx(ctx, tx, pos.ID, net); err != nil {
		return fmt.Errorf("mark settled: %w", err)
	}
	return nil
}

func (w *Worker) publishResolved(ctx context.Context, betID, resultOptionID uuid.UUID) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, relay.BetResolvedEvent(betID, resultOptionID)); err != nil {
		w.logger.Warn("payout.Worker: publish resolved event failed", "err", err)
	}
}

// failOrRetry re-reads the job's attempt count (ClaimTx already incremented
// it) and hands it to FailOrRetry's own short update.
func (w *Worker) failOrRetry(ctx context.Context, jobID uuid.UUID) {
	job, err := w.payouts.GetByID(ctx, jobID)
	if err != nil {
		w.logger.Error("payout.Worker: lookup after failure", "job", jobID, "err", err)
		return
	}
	backoff := exponentialBackoff(w.baseBackoff, job.Attempts)
	if err := w.payouts.FailOrRetry(ctx, jobID, job.Attempts, job.MaxAttempts, backoff); err != nil {
		w.logger.Error("payout.Worker: FailOrRetry", "job", jobID, "err", err)
	}
}

// exponentialBackoff doubles baseBackoff per attempt, capped at 10 minutes.
func exponentialBackoff(base time.Duration, attempts int) time.Duration {
	const maxBackoff = 10 * time.Minute
	d := time.Duration(float64(base) * math.Pow(2, float64(attempts-1)))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func (w *Worker) recoverAndLog() {
	if r := recover(); r != nil {
		w.logger.Error("PANIC recovered in payout worker", "worker", w.id, "panic", r)
	}
}
