package service_test

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestConcurrentLedgerTransfer simulates 50 goroutines concurrently
// transferring points out of a shared balance, guarded by a mutex. It
// verifies our locking pattern compiles and passes -race.
//
// In the real ledger.Core, the row-level SELECT ... FOR UPDATE (taken in
// ascending account-ID order) provides this guarantee; here the same guard
// is replicated with sync primitives so the race detector can confirm the
// pattern is sound without a database.
func TestConcurrentLedgerTransfer(t *testing.T) {
	const workers = 50
	const amountEach = 20

	balance := int64(workers * amountEach)
	var mu sync.Mutex
	var rejected int64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mu.Lock()
			defer mu.Unlock()

			if balance < amountEach {
				atomic.AddInt64(&rejected, 1)
				return
			}
			balance -= amountEach
		}()
	}
	wg.Wait()

	if rejected > 0 {
		t.Errorf("expected 0 rejected transfers, got %d", rejected)
	}
	if balance != 0 {
		t.Errorf("final balance should be 0, got %d", balance)
	}
}

// TestConcurrentIdempotencyGuard verifies that only one of N concurrent
// callers bearing the same idempotency key proceeds to execute the
// wrapped handler; the rest observe the "processing" row and back off.
// This mirrors idempotency.Wrapper's UpsertProcessingTx + re-SELECT FOR
// UPDATE serialization, minus the database.
func TestConcurrentIdempotencyGuard(t *testing.T) {
	const workers = 20

	type keyState struct {
		mu      sync.Mutex
		claimed bool
	}

	var (
		k        keyState
		executed int64
		replayed int64
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			k.mu.Lock()
			defer k.mu.Unlock()

			if k.claimed {
				atomic.AddInt64(&replayed, 1)
				return
			}
			k.claimed = true
			atomic.AddInt64(&executed, 1)
		}()
	}
	wg.Wait()

	if executed != 1 {
		t.Errorf("exactly 1 goroutine should execute the handler, got %d", executed)
	}
	if replayed != workers-1 {
		t.Errorf("expected %d replays, got %d", workers-1, replayed)
	}
}

// TestConcurrentSellVsResolve simulates the race between a user selling a
// position and an admin resolving the bet at the same instant: whichever
// acquires the bet row lock first determines whether the sell proceeds at
// the pre-resolution odds or is rejected as the bet is no longer open.
func TestConcurrentSellVsResolve(t *testing.T) {
	type betState struct {
		mu       sync.Mutex
		resolved bool
	}

	var b betState
	var sellAccepted, sellRejected int64
	var wg sync.WaitGroup

	const sellers = 10
	for i := 0; i < sellers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.resolved {
				atomic.AddInt64(&sellRejected, 1)
				return
			}
			atomic.AddInt64(&sellAccepted, 1)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.resolved = true
	}()

	wg.Wait()

	if sellAccepted+sellRejected != sellers {
		t.Errorf("accepted+rejected = %d, want %d", sellAccepted+sellRejected, sellers)
	}
}
