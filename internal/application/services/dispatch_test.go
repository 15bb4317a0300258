package services

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestStopWaitsForInFlightFires(t *testing.T) {
	scheduler, wallets, _, clock, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	entries, err := scheduler.ScheduleWallet(ctx, summary.Address, 1)
	if err != nil {
		t.Fatalf("ScheduleWallet failed: %v", err)
	}

	entries[0].NextFireAt = clock.now.Add(-time.Minute)
	if err := scheduler.scheduleRepo.Update(ctx, &entries[0]); err != nil {
		t.Fatalf("Failed to backdate entry: %v", err)
	}

	// Holding the wallet lock sends the fire down the reschedule path.
	release, ok := wallets.locks.TryAcquire(summary.Address)
	if !ok {
		t.Fatal("Failed to take wallet lock")
	}
	defer release()

	dispatcher := NewDispatcher(scheduler, zap.NewNop())
	dispatcher.tick()
	dispatcher.Stop()

	// Stop returns only after the fire goroutine has finished, so the
	// pushed-back entry must already be visible.
	pending, err := scheduler.scheduleRepo.GetPendingByWallet(ctx, summary.Address)
	if err != nil {
		t.Fatalf("GetPendingByWallet failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending entry, got %d", len(pending))
	}
	want := clock.now.Add(5 * time.Minute)
	if !pending[0].NextFireAt.Equal(want) {
		t.Errorf("Expected entry pushed to %s, got %s", want, pending[0].NextFireAt)
	}
}

func TestTickClaimsEntryOnce(t *testing.T) {
	scheduler, wallets, _, clock, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	entries, err := scheduler.ScheduleWallet(ctx, summary.Address, 1)
	if err != nil {
		t.Fatalf("ScheduleWallet failed: %v", err)
	}
	entries[0].NextFireAt = clock.now.Add(-time.Minute)
	if err := scheduler.scheduleRepo.Update(ctx, &entries[0]); err != nil {
		t.Fatalf("Failed to backdate entry: %v", err)
	}

	dispatcher := NewDispatcher(scheduler, zap.NewNop())
	if !dispatcher.claim(entries[0].ID) {
		t.Fatal("Expected first claim to succeed")
	}
	if dispatcher.claim(entries[0].ID) {
		t.Error("Expected claimed entry to stay claimed")
	}
	dispatcher.release(entries[0].ID)

	if !dispatcher.claim(entries[0].ID) {
		t.Error("Expected released entry claimable again")
	}
	dispatcher.release(entries[0].ID)
}
