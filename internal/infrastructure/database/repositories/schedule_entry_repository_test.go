package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&entities.ScheduleEntry{}, &entities.Transfer{}, &entities.Wallet{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return db, cleanup
}

func TestGetDueFiltersAndOrders(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewScheduleEntryRepository(db)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entries := []entities.ScheduleEntry{
		{WalletAddress: "0xaaa", NextFireAt: now.Add(-2 * time.Hour)},
		{WalletAddress: "0xbbb", NextFireAt: now.Add(-time.Minute)},
		{WalletAddress: "0xccc", NextFireAt: now.Add(time.Hour)},
		{WalletAddress: "0xddd", NextFireAt: now.Add(-time.Hour), Executed: true},
	}
	if err := repo.CreateBatch(ctx, entries); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	due, err := repo.GetDue(ctx, now)
	if err != nil {
		t.Fatalf("GetDue failed: %v", err)
	}

	if len(due) != 2 {
		t.Fatalf("Expected 2 due entries, got %d", len(due))
	}
	if due[0].WalletAddress != "0xaaa" || due[1].WalletAddress != "0xbbb" {
		t.Errorf("Expected oldest due first, got %s, %s", due[0].WalletAddress, due[1].WalletAddress)
	}
}

func TestDeletePendingKeepsExecutedHistory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewScheduleEntryRepository(db)
	now := time.Now()

	entries := []entities.ScheduleEntry{
		{WalletAddress: "0xaaa", NextFireAt: now, Executed: true},
		{WalletAddress: "0xaaa", NextFireAt: now.Add(time.Hour)},
		{WalletAddress: "0xbbb", NextFireAt: now.Add(time.Hour)},
	}
	if err := repo.CreateBatch(ctx, entries); err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}

	if err := repo.DeletePendingByWallet(ctx, "0xaaa"); err != nil {
		t.Fatalf("DeletePendingByWallet failed: %v", err)
	}

	var remaining int64
	db.Model(&entities.ScheduleEntry{}).Where("wallet_address = ?", "0xaaa").Count(&remaining)
	if remaining != 1 {
		t.Errorf("Expected executed entry kept, got %d rows", remaining)
	}

	pending, err := repo.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("Expected 1 pending entry left, got %d", pending)
	}
}
