package repositories

import (
	"context"
	"testing"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/pkg/errors"
)

func TestCreateDuplicateAddress(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	repo := NewWalletRepository(db)
	if err := repo.Create(ctx, &entities.Wallet{Address: "0xaaa", EncryptedKey: "blob"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The storage layer itself must surface the duplicate, since two
	// concurrent adds of the same key can both pass the service's
	// existence check.
	err := repo.Create(ctx, &entities.Wallet{Address: "0xaaa", EncryptedKey: "other"})
	if !errors.Is(err, entities.ErrDuplicateWallet) {
		t.Errorf("Expected ErrDuplicateWallet on second create, got %v", err)
	}
}
