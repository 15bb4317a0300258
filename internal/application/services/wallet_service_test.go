package services

import (
	"context"
	"strings"
	"testing"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/crypto"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/Tom-Bini/manus-bridge-bot/internal/infrastructure/database/repositories"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testChains() []config.ChainConfig {
	// Unroutable RPC endpoints; chain calls fail fast in tests.
	return []config.ChainConfig{
		{
			Name: "ethereum", ChainID: 1, RpcURL: "http://127.0.0.1:1",
			Tokens: []config.TokenConfig{{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6}},
		},
		{
			Name: "polygon", ChainID: 137, RpcURL: "http://127.0.0.1:1",
			Tokens: []config.TokenConfig{{Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6}},
		},
	}
}

func setupWalletService(t *testing.T) (*WalletService, *gorm.DB, func()) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&entities.Wallet{},
		&entities.WalletBalance{},
		&entities.Transfer{},
		&entities.ScheduleEntry{},
	); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	box, err := crypto.NewAESCrypto("test-passphrase")
	if err != nil {
		t.Fatalf("Failed to create crypto box: %v", err)
	}

	service := NewWalletService(
		repositories.NewWalletRepository(db),
		repositories.NewScheduleEntryRepository(db),
		box,
		evm.NewClient(testChains()),
		zap.NewNop(),
	)

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	return service, db, cleanup
}

func TestAddWalletDerivesAddress(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "test wallet")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	if !strings.HasPrefix(summary.Address, "0x") || len(summary.Address) != 42 {
		t.Errorf("Expected EVM address, got %q", summary.Address)
	}
	if summary.Label != "test wallet" {
		t.Errorf("Expected label preserved, got %q", summary.Label)
	}
}

func TestAddWalletStoresKeyEncrypted(t *testing.T) {
	service, db, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	var wallet entities.Wallet
	if err := db.Where("address = ?", summary.Address).First(&wallet).Error; err != nil {
		t.Fatalf("Failed to load stored wallet: %v", err)
	}

	if strings.Contains(wallet.EncryptedKey, testPrivateKey) {
		t.Error("Stored blob contains the plaintext private key")
	}
	if wallet.EncryptedKey == "" {
		t.Error("Expected non-empty encrypted key")
	}
}

func TestAddWalletDuplicate(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	if _, err := service.AddWallet(context.Background(), testPrivateKey, "first"); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	_, err := service.AddWallet(context.Background(), "0x"+testPrivateKey, "second")
	if !errors.Is(err, entities.ErrDuplicateWallet) {
		t.Errorf("Expected ErrDuplicateWallet, got %v", err)
	}
}

func TestAddWalletInvalidKey(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	for _, key := range []string{"", "zzzz", "0x1234"} {
		if _, err := service.AddWallet(context.Background(), key, ""); !errors.Is(err, entities.ErrValidation) {
			t.Errorf("Expected ErrValidation for %q, got %v", key, err)
		}
	}
}

func TestDecryptForUseRoundTrip(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	var signedAddress string
	err = service.DecryptForUse(context.Background(), summary.Address, func(signer *evm.Signer) error {
		signedAddress = signer.Address().Hex()
		return nil
	})
	if err != nil {
		t.Fatalf("DecryptForUse failed: %v", err)
	}

	if signedAddress != summary.Address {
		t.Errorf("Expected signer address %s, got %s", summary.Address, signedAddress)
	}
}

func TestDecryptForUseUnknownWallet(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	err := service.DecryptForUse(context.Background(), "0x0000000000000000000000000000000000000001", func(signer *evm.Signer) error {
		t.Fatal("Callback must not run for unknown wallet")
		return nil
	})
	if !errors.Is(err, entities.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestRemoveWallet(t *testing.T) {
	service, db, cleanup := setupWalletService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := service.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	// Seed a pending schedule entry and a cached balance for the wallet.
	if err := db.Create(&entities.ScheduleEntry{WalletAddress: summary.Address}).Error; err != nil {
		t.Fatalf("Failed to seed schedule entry: %v", err)
	}
	if err := db.Create(&entities.WalletBalance{WalletAddress: summary.Address, Chain: "ethereum", Token: "USDC", Balance: "100"}).Error; err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	if err := service.RemoveWallet(ctx, summary.Address); err != nil {
		t.Fatalf("RemoveWallet failed: %v", err)
	}

	if _, err := service.GetWallet(ctx, summary.Address); !errors.Is(err, entities.ErrWalletNotFound) {
		t.Errorf("Expected wallet gone, got %v", err)
	}

	var entries int64
	db.Model(&entities.ScheduleEntry{}).Where("wallet_address = ?", summary.Address).Count(&entries)
	if entries != 0 {
		t.Errorf("Expected schedule entries removed, got %d", entries)
	}

	var balances int64
	db.Model(&entities.WalletBalance{}).Where("wallet_address = ?", summary.Address).Count(&balances)
	if balances != 0 {
		t.Errorf("Expected cached balances removed, got %d", balances)
	}
}

func TestRemoveWalletNotFound(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	err := service.RemoveWallet(context.Background(), "0x0000000000000000000000000000000000000001")
	if !errors.Is(err, entities.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestRemoveWalletBusy(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	release, ok := service.locks.TryAcquire(summary.Address)
	if !ok {
		t.Fatal("Failed to take wallet lock")
	}
	defer release()

	if err := service.RemoveWallet(context.Background(), summary.Address); !errors.Is(err, entities.ErrExecuting) {
		t.Errorf("Expected ErrExecuting while wallet busy, got %v", err)
	}
}

func TestListWallets(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()
	ctx := context.Background()

	summaries, err := service.ListWallets(ctx)
	if err != nil {
		t.Fatalf("ListWallets failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Expected empty listing, got %d", len(summaries))
	}

	if _, err := service.AddWallet(ctx, testPrivateKey, "one"); err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	summaries, err = service.ListWallets(ctx)
	if err != nil {
		t.Fatalf("ListWallets failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 wallet, got %d", len(summaries))
	}
}

func TestCachedBalances(t *testing.T) {
	service, db, cleanup := setupWalletService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := service.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	if err := db.Create(&entities.WalletBalance{WalletAddress: summary.Address, Chain: "ethereum", Token: "USDC", Balance: "42.5"}).Error; err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	balances, err := service.CachedBalances(ctx, summary.Address)
	if err != nil {
		t.Fatalf("CachedBalances failed: %v", err)
	}
	if len(balances) != 1 || balances[0].Balance != "42.5" {
		t.Errorf("Expected seeded balance back, got %+v", balances)
	}
}

func TestRefreshBalanceUnknownChain(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	_, _, err = service.RefreshBalance(context.Background(), summary.Address, "solana", "USDC")
	if !errors.Is(err, entities.ErrValidation) {
		t.Errorf("Expected ErrValidation for unknown chain, got %v", err)
	}
}

func TestRefreshBalanceServesStaleOnChainFailure(t *testing.T) {
	service, db, cleanup := setupWalletService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := service.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	if err := db.Create(&entities.WalletBalance{WalletAddress: summary.Address, Chain: "ethereum", Token: "USDC", Balance: "17"}).Error; err != nil {
		t.Fatalf("Failed to seed balance: %v", err)
	}

	// The test RPC endpoint is unroutable, so the chain query fails and
	// the cached value must come back flagged stale.
	balance, stale, err := service.RefreshBalance(ctx, summary.Address, "ethereum", "USDC")
	if err != nil {
		t.Fatalf("RefreshBalance failed: %v", err)
	}
	if !stale {
		t.Error("Expected stale flag set")
	}
	if balance.Balance != "17" {
		t.Errorf("Expected cached balance 17, got %s", balance.Balance)
	}
}

func TestRefreshBalanceChainFailureWithoutCache(t *testing.T) {
	service, _, cleanup := setupWalletService(t)
	defer cleanup()

	summary, err := service.AddWallet(context.Background(), testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	_, _, err = service.RefreshBalance(context.Background(), summary.Address, "ethereum", "USDC")
	if !errors.Is(err, entities.ErrChainUnreachable) {
		t.Errorf("Expected ErrChainUnreachable without cached value, got %v", err)
	}
}
