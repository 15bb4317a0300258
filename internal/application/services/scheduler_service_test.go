package services

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/bridge"
	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/Tom-Bini/manus-bridge-bot/internal/infrastructure/database/repositories"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

type recordingNotifier struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    []string
}

func (n *recordingNotifier) TransferStarted(wallet, fromChain, toChain, token, amount string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started++
}

func (n *recordingNotifier) TransferCompleted(wallet, provider, txRef string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *recordingNotifier) TransferFailed(wallet, errKind, detail string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, errKind)
}

func (n *recordingNotifier) SystemEvent(msg string) {}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		TransactionsPerDay: 2,
		MinIntervalHours:   1,
		MaxIntervalHours:   23,
		RetryDelay:         5 * time.Minute,
		MinAmountPercent:   10,
		MaxAmountPercent:   90,
		MinAmount:          "10",
	}
}

func setupSchedulerService(t *testing.T) (*SchedulerService, *WalletService, *recordingNotifier, *fixedClock, *gorm.DB, func()) {
	walletService, db, cleanup := setupWalletService(t)

	notifier := &recordingNotifier{}
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	scheduler := NewSchedulerService(
		testSchedulerConfig(),
		walletService,
		bridge.NewAggregator(bridge.NewRegistry(), zap.NewNop(), time.Second, 0),
		repositories.NewTransferRepository(db),
		walletService.scheduleRepo,
		notifier,
		rand.New(rand.NewSource(1)),
		zap.NewNop(),
	)
	scheduler.clock = clock

	return scheduler, walletService, notifier, clock, db, cleanup
}

func TestDrawIntervalBounds(t *testing.T) {
	scheduler, _, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()

	for i := 0; i < 200; i++ {
		interval := scheduler.DrawInterval()
		if interval < time.Hour || interval > 23*time.Hour {
			t.Fatalf("Draw %d out of bounds: %s", i, interval)
		}
	}
}

func TestScheduleWalletCreatesPendingEntry(t *testing.T) {
	scheduler, wallets, _, clock, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	entries, err := scheduler.ScheduleWallet(ctx, summary.Address, 0)
	if err != nil {
		t.Fatalf("ScheduleWallet failed: %v", err)
	}
	if len(entries) == 0 || len(entries) > 2 {
		t.Fatalf("Expected 1 or 2 entries for the default 2 per day, got %d", len(entries))
	}

	// Each draw is offset from the previous fire time.
	previous := clock.now
	for i, entry := range entries {
		min := previous.Add(time.Hour)
		max := previous.Add(23 * time.Hour)
		if entry.NextFireAt.Before(min) || entry.NextFireAt.After(max) {
			t.Errorf("Entry %d: expected fire time in [%s, %s], got %s", i, min, max, entry.NextFireAt)
		}
		previous = entry.NextFireAt
	}
}

func TestScheduleWalletReplacesPendingEntries(t *testing.T) {
	scheduler, wallets, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	var last []entities.ScheduleEntry
	for i := 0; i < 3; i++ {
		entries, err := scheduler.ScheduleWallet(ctx, summary.Address, 1)
		if err != nil {
			t.Fatalf("ScheduleWallet failed: %v", err)
		}
		last = entries
	}

	pending, err := scheduler.scheduleRepo.GetPendingByWallet(ctx, summary.Address)
	if err != nil {
		t.Fatalf("GetPendingByWallet failed: %v", err)
	}
	if len(pending) != len(last) {
		t.Errorf("Expected rescheduling to replace pending entries, got %d for %d drawn", len(pending), len(last))
	}
}

func TestScheduleWalletUnknown(t *testing.T) {
	scheduler, _, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()

	_, err := scheduler.ScheduleWallet(context.Background(), "0x0000000000000000000000000000000000000001", 0)
	if !errors.Is(err, entities.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestFireBusyWalletReschedules(t *testing.T) {
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
	entry := &entries[0]

	release, ok := wallets.locks.TryAcquire(summary.Address)
	if !ok {
		t.Fatal("Failed to take wallet lock")
	}
	defer release()

	if err := scheduler.Fire(ctx, entry); !errors.Is(err, entities.ErrExecuting) {
		t.Fatalf("Expected ErrExecuting, got %v", err)
	}

	if entry.Executed {
		t.Error("Busy fire must not consume the entry")
	}
	want := clock.now.Add(5 * time.Minute)
	if !entry.NextFireAt.Equal(want) {
		t.Errorf("Expected entry pushed to %s, got %s", want, entry.NextFireAt)
	}
}

func TestFireDailyCapSkipsTransfer(t *testing.T) {
	scheduler, wallets, _, clock, db, cleanup := setupSchedulerService(t)
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
	entry := &entries[0]

	// Two transfers already fired inside the trailing day.
	for i := 0; i < 2; i++ {
		transfer := &entities.Transfer{
			ID:            time.Now().Format("150405.000000000") + string(rune('a'+i)),
			WalletAddress: summary.Address,
			Status:        entities.TransferCompleted,
			CreateAt:      clock.now.Add(-time.Duration(i+1) * time.Hour),
		}
		if err := db.Create(transfer).Error; err != nil {
			t.Fatalf("Failed to seed transfer: %v", err)
		}
	}

	if err := scheduler.Fire(ctx, entry); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	if !entry.Executed {
		t.Error("Expected capped fire to consume the entry")
	}

	var transfers int64
	db.Model(&entities.Transfer{}).Where("wallet_address = ?", summary.Address).Count(&transfers)
	if transfers != 2 {
		t.Errorf("Expected no new transfer past the cap, got %d rows", transfers)
	}

	pending, err := scheduler.scheduleRepo.GetPendingByWallet(ctx, summary.Address)
	if err != nil {
		t.Fatalf("GetPendingByWallet failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected a fresh entry drawn after the capped fire, got %d", len(pending))
	}
}

func TestFireWithoutFundsPersistsFailedTransfer(t *testing.T) {
	scheduler, wallets, notifier, _, db, cleanup := setupSchedulerService(t)
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
	entry := &entries[0]

	// No chain is reachable in tests, so intent building finds no funds.
	if err := scheduler.Fire(ctx, entry); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}

	var transfer entities.Transfer
	if err := db.Where("wallet_address = ?", summary.Address).First(&transfer).Error; err != nil {
		t.Fatalf("Expected persisted terminal transfer: %v", err)
	}
	if transfer.Status != entities.TransferFailed {
		t.Errorf("Expected status failed, got %s", transfer.Status)
	}
	if transfer.ErrorKind != "insufficient_balance" {
		t.Errorf("Expected error kind insufficient_balance, got %s", transfer.ErrorKind)
	}
	if transfer.CompletedAt == nil {
		t.Error("Expected terminal timestamp set")
	}

	if len(notifier.failed) != 1 || notifier.failed[0] != "insufficient_balance" {
		t.Errorf("Expected one failure notification, got %v", notifier.failed)
	}

	pending, err := scheduler.scheduleRepo.GetPendingByWallet(ctx, summary.Address)
	if err != nil {
		t.Fatalf("GetPendingByWallet failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected next fire drawn after the failed one, got %d", len(pending))
	}
}

// timedOutQuoteProvider supports every route but never quotes in time.
type timedOutQuoteProvider struct{}

func (timedOutQuoteProvider) ID() string { return "slow" }

func (timedOutQuoteProvider) SupportsRoute(bridge.Route) bool { return true }

func (timedOutQuoteProvider) GetQuote(ctx context.Context, intent bridge.TransferIntent) (*bridge.Quote, error) {
	<-ctx.Done()
	return nil, errors.Wrap(bridge.ErrProviderTimeout, "slow")
}

func (timedOutQuoteProvider) Execute(ctx context.Context, quote *bridge.Quote, signer bridge.Signer) (string, error) {
	return "", bridge.ErrProvider
}

func (timedOutQuoteProvider) GetStatus(ctx context.Context, txRef string) (bridge.TxStatus, error) {
	return bridge.StatusPending, nil
}

// fixedBalances reports the same spendable balance for every chain and
// token, bypassing chain RPC calls.
type fixedBalances struct {
	amount decimal.Decimal
}

func (f fixedBalances) SpendableBalance(ctx context.Context, address, chain, token string) (decimal.Decimal, error) {
	return f.amount, nil
}

func TestTriggerNowAllQuotesTimeOutRecordsFailure(t *testing.T) {
	walletService, db, cleanup := setupWalletService(t)
	defer cleanup()
	ctx := context.Background()

	notifier := &recordingNotifier{}
	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	scheduler := NewSchedulerService(
		testSchedulerConfig(),
		walletService,
		bridge.NewAggregator(bridge.NewRegistry(timedOutQuoteProvider{}), zap.NewNop(), 20*time.Millisecond, 0),
		repositories.NewTransferRepository(db),
		walletService.scheduleRepo,
		notifier,
		rand.New(rand.NewSource(1)),
		zap.NewNop(),
	)
	scheduler.clock = clock
	scheduler.balances = fixedBalances{amount: decimal.NewFromInt(100)}

	summary, err := walletService.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	transfer, err := scheduler.TriggerNow(ctx, summary.Address)
	if !errors.Is(err, entities.ErrNoQuoteAvailable) {
		t.Fatalf("Expected ErrNoQuoteAvailable, got %v", err)
	}
	if transfer == nil {
		t.Fatal("Expected the terminal transfer back")
	}

	var row entities.Transfer
	if err := db.First(&row, "id = ?", transfer.ID).Error; err != nil {
		t.Fatalf("Expected persisted transfer row: %v", err)
	}
	if row.Status != entities.TransferFailed {
		t.Errorf("Expected status failed, got %s", row.Status)
	}
	if row.ErrorKind != "no_quote_available" {
		t.Errorf("Expected error kind no_quote_available, got %s", row.ErrorKind)
	}
	if row.CompletedAt == nil {
		t.Error("Expected terminal timestamp set")
	}

	if len(notifier.failed) != 1 || notifier.failed[0] != "no_quote_available" {
		t.Errorf("Expected one no_quote_available notification, got %v", notifier.failed)
	}
}

func TestTriggerNowWithoutFundsReturnsTerminalTransfer(t *testing.T) {
	scheduler, wallets, _, _, db, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	transfer, err := scheduler.TriggerNow(ctx, summary.Address)
	if !errors.Is(err, entities.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}
	if transfer == nil || transfer.Status != entities.TransferFailed {
		t.Fatalf("Expected failed transfer back, got %+v", transfer)
	}

	// The row is persisted before any intent work, so even the earliest
	// failure leaves a terminal record behind.
	var row entities.Transfer
	if err := db.First(&row, "id = ?", transfer.ID).Error; err != nil {
		t.Fatalf("Expected persisted transfer row: %v", err)
	}
	if row.Status != entities.TransferFailed {
		t.Errorf("Expected status failed, got %s", row.Status)
	}
}

func TestTriggerNowBusy(t *testing.T) {
	scheduler, wallets, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	release, ok := wallets.locks.TryAcquire(summary.Address)
	if !ok {
		t.Fatal("Failed to take wallet lock")
	}
	defer release()

	if _, err := scheduler.TriggerNow(ctx, summary.Address); !errors.Is(err, entities.ErrExecuting) {
		t.Errorf("Expected ErrExecuting, got %v", err)
	}
}

func TestTriggerNowUnknownWallet(t *testing.T) {
	scheduler, _, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()

	_, err := scheduler.TriggerNow(context.Background(), "0x0000000000000000000000000000000000000001")
	if !errors.Is(err, entities.ErrWalletNotFound) {
		t.Errorf("Expected ErrWalletNotFound, got %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	scheduler, wallets, _, clock, db, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}

	for i, id := range []string{"old", "mid", "new"} {
		transfer := &entities.Transfer{
			ID:            id,
			WalletAddress: summary.Address,
			Status:        entities.TransferCompleted,
			CreateAt:      clock.now.Add(time.Duration(i) * time.Hour),
		}
		if err := db.Create(transfer).Error; err != nil {
			t.Fatalf("Failed to seed transfer: %v", err)
		}
	}

	history, err := scheduler.History(ctx, summary.Address, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 transfers, got %d", len(history))
	}
	if history[0].ID != "new" || history[2].ID != "old" {
		t.Errorf("Expected newest first, got %s..%s", history[0].ID, history[2].ID)
	}

	// A bounded range keeps only the transfer inside it.
	ranged, err := scheduler.History(ctx, summary.Address, clock.now.Add(30*time.Minute), clock.now.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("History with range failed: %v", err)
	}
	if len(ranged) != 1 || ranged[0].ID != "mid" {
		t.Errorf("Expected only mid in range, got %+v", ranged)
	}
}

func TestStatusCounts(t *testing.T) {
	scheduler, wallets, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()
	ctx := context.Background()

	summary, err := wallets.AddWallet(ctx, testPrivateKey, "")
	if err != nil {
		t.Fatalf("AddWallet failed: %v", err)
	}
	if _, err := scheduler.ScheduleWallet(ctx, summary.Address, 1); err != nil {
		t.Fatalf("ScheduleWallet failed: %v", err)
	}

	status, err := scheduler.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Wallets != 1 {
		t.Errorf("Expected 1 wallet, got %d", status.Wallets)
	}
	if status.PendingSchedules != 1 {
		t.Errorf("Expected 1 pending schedule, got %d", status.PendingSchedules)
	}
}

func TestDrawAmountBounds(t *testing.T) {
	scheduler, _, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()

	balance := decimal.NewFromInt(100)
	lower := decimal.NewFromInt(10)
	upper := decimal.NewFromInt(90)

	for i := 0; i < 200; i++ {
		amount := scheduler.drawAmount(balance)
		if amount.LessThan(lower) || amount.GreaterThan(upper) {
			t.Fatalf("Draw %d out of bounds: %s", i, amount)
		}
	}
}

func TestDrawAmountFloorsAtMinimum(t *testing.T) {
	scheduler, _, _, _, _, cleanup := setupSchedulerService(t)
	defer cleanup()

	// 10 percent of 12 is 1.2, below the configured minimum of 10. The
	// draw must come back floored at 10 and capped at the balance.
	balance := decimal.NewFromInt(12)
	for i := 0; i < 50; i++ {
		amount := scheduler.drawAmount(balance)
		if amount.LessThan(decimal.NewFromInt(10)) {
			t.Fatalf("Draw %d below minimum: %s", i, amount)
		}
		if amount.GreaterThan(balance) {
			t.Fatalf("Draw %d above balance: %s", i, amount)
		}
	}
}
