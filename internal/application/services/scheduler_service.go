package services

import (
	"context"
	"sync"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/Tom-Bini/manus-bridge-bot/internal/bridge"
	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/repositories"
	"github.com/Tom-Bini/manus-bridge-bot/internal/notification"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Clock abstracts time.Now so fire-window logic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Rand is the subset of math/rand used for schedule draws and route
// selection. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// balanceSource sizes intents off spendable balances. *WalletService is the
// production implementation.
type balanceSource interface {
	SpendableBalance(ctx context.Context, address, chain, token string) (decimal.Decimal, error)
}

// SchedulerService owns the per-wallet transfer state machine: randomized
// fire times, the daily fire cap, single-flight execution and terminal
// transfer persistence.
type SchedulerService struct {
	cfg           config.SchedulerConfig
	walletService *WalletService
	balances      balanceSource
	aggregator    *bridge.Aggregator
	transferRepo  repositories.TransferRepository
	scheduleRepo  repositories.ScheduleEntryRepository
	notifier      notification.Notifier
	logger        *zap.Logger

	clock Clock

	randMu sync.Mutex
	rng    Rand

	minAmount decimal.Decimal
}

// NewSchedulerService creates a new scheduler service.
func NewSchedulerService(
	cfg config.SchedulerConfig,
	walletService *WalletService,
	aggregator *bridge.Aggregator,
	transferRepo repositories.TransferRepository,
	scheduleRepo repositories.ScheduleEntryRepository,
	notifier notification.Notifier,
	rng Rand,
	logger *zap.Logger,
) *SchedulerService {
	minAmount, err := decimal.NewFromString(cfg.MinAmount)
	if err != nil {
		minAmount = decimal.NewFromInt(10)
	}

	return &SchedulerService{
		cfg:           cfg,
		walletService: walletService,
		balances:      walletService,
		aggregator:    aggregator,
		transferRepo:  transferRepo,
		scheduleRepo:  scheduleRepo,
		notifier:      notifier,
		logger:        logger,
		clock:         systemClock{},
		rng:           rng,
		minAmount:     minAmount,
	}
}

// DrawInterval draws a random delay in [min_interval, max_interval] hours.
func (s *SchedulerService) DrawInterval() time.Duration {
	s.randMu.Lock()
	f := s.rng.Float64()
	s.randMu.Unlock()

	hours := s.cfg.MinIntervalHours + f*(s.cfg.MaxIntervalHours-s.cfg.MinIntervalHours)
	return time.Duration(hours * float64(time.Hour))
}

// ScheduleWallet replaces the wallet's pending entries with up to
// countPerDay freshly drawn fire times, each offset from the previous one.
// A draw landing past the 24 hour window is kept but ends the run; the
// remaining fires roll into later days as entries are consumed and redrawn.
// countPerDay 0 uses the configured default.
func (s *SchedulerService) ScheduleWallet(ctx context.Context, address string, countPerDay int) ([]entities.ScheduleEntry, error) {
	if _, err := s.walletService.GetWallet(ctx, address); err != nil {
		return nil, err
	}
	if countPerDay <= 0 {
		countPerDay = s.cfg.TransactionsPerDay
	}

	if err := s.scheduleRepo.DeletePendingByWallet(ctx, address); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	windowEnd := now.Add(24 * time.Hour)
	fireAt := now

	entries := make([]entities.ScheduleEntry, 0, countPerDay)
	for i := 0; i < countPerDay; i++ {
		fireAt = fireAt.Add(s.DrawInterval())
		entries = append(entries, entities.ScheduleEntry{
			WalletAddress: address,
			NextFireAt:    fireAt,
			CreateAt:      now,
		})
		if fireAt.After(windowEnd) {
			break
		}
	}

	if err := s.scheduleRepo.CreateBatch(ctx, entries); err != nil {
		return nil, err
	}

	s.logger.Info("Wallet scheduled",
		zap.String("wallet", address),
		zap.Int("entries", len(entries)),
		zap.Time("first_fire_at", entries[0].NextFireAt),
	)
	return entries, nil
}

func (s *SchedulerService) scheduleNext(ctx context.Context, address string) (*entities.ScheduleEntry, error) {
	now := s.clock.Now()
	entry := &entities.ScheduleEntry{
		WalletAddress: address,
		NextFireAt:    now.Add(s.DrawInterval()),
		CreateAt:      now,
	}
	if err := s.scheduleRepo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("Next transfer scheduled",
		zap.String("wallet", address),
		zap.Time("next_fire_at", entry.NextFireAt),
	)
	return entry, nil
}

// Fire consumes one due schedule entry. When another transfer holds the
// wallet lock the entry is pushed back by the retry delay instead of
// blocking. The entry is always either consumed or rescheduled, and a new
// entry is drawn after every consumed fire.
func (s *SchedulerService) Fire(ctx context.Context, entry *entities.ScheduleEntry) error {
	release, ok := s.walletService.locks.TryAcquire(entry.WalletAddress)
	if !ok {
		entry.NextFireAt = s.clock.Now().Add(s.cfg.RetryDelay)
		if err := s.scheduleRepo.Update(ctx, entry); err != nil {
			s.logger.Error("Failed to push back busy schedule entry",
				zap.Int("entry_id", entry.ID), zap.Error(err))
		}
		return errors.Wrapf(entities.ErrExecuting, "wallet %s", entry.WalletAddress)
	}
	defer release()

	now := s.clock.Now()
	fired, err := s.firedInWindow(ctx, entry.WalletAddress, now)
	if err != nil {
		return err
	}

	entry.Executed = true
	if err := s.scheduleRepo.Update(ctx, entry); err != nil {
		return err
	}

	if fired >= s.cfg.TransactionsPerDay {
		s.logger.Info("Daily fire cap reached, skipping",
			zap.String("wallet", entry.WalletAddress),
			zap.Int("fired", fired),
		)
		_, err := s.scheduleNext(ctx, entry.WalletAddress)
		return err
	}

	if _, err := s.executeTransfer(ctx, entry.WalletAddress); err != nil {
		s.logger.Warn("Scheduled transfer failed",
			zap.String("wallet", entry.WalletAddress),
			zap.Error(err),
		)
	}

	_, err = s.scheduleNext(ctx, entry.WalletAddress)
	return err
}

// TriggerNow runs one transfer for the wallet immediately, outside the
// schedule. It respects the same single-flight rule as scheduled fires.
func (s *SchedulerService) TriggerNow(ctx context.Context, address string) (*entities.Transfer, error) {
	if _, err := s.walletService.GetWallet(ctx, address); err != nil {
		return nil, err
	}

	release, ok := s.walletService.locks.TryAcquire(address)
	if !ok {
		return nil, errors.Wrapf(entities.ErrExecuting, "wallet %s", address)
	}
	defer release()

	return s.executeTransfer(ctx, address)
}

// History returns the wallet's transfer history, newest first. Zero from
// and to return the full history; a zero to alone means "until now".
func (s *SchedulerService) History(ctx context.Context, address string, from, to time.Time) ([]entities.Transfer, error) {
	if _, err := s.walletService.GetWallet(ctx, address); err != nil {
		return nil, err
	}
	if from.IsZero() && to.IsZero() {
		return s.transferRepo.GetByWallet(ctx, address)
	}
	if to.IsZero() {
		to = s.clock.Now()
	}
	return s.transferRepo.GetByWalletAndRange(ctx, address, from, to)
}

// SystemStatus is the health summary served by the status endpoint. The
// dispatcher fields are filled in by the caller that owns the dispatcher.
type SystemStatus struct {
	Wallets          int        `json:"wallets"`
	PendingSchedules int        `json:"pending_schedules"`
	DispatchRunning  bool       `json:"dispatch_running"`
	LastDispatch     *time.Time `json:"last_dispatch,omitempty"`
	Time             time.Time  `json:"time"`
}

// Status reports a system health summary.
func (s *SchedulerService) Status(ctx context.Context) (*SystemStatus, error) {
	wallets, err := s.walletService.walletRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.scheduleRepo.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	return &SystemStatus{
		Wallets:          wallets,
		PendingSchedules: pending,
		Time:             s.clock.Now(),
	}, nil
}

// firedInWindow counts transfers recorded in the trailing 24 hour window.
// Every terminal transfer counts as a fire, failed ones included.
func (s *SchedulerService) firedInWindow(ctx context.Context, address string, now time.Time) (int, error) {
	transfers, err := s.transferRepo.GetByWalletAndRange(ctx, address, now.Add(-24*time.Hour), now)
	if err != nil {
		return 0, err
	}
	return len(transfers), nil
}

// executeTransfer runs the full pipeline for one fire: build a random
// intent, decrypt the key for the execution scope, select and execute a
// provider, and persist the terminal transfer. The caller must hold the
// wallet lock.
func (s *SchedulerService) executeTransfer(ctx context.Context, address string) (*entities.Transfer, error) {
	now := s.clock.Now()
	transfer := &entities.Transfer{
		ID:            uuid.New().String(),
		WalletAddress: address,
		Status:        entities.TransferPending,
		CreateAt:      now,
	}
	if err := s.transferRepo.Create(ctx, transfer); err != nil {
		return nil, err
	}

	intent, err := s.buildIntent(ctx, address)
	if intent != nil {
		transfer.FromChain = intent.FromChain
		transfer.ToChain = intent.ToChain
		transfer.FromToken = intent.FromToken
		transfer.ToToken = intent.ToToken
		transfer.Amount = intent.Amount.String()
	}

	if err != nil {
		return transfer, s.finishFailed(ctx, transfer, err)
	}

	transfer.Status = entities.TransferExecuting
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		return transfer, err
	}
	s.notifier.TransferStarted(address, intent.FromChain, intent.ToChain, intent.FromToken, intent.Amount.String())

	var result *bridge.ExecutionResult
	err = s.walletService.DecryptForUse(ctx, address, func(signer *evm.Signer) error {
		r, execErr := s.aggregator.SelectAndExecute(ctx, *intent, signer)
		result = r
		return execErr
	})
	if err != nil {
		return transfer, s.finishFailed(ctx, transfer, err)
	}

	completedAt := s.clock.Now()
	transfer.Status = entities.TransferCompleted
	transfer.ProviderUsed = result.ProviderID
	transfer.TxReference = result.TxReference
	transfer.CompletedAt = &completedAt
	if err := s.transferRepo.Update(ctx, transfer); err != nil {
		return transfer, err
	}

	s.logger.Info("Transfer completed",
		zap.String("wallet", address),
		zap.String("provider", result.ProviderID),
		zap.String("tx", result.TxReference),
	)
	s.notifier.TransferCompleted(address, result.ProviderID, result.TxReference)

	return transfer, nil
}

// finishFailed persists the terminal failed transfer and notifies. The
// original error is returned so the caller can log it.
func (s *SchedulerService) finishFailed(ctx context.Context, transfer *entities.Transfer, cause error) error {
	completedAt := s.clock.Now()
	transfer.Status = entities.TransferFailed
	transfer.ErrorKind = entities.ErrorKind(cause)
	transfer.CompletedAt = &completedAt

	if persistErr := s.transferRepo.Update(ctx, transfer); persistErr != nil {
		s.logger.Error("Failed to persist failed transfer",
			zap.String("transfer_id", transfer.ID), zap.Error(persistErr))
	}

	s.notifier.TransferFailed(transfer.WalletAddress, transfer.ErrorKind, cause.Error())
	return cause
}

// buildIntent picks a random funded source chain, a random distinct
// destination chain carrying the same token, and a random slice of the
// balance between the configured percent bounds.
func (s *SchedulerService) buildIntent(ctx context.Context, address string) (*bridge.TransferIntent, error) {
	chains := s.walletService.evmClient.Chains()
	s.shuffleChains(chains)

	for _, source := range chains {
		for _, token := range source.Tokens {
			balance, err := s.balances.SpendableBalance(ctx, address, source.Name, token.Symbol)
			if err != nil {
				s.logger.Debug("Skipping chain for intent",
					zap.String("chain", source.Name),
					zap.String("token", token.Symbol),
					zap.Error(err),
				)
				continue
			}
			if balance.LessThan(s.minAmount) {
				continue
			}

			dest, ok := s.pickDestination(chains, source.Name, token.Symbol)
			if !ok {
				continue
			}

			amount := s.drawAmount(balance)
			return &bridge.TransferIntent{
				WalletAddress: address,
				FromChain:     source.Name,
				ToChain:       dest,
				FromToken:     token.Symbol,
				ToToken:       token.Symbol,
				Amount:        amount,
			}, nil
		}
	}

	return nil, errors.Wrapf(entities.ErrInsufficientBalance,
		"no chain holds at least %s for wallet %s", s.minAmount.String(), address)
}

func (s *SchedulerService) shuffleChains(chains []config.ChainConfig) {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	for i := len(chains) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		chains[i], chains[j] = chains[j], chains[i]
	}
}

func (s *SchedulerService) pickDestination(chains []config.ChainConfig, sourceChain, token string) (string, bool) {
	var candidates []string
	for _, c := range chains {
		if c.Name == sourceChain {
			continue
		}
		for _, t := range c.Tokens {
			if t.Symbol == token {
				candidates = append(candidates, c.Name)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", false
	}

	s.randMu.Lock()
	defer s.randMu.Unlock()
	return candidates[s.rng.Intn(len(candidates))], true
}

// drawAmount sizes the transfer between the configured percent bounds of
// the balance, floored at the minimum transfer amount.
func (s *SchedulerService) drawAmount(balance decimal.Decimal) decimal.Decimal {
	s.randMu.Lock()
	pct := s.cfg.MinAmountPercent + s.rng.Intn(s.cfg.MaxAmountPercent-s.cfg.MinAmountPercent+1)
	s.randMu.Unlock()

	amount := balance.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
	if amount.LessThan(s.minAmount) {
		amount = s.minAmount
	}
	if amount.GreaterThan(balance) {
		amount = balance
	}
	return amount.Round(6)
}
