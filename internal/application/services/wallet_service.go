package services

import (
	"context"
	"strings"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/crypto"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/repositories"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletService manages the wallet store: encrypted key custody, balance
// caching, and scoped decryption for transfer execution.
type WalletService struct {
	walletRepo   repositories.WalletRepository
	scheduleRepo repositories.ScheduleEntryRepository
	cryptoBox    *crypto.AESCrypto
	evmClient    *evm.Client
	locks        *walletLocks
	logger       *zap.Logger
}

// NewWalletService creates a new wallet service.
func NewWalletService(
	walletRepo repositories.WalletRepository,
	scheduleRepo repositories.ScheduleEntryRepository,
	cryptoBox *crypto.AESCrypto,
	evmClient *evm.Client,
	logger *zap.Logger,
) *WalletService {
	return &WalletService{
		walletRepo:   walletRepo,
		scheduleRepo: scheduleRepo,
		cryptoBox:    cryptoBox,
		evmClient:    evmClient,
		locks:        newWalletLocks(),
		logger:       logger,
	}
}

// AddWallet derives the address from the given private key, encrypts the
// key and stores the wallet. The plaintext key is wiped before returning.
func (s *WalletService) AddWallet(ctx context.Context, privateKeyHex, label string) (*entities.WalletSummary, error) {
	keyHex := strings.TrimSpace(privateKeyHex)
	if keyHex == "" {
		return nil, errors.Wrap(entities.ErrValidation, "private key is empty")
	}

	address, err := evm.AddressFromPrivateKeyHex(keyHex)
	if err != nil {
		return nil, err
	}

	existing, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil && !errors.Is(err, entities.ErrWalletNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(entities.ErrDuplicateWallet, "address %s", address)
	}

	keyBytes := []byte(strings.TrimPrefix(keyHex, "0x"))
	encrypted, err := s.cryptoBox.EncryptPrivateKey(keyBytes)
	crypto.Zero(keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt private key")
	}

	wallet := &entities.Wallet{
		Address:      address,
		Label:        label,
		EncryptedKey: encrypted,
		CreateAt:     time.Now(),
	}

	if err := s.walletRepo.Create(ctx, wallet); err != nil {
		return nil, err
	}

	s.logger.Info("Wallet added",
		zap.String("address", address),
		zap.String("label", label),
	)

	summary := wallet.Summary()
	return &summary, nil
}

// RemoveWallet deletes a wallet together with its cached balances and
// pending schedule entries. Fails fast when a transfer is in flight.
func (s *WalletService) RemoveWallet(ctx context.Context, address string) error {
	release, ok := s.locks.TryAcquire(address)
	if !ok {
		return errors.Wrapf(entities.ErrExecuting, "wallet %s", address)
	}
	defer release()

	if err := s.walletRepo.Delete(ctx, address); err != nil {
		return err
	}
	if err := s.walletRepo.DeleteBalances(ctx, address); err != nil {
		return err
	}
	if err := s.scheduleRepo.DeleteByWallet(ctx, address); err != nil {
		return err
	}

	s.logger.Info("Wallet removed", zap.String("address", address))
	return nil
}

// ListWallets returns all managed wallets without key material.
func (s *WalletService) ListWallets(ctx context.Context) ([]entities.WalletSummary, error) {
	wallets, err := s.walletRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]entities.WalletSummary, 0, len(wallets))
	for _, w := range wallets {
		summaries = append(summaries, w.Summary())
	}
	return summaries, nil
}

// GetWallet returns one wallet summary or ErrWalletNotFound.
func (s *WalletService) GetWallet(ctx context.Context, address string) (*entities.WalletSummary, error) {
	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	summary := wallet.Summary()
	return &summary, nil
}

// DecryptForUse decrypts the wallet's key, hands a signer to fn and wipes
// the key material when fn returns. The signer must not escape fn.
func (s *WalletService) DecryptForUse(ctx context.Context, address string, fn func(signer *evm.Signer) error) error {
	wallet, err := s.walletRepo.GetByAddress(ctx, address)
	if err != nil {
		return err
	}

	keyBytes, err := s.cryptoBox.DecryptPrivateKey(wallet.EncryptedKey)
	if err != nil {
		return err
	}
	defer crypto.Zero(keyBytes)

	signer, err := evm.NewSignerFromHex(string(keyBytes))
	if err != nil {
		return err
	}
	defer signer.Clear()

	return fn(signer)
}

// RefreshBalance queries the chain for the wallet's token balance and
// updates the cache. When the chain is unreachable the last cached value is
// returned with stale set to true.
func (s *WalletService) RefreshBalance(ctx context.Context, address, chain, token string) (*entities.WalletBalance, bool, error) {
	if _, err := s.walletRepo.GetByAddress(ctx, address); err != nil {
		return nil, false, err
	}

	tokenCfg, err := s.tokenConfig(chain, token)
	if err != nil {
		return nil, false, err
	}

	fresh, err := s.evmClient.TokenBalance(ctx, chain, tokenCfg.Address, address, tokenCfg.Decimals)
	if err != nil {
		if errors.Is(err, entities.ErrChainUnreachable) {
			cached, cacheErr := s.walletRepo.GetBalance(ctx, address, chain, token)
			if cacheErr == nil && cached != nil {
				s.logger.Warn("Chain unreachable, serving stale balance",
					zap.String("address", address),
					zap.String("chain", chain),
					zap.Error(err),
				)
				return cached, true, nil
			}
		}
		return nil, false, err
	}

	balance := &entities.WalletBalance{
		WalletAddress: address,
		Chain:         chain,
		Token:         token,
		Balance:       fresh.String(),
		LastChecked:   time.Now(),
	}
	if err := s.walletRepo.UpsertBalance(ctx, balance); err != nil {
		return nil, false, err
	}

	return balance, false, nil
}

// CachedBalances returns the cached balances for a wallet.
func (s *WalletService) CachedBalances(ctx context.Context, address string) ([]entities.WalletBalance, error) {
	if _, err := s.walletRepo.GetByAddress(ctx, address); err != nil {
		return nil, err
	}
	return s.walletRepo.GetBalances(ctx, address)
}

// SpendableBalance refreshes and returns the balance used to size a
// transfer. Stale values are rejected so a transfer never sizes off data
// the chain did not just confirm.
func (s *WalletService) SpendableBalance(ctx context.Context, address, chain, token string) (decimal.Decimal, error) {
	balance, stale, err := s.RefreshBalance(ctx, address, chain, token)
	if err != nil {
		return decimal.Zero, err
	}
	if stale {
		return decimal.Zero, errors.Wrapf(entities.ErrChainUnreachable, "balance for %s on %s is stale", address, chain)
	}
	return decimal.NewFromString(balance.Balance)
}

func (s *WalletService) tokenConfig(chain, token string) (config.TokenConfig, error) {
	chainCfg, ok := s.evmClient.Chain(chain)
	if !ok {
		return config.TokenConfig{}, errors.Wrapf(entities.ErrValidation, "unknown chain %q", chain)
	}
	for _, t := range chainCfg.Tokens {
		if strings.EqualFold(t.Symbol, token) {
			return t, nil
		}
	}
	return config.TokenConfig{}, errors.Wrapf(entities.ErrValidation, "token %q not configured on %s", token, chain)
}
