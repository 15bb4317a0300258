package repositories

import (
	"context"
	"errors"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"gorm.io/gorm"
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create creates a new wallet record. A unique-key violation surfaces as
// ErrDuplicateWallet so concurrent adds of the same key both get the
// domain error.
func (r *WalletRepository) Create(ctx context.Context, wallet *entities.Wallet) error {
	err := r.db.WithContext(ctx).Create(wallet).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return entities.ErrDuplicateWallet
	}
	return err
}

// GetByAddress retrieves a wallet by address
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*entities.Wallet, error) {
	var wallet entities.Wallet
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entities.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetAll retrieves all wallets ordered by creation time
func (r *WalletRepository) GetAll(ctx context.Context) ([]entities.Wallet, error) {
	var wallets []entities.Wallet
	err := r.db.WithContext(ctx).Order("create_at ASC").Find(&wallets).Error
	return wallets, err
}

// Delete removes a wallet record
func (r *WalletRepository) Delete(ctx context.Context, address string) error {
	result := r.db.WithContext(ctx).Where("address = ?", address).Delete(&entities.Wallet{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entities.ErrWalletNotFound
	}
	return nil
}

// Count returns the number of managed wallets
func (r *WalletRepository) Count(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Wallet{}).Count(&count).Error
	return int(count), err
}

// UpsertBalance creates or updates a cached balance row
func (r *WalletRepository) UpsertBalance(ctx context.Context, balance *entities.WalletBalance) error {
	var existing entities.WalletBalance
	err := r.db.WithContext(ctx).
		Where("wallet_address = ? AND chain = ? AND token = ?",
			balance.WalletAddress, balance.Chain, balance.Token).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.WithContext(ctx).Create(balance).Error
	}
	if err != nil {
		return err
	}

	existing.Balance = balance.Balance
	existing.LastChecked = balance.LastChecked
	return r.db.WithContext(ctx).Save(&existing).Error
}

// GetBalances retrieves all cached balances for a wallet
func (r *WalletRepository) GetBalances(ctx context.Context, address string) ([]entities.WalletBalance, error) {
	var balances []entities.WalletBalance
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", address).
		Order("chain ASC, token ASC").
		Find(&balances).Error
	return balances, err
}

// GetBalance retrieves one cached balance row
func (r *WalletRepository) GetBalance(ctx context.Context, address, chain, token string) (*entities.WalletBalance, error) {
	var balance entities.WalletBalance
	err := r.db.WithContext(ctx).
		Where("wallet_address = ? AND chain = ? AND token = ?", address, chain, token).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// DeleteBalances removes all cached balances for a wallet
func (r *WalletRepository) DeleteBalances(ctx context.Context, address string) error {
	return r.db.WithContext(ctx).
		Where("wallet_address = ?", address).
		Delete(&entities.WalletBalance{}).Error
}
