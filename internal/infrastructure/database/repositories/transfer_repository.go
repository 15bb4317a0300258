package repositories

import (
	"context"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"gorm.io/gorm"
)

type TransferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Create creates a new transfer record
func (r *TransferRepository) Create(ctx context.Context, transfer *entities.Transfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

// Update updates a transfer record
func (r *TransferRepository) Update(ctx context.Context, transfer *entities.Transfer) error {
	return r.db.WithContext(ctx).Save(transfer).Error
}

// GetByID retrieves a transfer by id
func (r *TransferRepository) GetByID(ctx context.Context, id string) (*entities.Transfer, error) {
	var transfer entities.Transfer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

// GetByWallet retrieves transfer history for a wallet, newest first
func (r *TransferRepository) GetByWallet(ctx context.Context, address string) ([]entities.Transfer, error) {
	var transfers []entities.Transfer
	err := r.db.WithContext(ctx).
		Where("wallet_address = ?", address).
		Order("create_at DESC").
		Find(&transfers).Error
	return transfers, err
}

// GetByWalletAndRange retrieves transfer history for a wallet within a time range
func (r *TransferRepository) GetByWalletAndRange(ctx context.Context, address string, from, to time.Time) ([]entities.Transfer, error) {
	var transfers []entities.Transfer
	err := r.db.WithContext(ctx).
		Where("wallet_address = ? AND create_at BETWEEN ? AND ?", address, from, to).
		Order("create_at DESC").
		Find(&transfers).Error
	return transfers, err
}
