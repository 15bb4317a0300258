package repositories

import (
	"context"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
)

// WalletRepository defines the interface for wallet data operations
type WalletRepository interface {
	Create(ctx context.Context, wallet *entities.Wallet) error
	GetByAddress(ctx context.Context, address string) (*entities.Wallet, error)
	GetAll(ctx context.Context) ([]entities.Wallet, error)
	Delete(ctx context.Context, address string) error
	Count(ctx context.Context) (int, error)

	// Balance cache
	UpsertBalance(ctx context.Context, balance *entities.WalletBalance) error
	GetBalances(ctx context.Context, address string) ([]entities.WalletBalance, error)
	GetBalance(ctx context.Context, address, chain, token string) (*entities.WalletBalance, error)
	DeleteBalances(ctx context.Context, address string) error
}
