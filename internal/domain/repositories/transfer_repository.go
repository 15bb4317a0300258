package repositories

import (
	"context"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
)

// TransferRepository defines the interface for transfer history operations
type TransferRepository interface {
	Create(ctx context.Context, transfer *entities.Transfer) error
	Update(ctx context.Context, transfer *entities.Transfer) error
	GetByID(ctx context.Context, id string) (*entities.Transfer, error)
	GetByWallet(ctx context.Context, address string) ([]entities.Transfer, error)
	GetByWalletAndRange(ctx context.Context, address string, from, to time.Time) ([]entities.Transfer, error)
}
