package repositories

import (
	"context"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
)

// ScheduleEntryRepository defines the interface for schedule persistence
type ScheduleEntryRepository interface {
	Create(ctx context.Context, entry *entities.ScheduleEntry) error
	CreateBatch(ctx context.Context, entries []entities.ScheduleEntry) error
	Update(ctx context.Context, entry *entities.ScheduleEntry) error
	GetDue(ctx context.Context, now time.Time) ([]entities.ScheduleEntry, error)
	GetPendingByWallet(ctx context.Context, address string) ([]entities.ScheduleEntry, error)
	CountPending(ctx context.Context) (int, error)
	DeletePendingByWallet(ctx context.Context, address string) error
	DeleteByWallet(ctx context.Context, address string) error
}
