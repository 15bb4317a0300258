package repositories

import (
	"context"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"gorm.io/gorm"
)

type ScheduleEntryRepository struct {
	db *gorm.DB
}

func NewScheduleEntryRepository(db *gorm.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

// Create creates a new schedule entry
func (r *ScheduleEntryRepository) Create(ctx context.Context, entry *entities.ScheduleEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// CreateBatch creates multiple schedule entries
func (r *ScheduleEntryRepository) CreateBatch(ctx context.Context, entries []entities.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// Update updates a schedule entry
func (r *ScheduleEntryRepository) Update(ctx context.Context, entry *entities.ScheduleEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// GetDue retrieves unexecuted entries whose fire time has passed
func (r *ScheduleEntryRepository) GetDue(ctx context.Context, now time.Time) ([]entities.ScheduleEntry, error) {
	var entries []entities.ScheduleEntry
	err := r.db.WithContext(ctx).
		Where("executed = ? AND next_fire_at <= ?", false, now).
		Order("next_fire_at ASC").
		Find(&entries).Error
	return entries, err
}

// GetPendingByWallet retrieves unexecuted entries for a wallet
func (r *ScheduleEntryRepository) GetPendingByWallet(ctx context.Context, address string) ([]entities.ScheduleEntry, error) {
	var entries []entities.ScheduleEntry
	err := r.db.WithContext(ctx).
		Where("wallet_address = ? AND executed = ?", address, false).
		Order("next_fire_at ASC").
		Find(&entries).Error
	return entries, err
}

// CountPending returns the number of unexecuted entries across all wallets
func (r *ScheduleEntryRepository) CountPending(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.ScheduleEntry{}).
		Where("executed = ?", false).
		Count(&count).Error
	return int(count), err
}

// DeletePendingByWallet removes unexecuted entries for a wallet
func (r *ScheduleEntryRepository) DeletePendingByWallet(ctx context.Context, address string) error {
	return r.db.WithContext(ctx).
		Where("wallet_address = ? AND executed = ?", address, false).
		Delete(&entities.ScheduleEntry{}).Error
}

// DeleteByWallet removes all entries for a wallet
func (r *ScheduleEntryRepository) DeleteByWallet(ctx context.Context, address string) error {
	return r.db.WithContext(ctx).
		Where("wallet_address = ?", address).
		Delete(&entities.ScheduleEntry{}).Error
}
