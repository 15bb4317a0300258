package entities

import "time"

// ScheduleEntry is one planned fire time for a wallet. Entries are replaced
// after each fire with a freshly drawn NextFireAt, never mutated in place;
// persisted rows let pending fires survive a restart.
type ScheduleEntry struct {
	ID            int       `gorm:"primaryKey;autoIncrement;column:id"`
	WalletAddress string    `gorm:"size:64;index:idx_schedule_entries_wallet;column:wallet_address"`
	NextFireAt    time.Time `gorm:"column:next_fire_at;index:idx_schedule_entries_due"`
	Executed      bool      `gorm:"column:executed;default:false;index:idx_schedule_entries_due"`
	CreateAt      time.Time `gorm:"column:create_at;default:CURRENT_TIMESTAMP;not null"`
}

func (ScheduleEntry) TableName() string {
	return "schedule_entries"
}
