package entities

import "time"

// TransferStatus is the lifecycle state of a persisted transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferExecuting TransferStatus = "executing"
	TransferCompleted TransferStatus = "completed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is the persisted record of one bridge attempt. Once completed or
// failed the row is append-only history.
type Transfer struct {
	ID            string         `gorm:"primaryKey;size:36;column:id"`
	WalletAddress string         `gorm:"size:64;index:idx_transfers_wallet_createat;column:wallet_address"`
	FromChain     string         `gorm:"size:50;column:from_chain"`
	ToChain       string         `gorm:"size:50;column:to_chain"`
	FromToken     string         `gorm:"size:20;column:from_token"`
	ToToken       string         `gorm:"size:20;column:to_token"`
	Amount        string         `gorm:"type:numeric(38,18);column:amount"`
	Status        TransferStatus `gorm:"size:20;column:status"`
	ProviderUsed  string         `gorm:"size:20;column:provider_used"`
	TxReference   string         `gorm:"size:200;column:tx_reference"`
	ErrorKind     string         `gorm:"size:50;column:error_kind"`
	CreateAt      time.Time      `gorm:"column:create_at;index:idx_transfers_wallet_createat"`
	CompletedAt   *time.Time     `gorm:"column:completed_at"`
}

func (Transfer) TableName() string {
	return "transfers"
}
