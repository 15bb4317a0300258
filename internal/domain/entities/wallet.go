package entities

import "time"

// Wallet represents a managed wallet. The private key is stored only as an
// encrypted blob; the plaintext never touches this struct.
type Wallet struct {
	Address      string    `gorm:"primaryKey;size:64;column:address"`
	Label        string    `gorm:"size:100;column:label"`
	EncryptedKey string    `gorm:"type:text;not null;column:encrypted_key" json:"-"`
	CreateAt     time.Time `gorm:"column:create_at;default:CURRENT_TIMESTAMP;not null"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// WalletSummary is the listing view of a wallet; no key material.
type WalletSummary struct {
	Address  string    `json:"address"`
	Label    string    `json:"label"`
	CreateAt time.Time `json:"created_at"`
}

// Summary strips the wallet down to its listable fields.
func (w Wallet) Summary() WalletSummary {
	return WalletSummary{
		Address:  w.Address,
		Label:    w.Label,
		CreateAt: w.CreateAt,
	}
}

// WalletBalance is a cached per-chain token balance for a wallet.
type WalletBalance struct {
	ID            int       `gorm:"primaryKey;autoIncrement;column:id"`
	WalletAddress string    `gorm:"size:64;index:idx_wallet_balances_wallet;column:wallet_address"`
	Chain         string    `gorm:"size:50;column:chain"`
	Token         string    `gorm:"size:20;column:token"`
	Balance       string    `gorm:"type:numeric(38,18);column:balance"`
	LastChecked   time.Time `gorm:"column:last_checked"`
}

func (WalletBalance) TableName() string {
	return "wallet_balances"
}
