package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds an editor's withdrawable earnings. unlocked_balance never goes
// negative; lifetime_earnings only ever grows.
type Wallet struct {
	EditorID         string          `gorm:"column:editor_id;primaryKey"`
	UnlockedBalance  decimal.Decimal `gorm:"column:unlocked_balance;type:decimal(20,6)"`
	LifetimeEarnings decimal.Decimal `gorm:"column:lifetime_earnings;type:decimal(20,6)"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
}

func (Wallet) TableName() string { return "wallets" }
