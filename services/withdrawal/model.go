package withdrawal

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusPaid      Status = "PAID"
	StatusRejected  Status = "REJECTED"
)

// PayoutRequest is an editor-initiated withdrawal drawing against the
// unlocked wallet balance. Funds are debited at approval, not at creation.
type PayoutRequest struct {
	RequestID      string          `gorm:"column:request_id;primaryKey"`
	EditorID       string          `gorm:"column:editor_id;index"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(20,6)"`
	PayoutMethod   string          `gorm:"column:payout_method"`
	Status         Status          `gorm:"column:status;index"`
	ProcessedBy    string          `gorm:"column:processed_by"`
	ProcessedAt    *time.Time      `gorm:"column:processed_at"`
	TransactionRef string          `gorm:"column:transaction_ref"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }
