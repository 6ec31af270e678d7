package bonus

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BonusRule is an admin-managed rule granting a fixed bonus amount when its
// CEL expression matches the payout facts. New bonus types (mission rewards,
// promotional codes) are new rows, not new code.
type BonusRule struct {
	RuleID      string          `gorm:"column:rule_id;primaryKey"`
	Code        string          `gorm:"column:code;uniqueIndex"`
	Description string          `gorm:"column:description"`
	Expression  string          `gorm:"column:expression"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(20,6)"`
	Priority    int32           `gorm:"column:priority"`
	Active      bool            `gorm:"column:active"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (BonusRule) TableName() string { return "bonus_rules" }

// Facts are the project/editor attributes a rule expression may reference.
// Entries are exposed as top-level CEL variables.
type Facts map[string]any

// Award is one granted bonus, recorded verbatim on the breakdown.
type Award struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// Engine evaluates all applicable bonus rules against a set of facts.
type Engine interface {
	Evaluate(ctx context.Context, facts Facts) ([]Award, error)
}
