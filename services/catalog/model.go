package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is an editor skill classification determining the per-minute rate.
type Tier string

const (
	TierJunior   Tier = "JUNIOR"
	TierStandard Tier = "STANDARD"
	TierSenior   Tier = "SENIOR"
	TierElite    Tier = "ELITE"
)

func (t Tier) Valid() bool {
	switch t {
	case TierJunior, TierStandard, TierSenior, TierElite:
		return true
	}
	return false
}

// TierRate is one billing rate row. Admin edits insert new rows with a later
// effective_from rather than mutating old ones, so historical breakdowns stay
// reproducible.
type TierRate struct {
	RateID        string          `gorm:"column:rate_id;primaryKey"`
	Tier          Tier            `gorm:"column:tier;index"`
	RatePerMinute decimal.Decimal `gorm:"column:rate_per_minute;type:decimal(20,6)"`
	RushEligible  bool            `gorm:"column:rush_eligible"`
	Active        bool            `gorm:"column:active"`
	EffectiveFrom time.Time       `gorm:"column:effective_from;index"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (TierRate) TableName() string { return "tier_rates" }

// SkuConfig defines, per service SKU, the billable-minute scaling and the
// fraction of project revenue earmarked as the editor budget cap.
type SkuConfig struct {
	SkuConfigID             string          `gorm:"column:sku_config_id;primaryKey"`
	SkuCode                 string          `gorm:"column:sku_code;index"`
	BillableMinutesBase     decimal.Decimal `gorm:"column:billable_minutes_base;type:decimal(20,6)"`
	DifficultyFactorDefault decimal.Decimal `gorm:"column:difficulty_factor_default;type:decimal(20,6)"`
	EditorBudgetPct         decimal.Decimal `gorm:"column:editor_budget_pct;type:decimal(9,6)"`
	IncentivePoolPct        decimal.Decimal `gorm:"column:incentive_pool_pct;type:decimal(9,6)"`
	Active                  bool            `gorm:"column:active"`
	EffectiveFrom           time.Time       `gorm:"column:effective_from;index"`
	CreatedAt               time.Time       `gorm:"column:created_at"`
	UpdatedAt               time.Time       `gorm:"column:updated_at"`
}

func (SkuConfig) TableName() string { return "sku_configs" }
