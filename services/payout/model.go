package payout

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"studiopay/services/bonus"
	"studiopay/services/catalog"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "ACTIVE"
	ProjectAtRisk    ProjectStatus = "AT_RISK"
	ProjectDelayed   ProjectStatus = "DELAYED"
	ProjectCompleted ProjectStatus = "COMPLETED"
)

type MilestoneStatus string

const (
	MilestoneLocked     MilestoneStatus = "LOCKED"
	MilestoneInProgress MilestoneStatus = "IN_PROGRESS"
	MilestoneSubmitted  MilestoneStatus = "SUBMITTED"
	MilestoneApproved   MilestoneStatus = "APPROVED"
	MilestoneRejected   MilestoneStatus = "REJECTED"
)

// Terminal reports whether the milestone has reached a final review verdict.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneApproved || s == MilestoneRejected
}

type BreakdownStatus string

const (
	BreakdownPending  BreakdownStatus = "PENDING"
	BreakdownUnlocked BreakdownStatus = "UNLOCKED"
)

type Editor struct {
	EditorID    string       `gorm:"column:editor_id;primaryKey"`
	DisplayName string       `gorm:"column:display_name"`
	Tier        catalog.Tier `gorm:"column:tier"`
	CreatedAt   time.Time    `gorm:"column:created_at"`
	UpdatedAt   time.Time    `gorm:"column:updated_at"`
}

func (Editor) TableName() string { return "editors" }

// Project is the unit of completion. payouts_unlocked_at is the idempotency
// guard for the unlock: non-null means wallets were already credited, and it
// is only ever set inside the same transaction as those credits.
type Project struct {
	ProjectID         string          `gorm:"column:project_id;primaryKey"`
	Title             string          `gorm:"column:title"`
	SkuCode           string          `gorm:"column:sku_code;index"`
	TotalPrice        decimal.Decimal `gorm:"column:total_price;type:decimal(20,6)"`
	Status            ProjectStatus   `gorm:"column:status;index"`
	PayoutsUnlockedAt *time.Time      `gorm:"column:payouts_unlocked_at"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

func (Project) TableName() string { return "projects" }

// ProjectEditor assigns an editor to a project. BudgetShare, when set, is the
// editor's fraction of the project's editor budget pool; unset means the pool
// is split equally across all assigned editors.
type ProjectEditor struct {
	ProjectID   string              `gorm:"column:project_id;primaryKey"`
	EditorID    string              `gorm:"column:editor_id;primaryKey"`
	BudgetShare decimal.NullDecimal `gorm:"column:budget_share;type:decimal(9,6)"`
	CreatedAt   time.Time           `gorm:"column:created_at"`
}

func (ProjectEditor) TableName() string { return "project_editors" }

type Milestone struct {
	MilestoneID              string              `gorm:"column:milestone_id;primaryKey"`
	ProjectID                string              `gorm:"column:project_id;index"`
	AssignedEditorID         string              `gorm:"column:assigned_editor_id;index"`
	Status                   MilestoneStatus     `gorm:"column:status"`
	DueDate                  *time.Time          `gorm:"column:due_date"`
	SubmittedAt              *time.Time          `gorm:"column:submitted_at"`
	ApprovedAt               *time.Time          `gorm:"column:approved_at"`
	QcGuidelinesScore        decimal.NullDecimal `gorm:"column:qc_guidelines_score;type:decimal(4,2)"`
	QcAvQualityScore         decimal.NullDecimal `gorm:"column:qc_av_quality_score;type:decimal(4,2)"`
	QcSelfRelianceScore      decimal.NullDecimal `gorm:"column:qc_self_reliance_score;type:decimal(4,2)"`
	LateMinutes              decimal.Decimal     `gorm:"column:late_minutes;type:decimal(20,6)"`
	DifficultyFactorOverride decimal.NullDecimal `gorm:"column:difficulty_factor_override;type:decimal(9,6)"`
	CreatedAt                time.Time           `gorm:"column:created_at"`
	UpdatedAt                time.Time           `gorm:"column:updated_at"`
}

func (Milestone) TableName() string { return "milestones" }

// QcAverage derives the milestone's QC average from its three scores. It is
// never stored; the second return is false when any score is missing.
func (m *Milestone) QcAverage() (decimal.Decimal, bool) {
	if !m.QcGuidelinesScore.Valid || !m.QcAvQualityScore.Valid || !m.QcSelfRelianceScore.Valid {
		return decimal.Zero, false
	}
	sum := m.QcGuidelinesScore.Decimal.
		Add(m.QcAvQualityScore.Decimal).
		Add(m.QcSelfRelianceScore.Decimal)
	return sum.Div(decimal.NewFromInt(3)), true
}

// PayoutBreakdown is the full computation record for one (project, editor)
// pair. PENDING rows may be overwritten by recomputation; UNLOCKED rows are
// immutable.
type PayoutBreakdown struct {
	BreakdownID       string          `gorm:"column:breakdown_id;primaryKey"`
	ProjectID         string          `gorm:"column:project_id;uniqueIndex:idx_breakdown_project_editor"`
	EditorID          string          `gorm:"column:editor_id;uniqueIndex:idx_breakdown_project_editor"`
	BillableMinutes   decimal.Decimal `gorm:"column:billable_minutes;type:decimal(20,6)"`
	TierRate          decimal.Decimal `gorm:"column:tier_rate;type:decimal(20,6)"`
	BasePayout        decimal.Decimal `gorm:"column:base_payout;type:decimal(20,6)"`
	ReliabilityFactor decimal.Decimal `gorm:"column:reliability_factor;type:decimal(9,6)"`
	LateMinutes       decimal.Decimal `gorm:"column:late_minutes;type:decimal(20,6)"`
	QualityFactor     decimal.Decimal `gorm:"column:quality_factor;type:decimal(9,6)"`
	QcAverage         decimal.Decimal `gorm:"column:qc_average;type:decimal(4,2)"`
	AfterFactors      decimal.Decimal `gorm:"column:after_factors;type:decimal(20,6)"`
	EditorBudgetCap   decimal.Decimal `gorm:"column:editor_budget_cap;type:decimal(20,6)"`
	CappedPayout      decimal.Decimal `gorm:"column:capped_payout;type:decimal(20,6)"`
	BonusesApplied    datatypes.JSON  `gorm:"column:bonuses_applied"`
	BonusAmount       decimal.Decimal `gorm:"column:bonus_amount;type:decimal(20,6)"`
	FinalPayout       decimal.Decimal `gorm:"column:final_payout;type:decimal(20,6)"`
	Status            BreakdownStatus `gorm:"column:status;index"`
	UnlockedAt        *time.Time      `gorm:"column:unlocked_at"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at"`
}

func (PayoutBreakdown) TableName() string { return "payout_breakdowns" }

// Awards decodes the bonuses recorded on this breakdown.
func (b *PayoutBreakdown) Awards() []bonus.Award {
	awards := []bonus.Award{}
	if len(b.BonusesApplied) > 0 {
		_ = json.Unmarshal(b.BonusesApplied, &awards)
	}
	return awards
}

// BreakdownView is the wire representation consumed by the earnings display.
// Field names are a stable contract and must not be renamed.
type BreakdownView struct {
	ProjectID         string          `json:"projectId"`
	EditorID          string          `json:"editorId"`
	BillableMinutes   decimal.Decimal `json:"billableMinutes"`
	TierRate          decimal.Decimal `json:"tierRate"`
	BasePayout        decimal.Decimal `json:"basePayout"`
	ReliabilityFactor decimal.Decimal `json:"reliabilityFactor"`
	LateMinutes       decimal.Decimal `json:"lateMinutes"`
	QualityFactor     decimal.Decimal `json:"qualityFactor"`
	QcAverage         decimal.Decimal `json:"qcAverage"`
	AfterFactors      decimal.Decimal `json:"afterFactors"`
	EditorBudgetCap   decimal.Decimal `json:"editorBudgetCap"`
	CappedPayout      decimal.Decimal `json:"cappedPayout"`
	BonusesApplied    []bonus.Award   `json:"bonusesApplied"`
	BonusAmount       decimal.Decimal `json:"bonusAmount"`
	FinalPayout       decimal.Decimal `json:"finalPayout"`
	Status            BreakdownStatus `json:"status"`
	UnlockedAt        *time.Time      `json:"unlockedAt,omitempty"`
}

func (b *PayoutBreakdown) View() BreakdownView {
	return BreakdownView{
		ProjectID:         b.ProjectID,
		EditorID:          b.EditorID,
		BillableMinutes:   b.BillableMinutes,
		TierRate:          b.TierRate,
		BasePayout:        b.BasePayout,
		ReliabilityFactor: b.ReliabilityFactor,
		LateMinutes:       b.LateMinutes,
		QualityFactor:     b.QualityFactor,
		QcAverage:         b.QcAverage,
		AfterFactors:      b.AfterFactors,
		EditorBudgetCap:   b.EditorBudgetCap,
		CappedPayout:      b.CappedPayout,
		BonusesApplied:    b.Awards(),
		BonusAmount:       b.BonusAmount,
		FinalPayout:       b.FinalPayout,
		Status:            b.Status,
		UnlockedAt:        b.UnlockedAt,
	}
}
