package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/errutil"
	"studiopay/pkg/repository"
	"studiopay/services/adjustment"
	"studiopay/services/bonus"
	"studiopay/services/catalog"
)

// Computer produces the full payout breakdown for one (project, editor)
// pair: billable minutes from approved milestones, tier rate, reliability
// and quality factors, budget cap, and bonus awards. All monetary results
// are rounded to 2 decimal places, factors to 4.
type Computer struct {
	db      *gorm.DB
	node    *snowflake.Node
	catalog *catalog.Service
	bonuses bonus.Engine

	editors     repository.Repository[Editor]
	projects    repository.Repository[Project]
	assignments repository.Repository[ProjectEditor]
	milestones  repository.Repository[Milestone]
	breakdowns  repository.Repository[PayoutBreakdown]
}

type ComputerParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Catalog *catalog.Service
	Bonuses bonus.Engine
}

func NewComputer(p ComputerParams) *Computer {
	return &Computer{
		db:          p.DB,
		node:        p.Node,
		catalog:     p.Catalog,
		bonuses:     p.Bonuses,
		editors:     repository.ProvideStore[Editor](p.DB),
		projects:    repository.ProvideStore[Project](p.DB),
		assignments: repository.ProvideStore[ProjectEditor](p.DB),
		milestones:  repository.ProvideStore[Milestone](p.DB),
		breakdowns:  repository.ProvideStore[PayoutBreakdown](p.DB),
	}
}

// ComputeBreakdown computes and persists the breakdown for the pair in its
// own transaction. A PENDING row is overwritten so upstream corrections made
// before unlock are picked up; an UNLOCKED row rejects recomputation.
func (c *Computer) ComputeBreakdown(ctx context.Context, projectID, editorID string) (*PayoutBreakdown, error) {
	var result *PayoutBreakdown
	err := c.db.Transaction(func(tx *gorm.DB) error {
		project, err := c.projects.WithTrx(tx).FindOne(ctx, &Project{ProjectID: projectID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if project == nil {
			return errutil.NotFound(fmt.Sprintf("project %s not found", projectID), nil)
		}

		result, err = c.computeBreakdown(ctx, tx, project, editorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// computeBreakdown runs the computation under the caller's transaction; the
// unlock path shares this so its breakdowns commit atomically with the
// wallet credits. The caller holds the project row lock.
func (c *Computer) computeBreakdown(ctx context.Context, tx *gorm.DB, project *Project, editorID string) (*PayoutBreakdown, error) {
	existing, err := c.breakdowns.WithTrx(tx).FindOne(ctx, &PayoutBreakdown{
		ProjectID: project.ProjectID,
		EditorID:  editorID,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == BreakdownUnlocked {
		return nil, errutil.Conflict(fmt.Sprintf("payout for project %s editor %s is already unlocked", project.ProjectID, editorID), nil)
	}

	editor, err := c.editors.WithTrx(tx).FindOne(ctx, &Editor{EditorID: editorID})
	if err != nil {
		return nil, err
	}
	if editor == nil {
		return nil, errutil.NotFound(fmt.Sprintf("editor %s not found", editorID), nil)
	}

	assignments, err := c.assignments.WithTrx(tx).Find(ctx, &ProjectEditor{ProjectID: project.ProjectID})
	if err != nil {
		return nil, err
	}
	var assignment *ProjectEditor
	for _, a := range assignments {
		if a.EditorID == editorID {
			assignment = a
			break
		}
	}
	if assignment == nil {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("editor %s is not assigned to project %s", editorID, project.ProjectID), nil)
	}
	if project.Status != ProjectCompleted {
		return nil, errutil.UnprocessableEntity(fmt.Sprintf("project %s is not completed", project.ProjectID), nil)
	}

	milestones, err := c.milestones.WithTrx(tx).Find(ctx, &Milestone{
		ProjectID:        project.ProjectID,
		AssignedEditorID: editorID,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range milestones {
		if !m.Status.Terminal() {
			return nil, errutil.UnprocessableEntity(fmt.Sprintf("milestone %s is still %s", m.MilestoneID, m.Status), nil)
		}
	}

	sku, err := c.catalog.ResolveSkuConfig(ctx, project.SkuCode)
	if err != nil {
		return nil, err
	}
	rate, err := c.catalog.ResolveTierRate(ctx, editor.Tier)
	if err != nil {
		return nil, err
	}

	billableMinutes := decimal.Zero
	lateMinutes := decimal.Zero
	qcSum := decimal.Zero
	qcScored := 0
	for _, m := range milestones {
		if m.Status != MilestoneApproved {
			continue
		}
		difficulty := sku.DifficultyFactorDefault
		if m.DifficultyFactorOverride.Valid {
			difficulty = m.DifficultyFactorOverride.Decimal
		}
		billableMinutes = billableMinutes.Add(sku.BillableMinutesBase.Mul(difficulty))
		lateMinutes = lateMinutes.Add(m.LateMinutes)
		if avg, ok := m.QcAverage(); ok {
			qcSum = qcSum.Add(avg)
			qcScored++
		}
	}
	billableMinutes = billableMinutes.Round(2)

	basePayout := billableMinutes.Mul(rate.RatePerMinute).Round(2)

	reliabilityFactor, err := adjustment.ReliabilityFactor(lateMinutes)
	if err != nil {
		return nil, err
	}

	// An unscored editor is neither penalized nor rewarded.
	qcAverage := decimal.Zero
	qualityFactor := decimal.NewFromInt(1)
	if qcScored > 0 {
		qcAverage = qcSum.Div(decimal.NewFromInt(int64(qcScored))).Round(2)
		qualityFactor, err = adjustment.QualityFactor(qcAverage)
		if err != nil {
			return nil, err
		}
	}

	afterFactors := basePayout.Mul(reliabilityFactor).Mul(qualityFactor).Round(2)

	editorBudgetCap := c.budgetCap(project, sku, assignment, len(assignments))

	cappedPayout := afterFactors
	if cappedPayout.GreaterThan(editorBudgetCap) {
		cappedPayout = editorBudgetCap
	}

	awards, err := c.bonuses.Evaluate(ctx, bonus.Facts{
		"project_id":       project.ProjectID,
		"editor_id":        editorID,
		"sku_code":         project.SkuCode,
		"tier":             string(editor.Tier),
		"billable_minutes": billableMinutes.InexactFloat64(),
		"late_minutes":     lateMinutes.InexactFloat64(),
		"qc_average":       qcAverage.InexactFloat64(),
		"capped_payout":    cappedPayout.InexactFloat64(),
	})
	if err != nil {
		return nil, err
	}
	bonusAmount := decimal.Zero
	for _, award := range awards {
		bonusAmount = bonusAmount.Add(award.Amount)
	}
	bonusAmount = bonusAmount.Round(2)
	bonusesApplied, err := json.Marshal(awards)
	if err != nil {
		return nil, err
	}

	finalPayout := cappedPayout.Add(bonusAmount)

	now := time.Now().UTC()
	breakdown := &PayoutBreakdown{
		BreakdownID:       c.node.Generate().String(),
		ProjectID:         project.ProjectID,
		EditorID:          editorID,
		BillableMinutes:   billableMinutes,
		TierRate:          rate.RatePerMinute,
		BasePayout:        basePayout,
		ReliabilityFactor: reliabilityFactor,
		LateMinutes:       lateMinutes,
		QualityFactor:     qualityFactor,
		QcAverage:         qcAverage,
		AfterFactors:      afterFactors,
		EditorBudgetCap:   editorBudgetCap,
		CappedPayout:      cappedPayout,
		BonusesApplied:    bonusesApplied,
		BonusAmount:       bonusAmount,
		FinalPayout:       finalPayout,
		Status:            BreakdownPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if existing != nil {
		breakdown.BreakdownID = existing.BreakdownID
		breakdown.CreatedAt = existing.CreatedAt
		if err := c.breakdowns.WithTrx(tx).Update(ctx, existing.BreakdownID, map[string]any{
			"billable_minutes":   breakdown.BillableMinutes,
			"tier_rate":          breakdown.TierRate,
			"base_payout":        breakdown.BasePayout,
			"reliability_factor": breakdown.ReliabilityFactor,
			"late_minutes":       breakdown.LateMinutes,
			"quality_factor":     breakdown.QualityFactor,
			"qc_average":         breakdown.QcAverage,
			"after_factors":      breakdown.AfterFactors,
			"editor_budget_cap":  breakdown.EditorBudgetCap,
			"capped_payout":      breakdown.CappedPayout,
			"bonuses_applied":    breakdown.BonusesApplied,
			"bonus_amount":       breakdown.BonusAmount,
			"final_payout":       breakdown.FinalPayout,
			"updated_at":         now,
		}); err != nil {
			return nil, err
		}
		return breakdown, nil
	}

	if err := c.breakdowns.WithTrx(tx).Create(ctx, breakdown); err != nil {
		return nil, err
	}
	return breakdown, nil
}

// budgetCap apportions the project's editor budget pool. An explicit
// budget_share on the assignment wins; otherwise the pool is split equally
// across all assigned editors.
func (c *Computer) budgetCap(project *Project, sku *catalog.SkuConfig, assignment *ProjectEditor, editorCount int) decimal.Decimal {
	pool := project.TotalPrice.Mul(sku.EditorBudgetPct)
	if assignment.BudgetShare.Valid {
		return pool.Mul(assignment.BudgetShare.Decimal).Round(2)
	}
	if editorCount < 1 {
		editorCount = 1
	}
	return pool.Div(decimal.NewFromInt(int64(editorCount))).Round(2)
}
