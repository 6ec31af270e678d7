package payout

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"studiopay/pkg/errutil"
	"studiopay/services/audit"
	"studiopay/services/bonus"
	"studiopay/services/catalog"
	"studiopay/services/testutil"
	"studiopay/services/wallet"
)

type stubBonusEngine struct {
	awards []bonus.Award
}

func (s stubBonusEngine) Evaluate(_ context.Context, _ bonus.Facts) ([]bonus.Award, error) {
	return s.awards, nil
}

type fixture struct {
	db       *gorm.DB
	computer *Computer
	unlocker *Service
	wallets  *wallet.Service
	audits   *audit.Service
}

func newFixture(t *testing.T, engine bonus.Engine) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&catalog.TierRate{}, &catalog.SkuConfig{},
		&Editor{}, &Project{}, &ProjectEditor{}, &Milestone{}, &PayoutBreakdown{},
		&wallet.Wallet{}, &audit.Entry{},
	)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cat := catalog.NewService(catalog.ServiceParams{DB: db})
	wallets := wallet.NewService(wallet.ServiceParams{DB: db})
	audits := audit.NewService(audit.ServiceParams{DB: db, Node: node})

	computer := NewComputer(ComputerParams{DB: db, Node: node, Catalog: cat, Bonuses: engine})
	unlocker := NewService(ServiceParams{DB: db, Computer: computer, Wallets: wallets, Audits: audits})

	return &fixture{db: db, computer: computer, unlocker: unlocker, wallets: wallets, audits: audits}
}

func requireDecimalEqual(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, actual.Equal(decimal.RequireFromString(expected)),
		"expected %s, got %s", expected, actual.String())
}

func (f *fixture) seedCatalog(t *testing.T, ratePerMinute, minutesBase, budgetPct string) {
	t.Helper()
	require.NoError(t, f.db.Create(&catalog.TierRate{
		RateID:        "rate-standard",
		Tier:          catalog.TierStandard,
		RatePerMinute: decimal.RequireFromString(ratePerMinute),
		Active:        true,
		EffectiveFrom: time.Now().UTC().Add(-time.Hour),
	}).Error)
	require.NoError(t, f.db.Create(&catalog.SkuConfig{
		SkuConfigID:             "sku-talking-head",
		SkuCode:                 "TALKING_HEAD",
		BillableMinutesBase:     decimal.RequireFromString(minutesBase),
		DifficultyFactorDefault: decimal.NewFromInt(1),
		EditorBudgetPct:         decimal.RequireFromString(budgetPct),
		IncentivePoolPct:        decimal.RequireFromString("0.05"),
		Active:                  true,
		EffectiveFrom:           time.Now().UTC().Add(-time.Hour),
	}).Error)
}

func (f *fixture) seedProject(t *testing.T, projectID, totalPrice string, status ProjectStatus, editorIDs ...string) {
	t.Helper()
	require.NoError(t, f.db.Create(&Project{
		ProjectID:  projectID,
		Title:      "launch video",
		SkuCode:    "TALKING_HEAD",
		TotalPrice: decimal.RequireFromString(totalPrice),
		Status:     status,
	}).Error)
	for _, editorID := range editorIDs {
		require.NoError(t, f.db.Create(&Editor{
			EditorID:    editorID,
			DisplayName: editorID,
			Tier:        catalog.TierStandard,
		}).Error)
		require.NoError(t, f.db.Create(&ProjectEditor{ProjectID: projectID, EditorID: editorID}).Error)
	}
}

func (f *fixture) seedApprovedMilestone(t *testing.T, milestoneID, projectID, editorID string, lateMinutes string, qc string) {
	t.Helper()
	m := &Milestone{
		MilestoneID:      milestoneID,
		ProjectID:        projectID,
		AssignedEditorID: editorID,
		Status:           MilestoneApproved,
		LateMinutes:      decimal.RequireFromString(lateMinutes),
	}
	if qc != "" {
		score := decimal.NullDecimal{Decimal: decimal.RequireFromString(qc), Valid: true}
		m.QcGuidelinesScore = score
		m.QcAvQualityScore = score
		m.QcSelfRelianceScore = score
	}
	require.NoError(t, f.db.Create(m).Error)
}

func TestComputeBreakdown_StandardRate(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "50", "0.8")
	f.seedProject(t, "prj-1", "100000", ProjectCompleted, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "5")
	f.seedApprovedMilestone(t, "ms-2", "prj-1", "ed-1", "0", "5")

	breakdown, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)

	requireDecimalEqual(t, "100", breakdown.BillableMinutes)
	requireDecimalEqual(t, "10", breakdown.TierRate)
	requireDecimalEqual(t, "1000", breakdown.BasePayout)
	requireDecimalEqual(t, "1", breakdown.ReliabilityFactor)
	requireDecimalEqual(t, "0", breakdown.LateMinutes)
	requireDecimalEqual(t, "5", breakdown.QcAverage)
	require.True(t, breakdown.QualityFactor.GreaterThanOrEqual(decimal.NewFromInt(1)))
	require.True(t, breakdown.AfterFactors.GreaterThanOrEqual(decimal.NewFromInt(1000)))
	require.Equal(t, BreakdownPending, breakdown.Status)
	require.True(t, breakdown.FinalPayout.Equal(breakdown.CappedPayout))
}

func TestComputeBreakdown_CapAndBonus(t *testing.T) {
	f := newFixture(t, stubBonusEngine{awards: []bonus.Award{
		{Code: "LAUNCH_WEEK", Amount: decimal.NewFromInt(200)},
	}})
	ctx := context.Background()

	// afterFactors 1000 against a pool of 1000 x 0.8 = 800.
	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectCompleted, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")

	breakdown, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)

	requireDecimalEqual(t, "1000", breakdown.AfterFactors)
	requireDecimalEqual(t, "800", breakdown.EditorBudgetCap)
	requireDecimalEqual(t, "800", breakdown.CappedPayout)
	requireDecimalEqual(t, "200", breakdown.BonusAmount)
	requireDecimalEqual(t, "1000", breakdown.FinalPayout)

	awards := breakdown.Awards()
	require.Len(t, awards, 1)
	require.Equal(t, "LAUNCH_WEEK", awards[0].Code)
}

func TestComputeBreakdown_UnscoredMilestonesAreNeutral(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "100000", ProjectCompleted, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "")

	breakdown, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)

	requireDecimalEqual(t, "0", breakdown.QcAverage)
	requireDecimalEqual(t, "1", breakdown.QualityFactor)
	require.True(t, breakdown.AfterFactors.Equal(breakdown.BasePayout))
}

func TestComputeBreakdown_BudgetShareOverride(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectCompleted, "ed-1", "ed-2")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")
	f.seedApprovedMilestone(t, "ms-2", "prj-1", "ed-2", "0", "4")

	require.NoError(t, f.db.Model(&ProjectEditor{}).
		Where("project_id = ? AND editor_id = ?", "prj-1", "ed-1").
		Update("budget_share", decimal.RequireFromString("0.75")).Error)

	first, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)
	second, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-2")
	require.NoError(t, err)

	// ed-1 takes 75% of the 800 pool, ed-2 falls back to the equal split.
	requireDecimalEqual(t, "600", first.EditorBudgetCap)
	requireDecimalEqual(t, "400", second.EditorBudgetCap)
}

func TestComputeBreakdown_RecomputeOverwritesPending(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "100000", ProjectCompleted, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")

	first, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)
	requireDecimalEqual(t, "1", first.ReliabilityFactor)

	require.NoError(t, f.db.Model(&Milestone{}).
		Where("milestone_id = ?", "ms-1").
		Update("late_minutes", decimal.NewFromInt(1440)).Error)

	second, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)
	require.Equal(t, first.BreakdownID, second.BreakdownID)
	requireDecimalEqual(t, "0.5", second.ReliabilityFactor)

	var count int64
	require.NoError(t, f.db.Model(&PayoutBreakdown{}).Where("project_id = ?", "prj-1").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestComputeBreakdown_Preconditions(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectActive, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")

	_, err := f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	require.NoError(t, f.db.Model(&Project{}).
		Where("project_id = ?", "prj-1").
		Update("status", ProjectCompleted).Error)

	_, err = f.computer.ComputeBreakdown(ctx, "prj-1", "ed-unassigned")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	require.NoError(t, f.db.Create(&Milestone{
		MilestoneID:      "ms-2",
		ProjectID:        "prj-1",
		AssignedEditorID: "ed-1",
		Status:           MilestoneSubmitted,
		LateMinutes:      decimal.Zero,
	}).Error)

	_, err = f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)
}

func TestUnlockProjectPayouts_CreditsOnce(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "100000", ProjectCompleted, "ed-1", "ed-2")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")
	f.seedApprovedMilestone(t, "ms-2", "prj-1", "ed-2", "0", "4")

	first, err := f.unlocker.UnlockProjectPayouts(ctx, "prj-1")
	require.NoError(t, err)
	require.Equal(t, 2, first.UnlockedCount)
	requireDecimalEqual(t, "2000", first.TotalAmount)

	second, err := f.unlocker.UnlockProjectPayouts(ctx, "prj-1")
	require.NoError(t, err)
	require.Equal(t, first.UnlockedCount, second.UnlockedCount)
	require.True(t, first.TotalAmount.Equal(second.TotalAmount))
	require.True(t, first.UnlockedAt.Equal(second.UnlockedAt))

	w, err := f.wallets.Get(ctx, "ed-1")
	require.NoError(t, err)
	require.NotNil(t, w)
	requireDecimalEqual(t, "1000", w.UnlockedBalance)
	requireDecimalEqual(t, "1000", w.LifetimeEarnings)

	entries, err := f.audits.List(ctx, "ed-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, audit.KindPayoutUnlocked, entries[0].Kind)

	breakdown, err := f.unlocker.GetBreakdown(ctx, "prj-1", "ed-1")
	require.NoError(t, err)
	require.Equal(t, BreakdownUnlocked, breakdown.Status)
	require.NotNil(t, breakdown.UnlockedAt)
}

func TestUnlockProjectPayouts_RequiresCompletion(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectActive, "ed-1")

	_, err := f.unlocker.UnlockProjectPayouts(ctx, "prj-1")
	requireStatus(t, err, errutil.StatusUnprocessableEntity)

	_, err = f.unlocker.UnlockProjectPayouts(ctx, "prj-missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func TestUnlockProjectPayouts_RollsBackOnMissingRate(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectCompleted, "ed-1", "ed-2")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")
	f.seedApprovedMilestone(t, "ms-2", "prj-1", "ed-2", "0", "4")

	// ed-2 has no rate row, so the second editor's computation fails and the
	// first editor's credit must roll back with it.
	require.NoError(t, f.db.Model(&Editor{}).
		Where("editor_id = ?", "ed-2").
		Update("tier", catalog.TierElite).Error)

	_, err := f.unlocker.UnlockProjectPayouts(ctx, "prj-1")
	requireStatus(t, err, errutil.StatusNotFound)

	w, err := f.wallets.Get(ctx, "ed-1")
	require.NoError(t, err)
	require.Nil(t, w)

	var project Project
	require.NoError(t, f.db.First(&project, "project_id = ?", "prj-1").Error)
	require.Nil(t, project.PayoutsUnlockedAt)
}

func TestComputeBreakdown_RejectedAfterUnlock(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "100000", ProjectCompleted, "ed-1")
	f.seedApprovedMilestone(t, "ms-1", "prj-1", "ed-1", "0", "4")

	_, err := f.unlocker.UnlockProjectPayouts(ctx, "prj-1")
	require.NoError(t, err)

	_, err = f.computer.ComputeBreakdown(ctx, "prj-1", "ed-1")
	requireStatus(t, err, errutil.StatusConflict)
}

func TestMarkCompleted(t *testing.T) {
	f := newFixture(t, stubBonusEngine{})
	ctx := context.Background()

	f.seedCatalog(t, "10", "100", "0.8")
	f.seedProject(t, "prj-1", "1000", ProjectActive, "ed-1")

	project, err := f.unlocker.MarkCompleted(ctx, "prj-1")
	require.NoError(t, err)
	require.Equal(t, ProjectCompleted, project.Status)

	// Completing twice is harmless.
	project, err = f.unlocker.MarkCompleted(ctx, "prj-1")
	require.NoError(t, err)
	require.Equal(t, ProjectCompleted, project.Status)

	_, err = f.unlocker.MarkCompleted(ctx, "prj-missing")
	requireStatus(t, err, errutil.StatusNotFound)
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()
	require.Error(t, err)
	baseErr, ok := err.(errutil.BaseError)
	require.Truef(t, ok, "expected BaseError, got %T: %v", err, err)
	require.Equal(t, status, baseErr.Code)
}
