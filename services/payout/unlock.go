package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/errutil"
	"studiopay/pkg/repository"
	"studiopay/services/audit"
	"studiopay/services/wallet"
)

// UnlockSummary reports one unlock event for a project. Repeated calls for
// an already-unlocked project return the originally recorded totals.
type UnlockSummary struct {
	ProjectID     string          `json:"projectId"`
	UnlockedCount int             `json:"unlockedCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	UnlockedAt    time.Time       `json:"unlockedAt"`
}

// Service coordinates the one-time settlement of a completed project:
// breakdown computation, wallet credits, audit entries, and the project's
// payouts_unlocked_at stamp, all inside a single transaction.
type Service struct {
	db       *gorm.DB
	computer *Computer
	wallets  *wallet.Service
	audits   *audit.Service

	projects    repository.Repository[Project]
	assignments repository.Repository[ProjectEditor]
	breakdowns  repository.Repository[PayoutBreakdown]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Computer *Computer
	Wallets  *wallet.Service
	Audits   *audit.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		computer:    p.Computer,
		wallets:     p.Wallets,
		audits:      p.Audits,
		projects:    repository.ProvideStore[Project](p.DB),
		assignments: repository.ProvideStore[ProjectEditor](p.DB),
		breakdowns:  repository.ProvideStore[PayoutBreakdown](p.DB),
	}
}

// UnlockProjectPayouts credits every assigned editor's wallet with their
// final payout, exactly once per project. A retry against an already
// unlocked project is a no-op returning the recorded totals. Either all
// editors on the project are credited or none are.
func (s *Service) UnlockProjectPayouts(ctx context.Context, projectID string) (*UnlockSummary, error) {
	var summary *UnlockSummary
	err := s.db.Transaction(func(tx *gorm.DB) error {
		project, err := s.projects.WithTrx(tx).FindOne(ctx, &Project{ProjectID: projectID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if project == nil {
			return errutil.NotFound(fmt.Sprintf("project %s not found", projectID), nil)
		}

		// Re-check under the row lock: a concurrent unlock that committed
		// between trigger and lock acquisition already settled everything.
		if project.PayoutsUnlockedAt != nil {
			summary, err = s.recordedSummary(ctx, tx, project)
			return err
		}

		if project.Status != ProjectCompleted {
			return errutil.UnprocessableEntity(fmt.Sprintf("project %s is not completed", projectID), nil)
		}

		assignments, err := s.assignments.WithTrx(tx).Find(ctx, &ProjectEditor{ProjectID: projectID})
		if err != nil {
			return err
		}
		if len(assignments) == 0 {
			return errutil.UnprocessableEntity(fmt.Sprintf("project %s has no editors assigned", projectID), nil)
		}

		now := time.Now().UTC()
		total := decimal.Zero
		for _, assignment := range assignments {
			breakdown, err := s.computer.computeBreakdown(ctx, tx, project, assignment.EditorID)
			if err != nil {
				return err
			}

			if err := s.breakdowns.WithTrx(tx).Update(ctx, breakdown.BreakdownID, map[string]any{
				"status":      BreakdownUnlocked,
				"unlocked_at": now,
				"updated_at":  now,
			}); err != nil {
				return err
			}

			if breakdown.FinalPayout.IsPositive() {
				if _, err := s.wallets.Credit(ctx, tx, assignment.EditorID, breakdown.FinalPayout); err != nil {
					return err
				}
			}

			if _, err := s.audits.Append(ctx, tx, audit.AppendParams{
				EditorID:    assignment.EditorID,
				ProjectID:   projectID,
				Kind:        audit.KindPayoutUnlocked,
				Amount:      breakdown.FinalPayout,
				ReferenceID: breakdown.BreakdownID,
				Description: fmt.Sprintf("payout unlocked for project %s", projectID),
			}); err != nil {
				return err
			}

			total = total.Add(breakdown.FinalPayout)
		}

		if err := s.projects.WithTrx(tx).Update(ctx, projectID, map[string]any{
			"payouts_unlocked_at": now,
			"updated_at":          now,
		}); err != nil {
			return err
		}

		summary = &UnlockSummary{
			ProjectID:     projectID,
			UnlockedCount: len(assignments),
			TotalAmount:   total,
			UnlockedAt:    now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("project payouts unlocked",
		zap.String("project_id", summary.ProjectID),
		zap.Int("unlocked_count", summary.UnlockedCount),
		zap.String("total_amount", summary.TotalAmount.String()),
	)

	return summary, nil
}

// recordedSummary rebuilds the totals of a settled unlock from its UNLOCKED
// breakdowns, so retries return exactly what the winning call returned.
func (s *Service) recordedSummary(ctx context.Context, tx *gorm.DB, project *Project) (*UnlockSummary, error) {
	unlocked, err := s.breakdowns.WithTrx(tx).Find(ctx, &PayoutBreakdown{
		ProjectID: project.ProjectID,
		Status:    BreakdownUnlocked,
	})
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, b := range unlocked {
		total = total.Add(b.FinalPayout)
	}

	return &UnlockSummary{
		ProjectID:     project.ProjectID,
		UnlockedCount: len(unlocked),
		TotalAmount:   total,
		UnlockedAt:    *project.PayoutsUnlockedAt,
	}, nil
}

// MarkCompleted transitions the project to COMPLETED. It is the trigger the
// background unlock job fires on.
func (s *Service) MarkCompleted(ctx context.Context, projectID string) (*Project, error) {
	var project *Project
	err := s.db.Transaction(func(tx *gorm.DB) error {
		projects := s.projects.WithTrx(tx)

		found, err := projects.FindOne(ctx, &Project{ProjectID: projectID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if found == nil {
			return errutil.NotFound(fmt.Sprintf("project %s not found", projectID), nil)
		}
		if found.Status == ProjectCompleted {
			project = found
			return nil
		}

		now := time.Now().UTC()
		if err := projects.Update(ctx, projectID, map[string]any{
			"status":     ProjectCompleted,
			"updated_at": now,
		}); err != nil {
			return err
		}

		found.Status = ProjectCompleted
		found.UpdatedAt = now
		project = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetBreakdown returns the persisted breakdown for the pair.
func (s *Service) GetBreakdown(ctx context.Context, projectID, editorID string) (*PayoutBreakdown, error) {
	breakdown, err := s.breakdowns.FindOne(ctx, &PayoutBreakdown{ProjectID: projectID, EditorID: editorID})
	if err != nil {
		return nil, err
	}
	if breakdown == nil {
		return nil, errutil.NotFound(fmt.Sprintf("no breakdown for project %s editor %s", projectID, editorID), nil)
	}
	return breakdown, nil
}
