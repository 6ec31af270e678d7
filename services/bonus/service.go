package bonus

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/repository"
)

// Service is the database-backed Engine implementation.
type Service struct {
	rules     repository.Repository[BonusRule]
	evaluator *Evaluator
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Evaluator *Evaluator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		rules:     repository.ProvideStore[BonusRule](p.DB),
		evaluator: p.Evaluator,
	}
}

// Evaluate runs every active rule against the facts, highest priority first.
// A malformed rule is logged and skipped; a broken promotion must not block
// settlement of the payout it decorates.
func (s *Service) Evaluate(ctx context.Context, facts Facts) ([]Award, error) {
	active, err := s.rules.Find(ctx, &BonusRule{Active: true}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "priority",
		OrderBy: "desc",
		Allow:   map[string]bool{"priority": true},
	}))
	if err != nil {
		return nil, err
	}

	awards := make([]Award, 0, len(active))
	for _, rule := range active {
		matched, err := s.evaluator.Evaluate(rule.Expression, facts)
		if err != nil {
			zap.L().Warn("skipping bonus rule",
				zap.String("rule_id", rule.RuleID),
				zap.String("code", rule.Code),
				zap.Error(err),
			)
			continue
		}
		if matched {
			awards = append(awards, Award{Code: rule.Code, Amount: rule.Amount})
		}
	}

	return awards, nil
}

var _ Engine = (*Service)(nil)
