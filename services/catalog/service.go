package catalog

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"studiopay/pkg/db/option"
	"studiopay/pkg/errutil"
	"studiopay/pkg/repository"
)

// Service resolves billing parameters as of the time of the call. It never
// caches: a resolution reflects whatever the admin configuration holds right
// now, while rows already referenced by unlocked breakdowns are immutable.
type Service struct {
	rates repository.Repository[TierRate]
	skus  repository.Repository[SkuConfig]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		rates: repository.ProvideStore[TierRate](p.DB),
		skus:  repository.ProvideStore[SkuConfig](p.DB),
	}
}

var sortByEffectiveFrom = option.QuerySortBy{
	SortBy:  "effective_from",
	OrderBy: "desc",
	Allow: map[string]bool{
		"effective_from": true,
	},
}

// ResolveTierRate returns the newest active rate row for the given tier.
func (s *Service) ResolveTierRate(ctx context.Context, tier Tier) (*TierRate, error) {
	if !tier.Valid() {
		return nil, errutil.ValidationFailed(fmt.Sprintf("unknown tier %q", tier), nil)
	}

	rate, err := s.rates.FindOne(ctx, &TierRate{Tier: tier, Active: true}, option.WithSortBy(sortByEffectiveFrom))
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, errutil.NotFound(fmt.Sprintf("no active rate configured for tier %s", tier), nil)
	}

	return rate, nil
}

// ResolveSkuConfig returns the newest active configuration for the given SKU.
func (s *Service) ResolveSkuConfig(ctx context.Context, skuCode string) (*SkuConfig, error) {
	if skuCode == "" {
		return nil, errutil.ValidationFailed("sku code is required", nil)
	}

	cfg, err := s.skus.FindOne(ctx, &SkuConfig{SkuCode: skuCode, Active: true}, option.WithSortBy(sortByEffectiveFrom))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errutil.NotFound(fmt.Sprintf("no active config for sku %s", skuCode), nil)
	}

	return cfg, nil
}
