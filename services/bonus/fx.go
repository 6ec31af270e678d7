package bonus

import "go.uber.org/fx"

var Module = fx.Module("bonus.service",
	fx.Provide(
		NewEvaluator,
		NewService,
		func(s *Service) Engine { return s },
	),
)
