package badge

import "go.uber.org/fx"

var Module = fx.Module("badge.service",
	fx.Provide(NewService),
)
