package intake

import "go.uber.org/fx"

var Module = fx.Module("intake",
	fx.Provide(NewHandler),
	fx.Invoke(RegisterHandlers),
)
