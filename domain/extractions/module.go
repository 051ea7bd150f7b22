package extractions

import (
	"go.uber.org/fx"
)

// Module provides the extractions domain.
var Module = fx.Module("extractions",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
