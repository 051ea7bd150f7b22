package entities

import (
	"go.uber.org/fx"
)

// Module provides the entities domain (EntityExtractor, spec.md §4.6).
var Module = fx.Module("entities",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
