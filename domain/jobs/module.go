package jobs

import (
	"go.uber.org/fx"
)

// Module provides the jobs domain (checkpointing, spec.md §4.5/§6).
var Module = fx.Module("jobs",
	fx.Provide(NewRepository),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
