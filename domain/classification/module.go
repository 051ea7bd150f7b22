package classification

import "go.uber.org/fx"

// Module provides SmartClassifier. It has no HTTP surface of its own — the
// ExtractionPipeline calls it directly before orchestrating a source.
var Module = fx.Module("classification",
	fx.Provide(NewRepository),
	fx.Provide(NewClassifier),
)
