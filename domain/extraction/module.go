package extraction

import "go.uber.org/fx"

// Module provides the SchemaOrchestrator and ExtractionPipeline components
// (spec.md §4.4/§4.5). It depends on llmqueue.Module, sources.Module,
// extractions.Module, entities.Module, jobs.Module, vectorstore.Module,
// vectorstore.DeduplicatorModule, and classification.Module all being
// supplied by the caller, since those are shared with other domain packages
// and fx rejects a type provided twice.
var Module = fx.Module("extraction",
	fx.Provide(NewOrchestrator),
	fx.Provide(NewPipeline),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
