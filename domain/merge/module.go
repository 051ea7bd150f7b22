package merge

import "go.uber.org/fx"

// Module provides SmartMerge. It has no HTTP surface — reports generation
// is out of scope here (spec.md §1); this is the Go service a reports
// feature would call into when reducing grouped rows to one.
var Module = fx.Module("merge",
	fx.Provide(NewMerger),
)
