package scraping

import (
	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/pkg/browserpool"
)

// Module provides the scraping HTTP surface over BrowserPool.
var Module = fx.Module("scraping",
	browserpool.Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
