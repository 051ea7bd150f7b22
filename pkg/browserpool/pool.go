// Package browserpool implements the BrowserPool/Scraper component
// (spec.md §4.3/§6): a small number of long-lived, anti-bot-evading browser
// instances that multiplex a much larger number of concurrent page loads,
// with health checking and request-count-based recycling.
//
// Grounded on the teacher's tools/niezatapialni-scraper, which drives a
// single shared rod.Browser for rendering JS-heavy pages; this package
// generalises that to a pool of N browsers behind a round-robin cursor.
package browserpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// slot owns one long-lived browser instance and its request counter.
type slot struct {
	mu          sync.Mutex
	browser     *rod.Browser
	controlURL  string
	requestCnt  int64
	restarting  int32 // atomic: 1 while a background restart is in flight
}

// Pool is the BrowserPool component.
type Pool struct {
	slots   []*slot
	cursor  uint64
	sem     chan struct{}
	cfg     config.CamoufoxConfig
	log     *slog.Logger
	closing int32
}

// Module wires Pool into the fx graph.
var Module = fx.Module("browserpool",
	fx.Provide(NewPool),
)

// NewPool launches cfg.Camoufox.BrowserCount long-lived browsers.
func NewPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *Pool {
	log = log.With(logger.Scope("browserpool"))

	p := &Pool{
		slots: make([]*slot, cfg.Camoufox.BrowserCount),
		sem:   make(chan struct{}, cfg.Camoufox.MaxConcurrentPages),
		cfg:   cfg.Camoufox,
		log:   log,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for i := range p.slots {
				s, err := launchSlot(p.cfg)
				if err != nil {
					log.Error("failed to launch browser", logger.Error(err), slog.Int("index", i))
					p.slots[i] = &slot{}
					continue
				}
				p.slots[i] = s
			}
			log.Info("browser pool started", slog.Int("count", len(p.slots)))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			atomic.StoreInt32(&p.closing, 1)
			done := make(chan struct{})
			go func() {
				for i := 0; i < cap(p.sem); i++ {
					p.sem <- struct{}{}
				}
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(p.cfg.ShutdownDrain):
				log.Warn("shutdown drain timed out, closing browsers anyway")
			}
			for _, s := range p.slots {
				if s != nil && s.browser != nil {
					_ = s.browser.Close()
				}
			}
			return nil
		},
	})

	return p
}

func launchSlot(cfg config.CamoufoxConfig) (*slot, error) {
	controlURL, err := launcher.New().
		NoSandbox(true).
		Headless(cfg.Headless).
		Set("disable-gpu", "").
		Set("disable-dev-shm-usage", "").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	return &slot{browser: browser, controlURL: controlURL}, nil
}

// next returns the index of the next live browser starting from the current
// round-robin cursor, skipping disconnected browsers and scheduling a
// background restart for any it skips (spec.md §4.3).
func (p *Pool) next() (*slot, int, bool) {
	n := len(p.slots)
	start := int(atomic.AddUint64(&p.cursor, 1)-1) % n

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		s := p.slots[idx]
		if s == nil {
			continue
		}
		if s.isConnected() {
			return s, idx, true
		}
		p.scheduleRestart(idx)
	}
	return nil, -1, false
}

func (s *slot) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil && s.browser.Connect() == nil
}

// scheduleRestart launches at most one background restart per index at a
// time (spec.md §4.3).
func (p *Pool) scheduleRestart(idx int) {
	s := p.slots[idx]
	if !atomic.CompareAndSwapInt32(&s.restarting, 0, 1) {
		return
	}

	go func() {
		defer atomic.StoreInt32(&s.restarting, 0)

		fresh, err := launchSlot(p.cfg)
		if err != nil {
			p.log.Warn("browser restart failed, counter left unchanged", logger.Error(err), slog.Int("index", idx))
			return
		}

		s.mu.Lock()
		old := s.browser
		s.browser = fresh.browser
		s.controlURL = fresh.controlURL
		s.requestCnt = 0
		s.mu.Unlock()

		if old != nil {
			_ = old.Close()
		}
		p.log.Info("browser restarted", slog.Int("index", idx))
	}()
}

// recycleIfDue schedules a restart once the slot's request counter reaches
// recycle_after_requests (0 disables recycling).
func (p *Pool) recycleIfDue(idx int) {
	if p.cfg.RecycleAfterRequests <= 0 {
		return
	}
	s := p.slots[idx]
	s.mu.Lock()
	s.requestCnt++
	due := s.requestCnt >= int64(p.cfg.RecycleAfterRequests)
	s.mu.Unlock()

	if due {
		p.scheduleRestart(idx)
	}
}

// ActivePages reports how many of the pool's concurrency permits are
// currently held, for the /health/scraper endpoint.
func (p *Pool) ActivePages() int {
	return len(p.sem)
}

// MaxConcurrentPages returns the pool's configured concurrency bound.
func (p *Pool) MaxConcurrentPages() int {
	return cap(p.sem)
}
