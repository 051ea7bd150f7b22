// Package llmworker implements the LLMWorker component: it pulls requests
// from the LLMQueue, executes the model call, writes the response, retries
// or dead-letters on failure, and adapts its own concurrency to the observed
// timeout rate.
package llmworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/internal/llmqueue"
	"github.com/TKontu/knowledge-extraction/pkg/llm"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// requestTimeout bounds an individual LLM call; it is distinct from the
// LLMRequest's own timeout_at, which bounds how long a request may wait in
// the queue before dispatch.
const requestTimeout = 180 * time.Second

// Worker is the LLMWorker component.
type Worker struct {
	queue    *llmqueue.Queue
	provider llm.ChatProvider
	llmCfg   config.LLMConfig
	cfg      config.QueueConfig
	log      *slog.Logger

	mu            sync.Mutex
	sem           chan struct{}
	concurrency   int
	inFlight      int
	pendingTarget *int

	statsMu   sync.Mutex
	samples   int
	timeouts  int
	successes int

	stopCh    chan struct{}
	stoppedCh chan struct{}
	loopWg    sync.WaitGroup
	taskWg    sync.WaitGroup
}

// Module wires Worker into the fx graph and starts it for the life of the process.
var Module = fx.Module("llmworker",
	fx.Provide(NewWorker),
	fx.Invoke(registerLifecycle),
)

// NewWorker constructs a Worker. provider may be nil in deployments where the
// LLM is unconfigured; Start then returns immediately without polling.
func NewWorker(queue *llmqueue.Queue, provider llm.ChatProvider, cfg *config.Config, log *slog.Logger) *Worker {
	initial := cfg.Queue.InitialConcurrency
	if initial <= 0 {
		initial = 1
	}
	return &Worker{
		queue:       queue,
		provider:    provider,
		llmCfg:      cfg.LLM,
		cfg:         cfg.Queue,
		log:         log.With(logger.Scope("llmworker")),
		sem:         make(chan struct{}, initial),
		concurrency: initial,
	}
}

func registerLifecycle(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}

// Start begins the dispatch and adjustment loops.
func (w *Worker) Start(ctx context.Context) error {
	if w.provider == nil || !w.provider.IsConfigured() {
		w.log.Warn("no LLM provider configured, worker will not poll")
		return nil
	}

	w.stopCh = make(chan struct{})
	w.stoppedCh = make(chan struct{})

	w.loopWg.Add(2)
	go w.runDispatch(ctx)
	go w.runAdjustment(ctx)

	go func() {
		w.loopWg.Wait()
		close(w.stoppedCh)
	}()

	w.log.Info("llm worker started", slog.Int("initial_concurrency", w.concurrency))
	return nil
}

// Stop signals the loops to exit and waits for in-flight requests to drain.
func (w *Worker) Stop(ctx context.Context) error {
	if w.stopCh == nil {
		return nil
	}
	close(w.stopCh)

	select {
	case <-w.stoppedCh:
	case <-ctx.Done():
		w.log.Warn("llm worker stop timed out waiting for loops")
	}

	drained := make(chan struct{})
	go func() {
		w.taskWg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		w.log.Warn("llm worker stop timed out waiting for in-flight requests")
	}

	return nil
}

func (w *Worker) runDispatch(ctx context.Context) {
	defer w.loopWg.Done()

	pollInterval := w.cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		batch, err := w.queue.Dequeue(ctx, w.currentConcurrency())
		if err != nil {
			w.log.Warn("dequeue failed", logger.Error(err))
			select {
			case <-w.stopCh:
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		if len(batch) == 0 {
			select {
			case <-w.stopCh:
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		for _, req := range batch {
			permit := w.acquire()
			w.taskWg.Add(1)
			go func(req *llmqueue.Request) {
				defer w.taskWg.Done()
				defer w.release(permit)
				w.handle(ctx, req)
			}(req)
		}
	}
}

func (w *Worker) runAdjustment(ctx context.Context) {
	defer w.loopWg.Done()

	interval := w.cfg.AdjustmentInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.adjustConcurrency()
		}
	}
}

// handle executes one request end-to-end (spec §4.2 steps 3-4) and always
// acknowledges the original message, whether it succeeded, was requeued, or
// went to the DLQ.
func (w *Worker) handle(ctx context.Context, req *llmqueue.Request) {
	start := time.Now()

	if req.IsExpired() {
		w.publish(ctx, req, &llmqueue.Response{
			RequestID: req.ID,
			Status:    llmqueue.ResponseStatusTimeout,
		}, start)
		w.ack(ctx, req)
		w.recordSample(false, true)
		return
	}

	temperature := w.llmCfg.BaseTemperature + float64(req.RetryCount)*w.llmCfg.RetryTempStep
	systemPrompt := req.SystemPrompt
	if req.RetryCount > 0 {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\nBe concise. Return only the requested fields.")
	}

	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	result, err := w.provider.GenerateChat(callCtx, llm.CompletionRequest{
		Model:           req.Model,
		SystemPrompt:    systemPrompt,
		UserPrompt:      req.UserPrompt,
		Temperature:     temperature,
		MaxOutputTokens: w.llmCfg.MaxOutputTokens,
	})
	cancel()

	if err != nil {
		w.handleFailure(ctx, req, err)
		w.recordSample(false, false)
		return
	}

	content := repairJSON(result.Content)
	if isEntityList(req) && result.FinishReason == "length" {
		content = `{"entities":[],"confidence":0}`
	}

	resp := &llmqueue.Response{
		RequestID: req.ID,
		Status:    llmqueue.ResponseStatusSuccess,
	}
	if parsed, ok := parseJSONObject(content); ok {
		resp.Result = parsed
	} else {
		text := content
		resp.ResultText = &text
	}

	w.publish(ctx, req, resp, start)
	w.ack(ctx, req)
	w.recordSample(true, false)
}

// handleFailure requeues req with an incremented retry count, or moves it to
// the DLQ once max_retries is exhausted (spec §4.2 step 4).
func (w *Worker) handleFailure(ctx context.Context, req *llmqueue.Request, callErr error) {
	maxRetries := w.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	if req.RetryCount < maxRetries-1 {
		if _, err := w.queue.Requeue(ctx, req, requestTimeout); err != nil {
			w.log.Error("failed to requeue llm request", slog.String("request_id", req.ID), logger.Error(err))
		}
		w.ack(ctx, req)
		return
	}

	if err := w.queue.DeadLetter(ctx, req, callErr.Error()); err != nil {
		w.log.Error("failed to dead-letter llm request", slog.String("request_id", req.ID), logger.Error(err))
	}

	errMsg := callErr.Error()
	w.publish(ctx, req, &llmqueue.Response{
		RequestID:    req.ID,
		Status:       llmqueue.ResponseStatusError,
		ErrorMessage: &errMsg,
	}, time.Now())
	w.ack(ctx, req)
}

func (w *Worker) publish(ctx context.Context, req *llmqueue.Request, resp *llmqueue.Response, start time.Time) {
	resp.ProcessingTimeMs = int(time.Since(start).Milliseconds())
	resp.CompletedAt = time.Now()
	if err := w.queue.PublishResponse(ctx, resp); err != nil {
		w.log.Error("failed to publish llm response", slog.String("request_id", req.ID), logger.Error(err))
	}
}

func (w *Worker) ack(ctx context.Context, req *llmqueue.Request) {
	if err := w.queue.Ack(ctx, req.ID); err != nil {
		w.log.Error("failed to acknowledge llm request", slog.String("request_id", req.ID), logger.Error(err))
	}
}

// isEntityList reports whether req targets an is_entity_list field group,
// where a length-truncated response must fall back to an empty list rather
// than a malformed partial payload.
func isEntityList(req *llmqueue.Request) bool {
	if req.Type != llmqueue.RequestTypeExtractEntities && req.Type != llmqueue.RequestTypeExtractFieldGroup {
		return false
	}
	v, ok := req.AuxContext["is_entity_list"].(bool)
	return ok && v
}

func parseJSONObject(content string) (llmqueue.JSON, bool) {
	var parsed llmqueue.JSON
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

func (w *Worker) recordSample(success, timeout bool) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.samples++
	if timeout {
		w.timeouts++
	}
	if success {
		w.successes++
	}
}

// adjustConcurrency applies the adaptive-concurrency rule (spec §4.2): every
// adjustment_interval, once at least 10 samples have accrued, shrink on a
// high timeout rate, grow on a low one with enough successes, else hold.
func (w *Worker) adjustConcurrency() {
	w.statsMu.Lock()
	samples, timeouts, successes := w.samples, w.timeouts, w.successes
	w.samples, w.timeouts, w.successes = 0, 0, 0
	w.statsMu.Unlock()

	if samples < 10 {
		return
	}

	timeoutRate := float64(timeouts) / float64(samples)
	current := w.currentConcurrency()
	target := current

	switch {
	case timeoutRate > 0.10:
		target = maxInt(w.cfg.MinConcurrency, int(float64(current)*0.7))
	case timeoutRate < 0.02 && successes > 50:
		target = minInt(w.cfg.MaxConcurrency, int(float64(current)*1.2))
	}

	if target != current {
		w.log.Info("adjusting llm worker concurrency",
			slog.Int("from", current), slog.Int("to", target),
			slog.Float64("timeout_rate", timeoutRate), slog.Int("successes", successes))
	}

	w.setConcurrencyTarget(target)
}

func (w *Worker) currentConcurrency() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.concurrency
}

// setConcurrencyTarget applies target immediately if no request is in
// flight; otherwise it is stored and applied when the last in-flight
// request completes, so the semaphore is never recreated while permits are
// held (spec §4.2).
func (w *Worker) setConcurrencyTarget(target int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight == 0 {
		w.applyConcurrencyLocked(target)
		return
	}
	w.pendingTarget = &target
}

func (w *Worker) applyConcurrencyLocked(target int) {
	if target <= 0 {
		target = 1
	}
	w.concurrency = target
	w.sem = make(chan struct{}, target)
}

// acquire blocks until a permit is free and returns the semaphore instance it
// was drawn from, so release posts back to the same one even if the
// semaphore is swapped out between acquire and release.
func (w *Worker) acquire() chan struct{} {
	w.mu.Lock()
	sem := w.sem
	w.mu.Unlock()

	sem <- struct{}{}

	w.mu.Lock()
	w.inFlight++
	w.mu.Unlock()

	return sem
}

func (w *Worker) release(sem chan struct{}) {
	<-sem

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight--
	if w.inFlight == 0 && w.pendingTarget != nil {
		w.applyConcurrencyLocked(*w.pendingTarget)
		w.pendingTarget = nil
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// repairJSON strips markdown code fences that chat models routinely wrap
// JSON responses in, and balances any unterminated braces/brackets left by a
// truncated generation.
func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}

	var closers []string
	for _, ch := range s {
		switch ch {
		case '{':
			closers = append(closers, "}")
		case '[':
			closers = append(closers, "]")
		case '}', ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		s += closers[i]
	}

	return s
}
