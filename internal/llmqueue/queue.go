// Package llmqueue implements the LLMQueue component: a process-wide,
// durable, at-least-once queue that accepts LLM requests from many
// producers, applies backpressure, and delivers responses back to the
// submitter by correlation id.
//
// Requests are stored in Postgres and dequeued with the same
// FOR UPDATE SKIP LOCKED pattern as internal/jobs.Queue, generalized to one
// consumer group per table. Responses live in a TTL'd key-value table;
// completion is signalled with pgx's LISTEN/NOTIFY, and waiters additionally
// poll at a bounded interval so a missed notification never causes a
// permanent hang.
package llmqueue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/TKontu/knowledge-extraction/internal/config"
	"github.com/TKontu/knowledge-extraction/pkg/apperror"
	"github.com/TKontu/knowledge-extraction/pkg/logger"
)

// notifyChannel is the single Postgres NOTIFY channel used for every
// response; the payload carries the request id so one LISTEN connection can
// fan out to every in-process waiter.
const notifyChannel = "ke_llm_responses"

// BackpressureStatus reports how close the queue is to its configured
// backpressure_threshold (spec §4.1): slow at ≥50%, should_wait at ≥80%,
// full at ≥100%.
type BackpressureStatus struct {
	Status      string `json:"status"` // ok | slow | full
	ShouldWait  bool   `json:"should_wait"`
	Depth       int    `json:"depth"`
	Threshold   int    `json:"threshold"`
	MaxCapacity int    `json:"max_capacity"`
}

// Queue is the LLMQueue component.
type Queue struct {
	db   bun.IDB
	pool *pgxpool.Pool
	cfg  config.QueueConfig
	log  *slog.Logger

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

// Module wires Queue into the fx graph and starts its notification listener.
var Module = fx.Module("llmqueue",
	fx.Provide(NewQueue),
)

// NewQueue constructs a Queue and starts the LISTEN loop for its lifetime.
func NewQueue(lc fx.Lifecycle, db bun.IDB, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *Queue {
	q := &Queue{
		db:      db,
		pool:    pool,
		cfg:     cfg.Queue,
		log:     log.With(logger.Scope("llmqueue")),
		waiters: make(map[string][]chan struct{}),
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go q.listen(listenCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})

	return q
}

// listen holds one dedicated connection LISTENing on notifyChannel for the
// life of the process, reconnecting on failure.
func (q *Queue) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := q.listenOnce(ctx); err != nil {
			q.log.Warn("listen connection dropped, reconnecting", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (q *Queue) listenOnce(ctx context.Context) error {
	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		q.wake(notification.Payload)
	}
}

// wake signals every local waiter registered for requestID.
func (q *Queue) wake(requestID string) {
	q.mu.Lock()
	chans := q.waiters[requestID]
	delete(q.waiters, requestID)
	q.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
}

func (q *Queue) register(requestID string) chan struct{} {
	ch := make(chan struct{})
	q.mu.Lock()
	q.waiters[requestID] = append(q.waiters[requestID], ch)
	q.mu.Unlock()
	return ch
}

func (q *Queue) unregister(requestID string, ch chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chans := q.waiters[requestID]
	for i, c := range chans {
		if c == ch {
			q.waiters[requestID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(q.waiters[requestID]) == 0 {
		delete(q.waiters, requestID)
	}
}

// Submit enqueues req, assigning it an id, and fails with ErrQueueFull once
// the queue is at max_queue_depth.
func (q *Queue) Submit(ctx context.Context, req *Request) (string, error) {
	depth, err := q.GetQueueDepth(ctx)
	if err != nil {
		return "", err
	}
	if depth >= q.cfg.MaxQueueDepth {
		return "", apperror.NewQueueFull(depth, q.cfg.MaxQueueDepth)
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = RequestStatusPending
	}

	if _, err := q.db.NewInsert().Model(req).Exec(ctx); err != nil {
		return "", fmt.Errorf("submit llm request: %w", err)
	}

	return req.ID, nil
}

// WaitForResult blocks until a response for reqID arrives or timeout elapses.
// The response row is deleted once consumed, giving at-most-once delivery to
// whichever caller is waiting.
func (q *Queue) WaitForResult(ctx context.Context, reqID string, timeout time.Duration) (*Response, error) {
	deadline := time.Now().Add(timeout)

	woken := q.register(reqID)
	defer q.unregister(reqID, woken)

	// A response may already have been written between submit and the first
	// WaitForResult call; check immediately before blocking.
	if resp, ok, err := q.consumeResponse(ctx, reqID); err != nil {
		return nil, err
	} else if ok {
		return resp, nil
	}

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, apperror.NewRequestTimeout(reqID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(remaining):
			return nil, apperror.NewRequestTimeout(reqID)
		case <-woken:
			// Re-register in case of a spurious/early wake before the row commits.
			woken = q.register(reqID)
		case <-ticker.C:
		}

		if resp, ok, err := q.consumeResponse(ctx, reqID); err != nil {
			return nil, err
		} else if ok {
			return resp, nil
		}
	}
}

func (q *Queue) consumeResponse(ctx context.Context, reqID string) (*Response, bool, error) {
	resp := new(Response)
	err := q.db.NewSelect().Model(resp).Where("request_id = ?", reqID).Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch llm response: %w", err)
	}

	if _, delErr := q.db.NewDelete().Model((*Response)(nil)).Where("request_id = ?", reqID).Exec(ctx); delErr != nil {
		q.log.Warn("failed to delete consumed response", slog.String("request_id", reqID), logger.Error(delErr))
	}

	return resp, true, nil
}

// PublishResponse writes resp and notifies any waiter for its request id.
// Used by LLMWorker after dispatching a request.
func (q *Queue) PublishResponse(ctx context.Context, resp *Response) error {
	if resp.ExpiresAt.IsZero() {
		resp.ExpiresAt = time.Now().Add(q.cfg.ResponseTTL)
	}

	if _, err := q.db.NewInsert().Model(resp).
		On("CONFLICT (request_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("result = EXCLUDED.result").
		Set("result_text = EXCLUDED.result_text").
		Set("error_message = EXCLUDED.error_message").
		Set("processing_time_ms = EXCLUDED.processing_time_ms").
		Set("completed_at = EXCLUDED.completed_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("publish llm response: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, resp.RequestID); err != nil {
		q.log.Warn("pg_notify failed, waiters will fall back to polling", logger.Error(err))
	}

	return nil
}

// Dequeue atomically claims up to batchSize pending requests for a worker,
// following internal/jobs.Queue's FOR UPDATE SKIP LOCKED pattern.
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]*Request, error) {
	var ids []string
	_, err := q.db.NewRaw(`
		WITH cte AS (
			SELECT id FROM ke.llm_requests
			WHERE status = 'pending'
			ORDER BY priority DESC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		UPDATE ke.llm_requests r
		SET status = 'processing', updated_at = now()
		FROM cte WHERE r.id = cte.id
		RETURNING r.id`, batchSize).Exec(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("dequeue llm requests: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var reqs []*Request
	if err := q.db.NewSelect().Model(&reqs).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load dequeued llm requests: %w", err)
	}
	return reqs, nil
}

// Ack marks a dequeued request as acknowledged, whether it ultimately
// succeeded, was retried, or moved to the DLQ.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.db.NewUpdate().Model((*Request)(nil)).
		Set("status = ?", RequestStatusAcked).
		Set("updated_at = now()").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// Requeue inserts a copy of req with an incremented retry count, as LLMWorker
// does on a recoverable failure (spec §4.2 step 4).
func (q *Queue) Requeue(ctx context.Context, req *Request, timeout time.Duration) (string, error) {
	clone := *req
	clone.ID = uuid.New().String()
	clone.Status = RequestStatusPending
	clone.RetryCount = req.RetryCount + 1
	clone.CreatedAt = time.Time{}
	clone.TimeoutAt = time.Now().Add(timeout)
	clone.UpdatedAt = time.Time{}
	return q.Submit(ctx, &clone)
}

// DeadLetter records a terminally-failed request in the DLQ.
func (q *Queue) DeadLetter(ctx context.Context, req *Request, errMsg string) error {
	item := &DLQItem{
		OwningType:     "llm",
		RequestPayload: JSON{"id": req.ID, "type": req.Type, "model": req.Model, "user_prompt": req.UserPrompt},
		Error:          errMsg,
		RetryCount:     req.RetryCount,
	}
	_, err := q.db.NewInsert().Model(item).Exec(ctx)
	return err
}

// GetQueueDepth returns the number of requests not yet acknowledged.
func (q *Queue) GetQueueDepth(ctx context.Context) (int, error) {
	count, err := q.db.NewSelect().Model((*Request)(nil)).
		Where("status IN ('pending', 'processing')").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}

// GetBackpressureStatus reports queue depth against backpressure_threshold.
func (q *Queue) GetBackpressureStatus(ctx context.Context) (*BackpressureStatus, error) {
	depth, err := q.GetQueueDepth(ctx)
	if err != nil {
		return nil, err
	}
	return q.backpressureFor(depth), nil
}

// backpressureFor classifies depth against backpressure_threshold.
func (q *Queue) backpressureFor(depth int) *BackpressureStatus {
	threshold := q.cfg.BackpressureThreshold
	ratio := 0.0
	if threshold > 0 {
		ratio = float64(depth) / float64(threshold)
	}

	status := "ok"
	switch {
	case ratio >= 1.0:
		status = "full"
	case ratio >= 0.5:
		status = "slow"
	}

	return &BackpressureStatus{
		Status:      status,
		ShouldWait:  ratio >= 0.8,
		Depth:       depth,
		Threshold:   threshold,
		MaxCapacity: q.cfg.MaxQueueDepth,
	}
}
