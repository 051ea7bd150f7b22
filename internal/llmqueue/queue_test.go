package llmqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TKontu/knowledge-extraction/internal/config"
)

func newTestQueue(threshold, maxDepth int) *Queue {
	return &Queue{
		cfg: config.QueueConfig{
			MaxQueueDepth:         maxDepth,
			BackpressureThreshold: threshold,
			ResponseTTL:           10 * time.Minute,
			PollInterval:          50 * time.Millisecond,
		},
		waiters: make(map[string][]chan struct{}),
	}
}

func backpressureFor(depth, threshold, maxDepth int) *BackpressureStatus {
	return newTestQueue(threshold, maxDepth).backpressureFor(depth)
}

func TestBackpressureThresholds(t *testing.T) {
	// threshold=100: ok below 50, slow at [50,100), should_wait from 80, full at >=100
	assert.Equal(t, "ok", backpressureFor(49, 100, 1000).Status)
	assert.Equal(t, "slow", backpressureFor(50, 100, 1000).Status)
	assert.False(t, backpressureFor(79, 100, 1000).ShouldWait)
	assert.True(t, backpressureFor(80, 100, 1000).ShouldWait)
	assert.Equal(t, "slow", backpressureFor(99, 100, 1000).Status)
	assert.Equal(t, "full", backpressureFor(100, 100, 1000).Status)
	assert.True(t, backpressureFor(100, 100, 1000).ShouldWait)
}

func TestRequestIsExpired(t *testing.T) {
	future := Request{TimeoutAt: time.Now().Add(time.Hour)}
	past := Request{TimeoutAt: time.Now().Add(-time.Hour)}

	assert.False(t, future.IsExpired())
	assert.True(t, past.IsExpired())
}

func TestWaiterRegistrationRoundTrip(t *testing.T) {
	q := newTestQueue(100, 1000)

	ch := q.register("req-1")
	assert.Len(t, q.waiters["req-1"], 1)

	q.unregister("req-1", ch)
	assert.Len(t, q.waiters["req-1"], 0)
}

func TestWakeClosesRegisteredWaiters(t *testing.T) {
	q := newTestQueue(100, 1000)

	ch1 := q.register("req-2")
	ch2 := q.register("req-2")

	q.wake("req-2")

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("waiter 1 was not woken")
	}
	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("waiter 2 was not woken")
	}

	assert.Empty(t, q.waiters["req-2"])
}
