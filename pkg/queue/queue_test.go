package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placeOrder struct {
	OrderID string `json:"order_id"`
	Lots    int64  `json:"lots"`
}

type flakyJob struct {
	failures int32
	calls    atomic.Int32
	done     chan *placeOrder
}

func (j *flakyJob) Name() string { return "place-order" }
func (j *flakyJob) Type() string { return "order.place" }
func (j *flakyJob) Handle(_ context.Context, payload interface{}) error {
	n := j.calls.Add(1)
	if n <= j.failures {
		return errors.New("gateway busy")
	}
	p, err := ParsePayload[placeOrder](payload)
	if err != nil {
		return err
	}
	j.done <- p
	return nil
}

func TestLocalQueueRetriesUntilSuccess(t *testing.T) {
	job := &flakyJob{failures: 2, done: make(chan *placeOrder, 1)}
	q := NewLocalQueue(nil, QueueConfig{RetryLimit: 3, RetryDelay: time.Millisecond}, job)
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "order.place", placeOrder{OrderID: "o-1", Lots: 3}))

	select {
	case got := <-job.done:
		assert.Equal(t, "o-1", got.OrderID)
		assert.Equal(t, int32(3), job.calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestLocalQueueGivesUpAfterRetryLimit(t *testing.T) {
	job := &flakyJob{failures: 100, done: make(chan *placeOrder, 1)}
	q := NewLocalQueue(nil, QueueConfig{RetryLimit: 1, RetryDelay: time.Millisecond}, job)

	require.NoError(t, q.Enqueue(context.Background(), "order.place", placeOrder{OrderID: "o-2"}))
	assert.Eventually(t, func() bool { return job.calls.Load() == 2 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), job.calls.Load())
	require.NoError(t, q.Stop(context.Background()))
}

func TestLocalQueueRejects(t *testing.T) {
	q := NewLocalQueue(nil, QueueConfig{}, &flakyJob{done: make(chan *placeOrder, 1)})
	assert.Error(t, q.Enqueue(context.Background(), "unknown", nil))

	require.NoError(t, q.Stop(context.Background()))
	assert.Error(t, q.Enqueue(context.Background(), "order.place", nil))
}

func TestParsePayload(t *testing.T) {
	raw := json.RawMessage(`{"order_id":"o-3","lots":7}`)
	p, err := ParsePayload[placeOrder](raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), p.Lots)

	p, err = ParsePayload[placeOrder](map[string]interface{}{"order_id": "o-4", "lots": 2})
	require.NoError(t, err)
	assert.Equal(t, "o-4", p.OrderID)

	p, err = ParsePayload[placeOrder](&placeOrder{OrderID: "o-5"})
	require.NoError(t, err)
	assert.Equal(t, "o-5", p.OrderID)

	_, err = ParsePayload[placeOrder](42)
	assert.Error(t, err)
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	cfg := QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}
	cfg.normalize()

	assert.Equal(t, time.Second, cfg.backoff(1))
	assert.Equal(t, 2*time.Second, cfg.backoff(2))
	assert.Equal(t, 4*time.Second, cfg.backoff(3))
	assert.Equal(t, 5*time.Second, cfg.backoff(4))
	assert.Equal(t, 5*time.Second, cfg.backoff(10))

	def := QueueConfig{RetryDelay: time.Second}
	def.normalize()
	assert.Equal(t, 16*time.Second, def.MaxRetryDelay)
}

func TestRedisKeysFollowPrefix(t *testing.T) {
	q := NewRedisQueue(nil, QueueConfig{}, nil, WithKeyPrefix("gd:orders"))
	assert.Equal(t, "gd:orders:pending", q.keys.pending)
	assert.Equal(t, "gd:orders:delayed", q.keys.delayed)
	assert.Equal(t, "gd:orders:dead", q.keys.dead)
	assert.Error(t, q.Enqueue(context.Background(), "order.place", nil), "not started")
}
