package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// LocalQueue runs jobs on in-process workers with the same retry contract as
// RedisQueue. Messages are lost on shutdown.
type LocalQueue struct {
	logger *logger.Logger
	config QueueConfig
	jobs   map[string]Job
	msgs   chan Message
	wg     sync.WaitGroup
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

var _ Enqueuer = (*LocalQueue)(nil)

// NewLocalQueue creates the queue and starts its workers.
func NewLocalQueue(lgr *logger.Logger, config QueueConfig, jobs ...Job) *LocalQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	config.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	q := &LocalQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job, len(jobs)),
		msgs:   make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, job := range jobs {
		q.jobs[job.Type()] = job
	}
	for i := 0; i < config.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *LocalQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errors.New("queue not running")
	}
	if _, ok := q.jobs[msgType]; !ok {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: payload, Timestamp: time.Now()}
	select {
	case q.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.msgs:
			q.process(msg)
		}
	}
}

func (q *LocalQueue) process(msg Message) {
	job := q.jobs[msg.Type]
	for {
		err := job.Handle(q.ctx, msg.Payload)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("message processing error",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts+1),
			logger.Error(err))
		if msg.Attempts >= q.config.RetryLimit {
			q.logger.Error("max retries reached",
				logger.String("id", msg.ID),
				logger.String("job", job.Name()))
			return
		}
		msg.Attempts++

		t := time.NewTimer(q.config.backoff(msg.Attempts))
		select {
		case <-q.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Stop drains nothing: queued messages are dropped and in-flight handlers see
// a cancelled context.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		return nil
	}
}
