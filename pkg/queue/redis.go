package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// promoteDue moves due members of the delayed set back onto the pending list
// in one step, so two processes never deliver the same retry twice.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

const promoteBatch = 100

// envelope is the wire form of a message. The payload stays raw until a job parses it.
type envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type redisKeys struct {
	pending string
	delayed string
	dead    string
}

func newRedisKeys(prefix string) redisKeys {
	return redisKeys{
		pending: prefix + ":pending",
		delayed: prefix + ":delayed",
		dead:    prefix + ":dead",
	}
}

// RedisQueue keeps pending messages in a Redis list. A failed message waits in
// a sorted set scored by its due time and lands in the dead list once its
// retries are spent.
type RedisQueue struct {
	lgr    *logger.Logger
	cfg    QueueConfig
	client *redis.Client
	keys   redisKeys
	poll   time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Enqueuer = (*RedisQueue)(nil)

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of the pending, delayed and dead keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keys = newRedisKeys(prefix)
		}
	}
}

// WithPollInterval sets how often due retries are promoted.
func WithPollInterval(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.poll = d
		}
	}
}

func NewRedisQueue(lgr *logger.Logger, cfg QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	cfg.normalize()
	if lgr == nil {
		lgr = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		lgr:    lgr,
		cfg:    cfg,
		client: client,
		keys:   newRedisKeys("golden-dragon:queue"),
		poll:   time.Second,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob binds a job to its message type. Jobs must be registered before Start.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.lgr.Warn("Job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
}

// Start checks the connection and launches the workers and the retry promoter.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	r.wg.Add(1)
	go r.promote()

	r.lgr.Info("Redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("pending_key", r.keys.pending))
	return nil
}

// Stop cancels in-flight handlers and waits for the workers. Pending and
// delayed messages stay in Redis for the next start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.lgr.Info("Redis queue stopped")
		return nil
	}
}

func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(envelope{ID: uuid.NewString(), Type: msgType, Payload: raw, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.keys.pending, b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Depth reports the sizes of the pending list, the delayed set and the dead list.
func (r *RedisQueue) Depth(ctx context.Context) (pending, delayed, dead int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.keys.pending)
	d := pipe.ZCard(ctx, r.keys.delayed)
	x := pipe.LLen(ctx, r.keys.dead)
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, fmt.Errorf("queue depth: %w", err)
	}
	return p.Val(), d.Val(), x.Val(), nil
}

func (r *RedisQueue) work() {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, time.Second, r.keys.pending).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case r.ctx.Err() != nil:
			return
		case err != nil:
			r.lgr.Error("Queue pop failed", logger.Error(err))
			r.sleep(time.Second)
			continue
		}
		if len(res) == 2 {
			r.handle([]byte(res[1]))
		}
	}
}

func (r *RedisQueue) handle(b []byte) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		r.lgr.Error("Malformed queue message dropped", logger.Error(err))
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[env.Type]
	r.mu.RUnlock()
	if !ok {
		env.LastError = "no job registered"
		r.bury(env)
		return
	}

	err := job.Handle(r.ctx, env.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	r.retry(env, job, err)
}

func (r *RedisQueue) retry(env envelope, job Job, err error) {
	env.Attempts++
	env.LastError = err.Error()
	lgr := r.lgr.With(
		logger.String("id", env.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", env.Attempts))

	if env.Attempts > r.cfg.RetryLimit {
		lgr.Error("Retries exhausted, message moved to dead list", logger.Error(err))
		r.bury(env)
		return
	}

	due := time.Now().Add(r.cfg.backoff(env.Attempts))
	b, merr := json.Marshal(env)
	if merr != nil {
		lgr.Error("Marshal retry failed", logger.Error(merr))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if zerr := r.client.ZAdd(ctx, r.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: b}).Err(); zerr != nil {
		lgr.Error("Schedule retry failed", logger.Error(zerr))
		return
	}
	lgr.Warn("Job failed, retry scheduled", logger.Time("due", due), logger.Error(err))
}

func (r *RedisQueue) bury(env envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.LPush(ctx, r.keys.dead, b).Err(); err != nil {
		r.lgr.Error("Dead list push failed", logger.String("id", env.ID), logger.Error(err))
	}
}

func (r *RedisQueue) promote() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		n, err := promoteDue.Run(r.ctx, r.client, []string{r.keys.delayed, r.keys.pending}, now, promoteBatch).Int()
		if err != nil {
			if r.ctx.Err() == nil {
				r.lgr.Error("Retry promotion failed", logger.Error(err))
			}
			continue
		}
		if n > 0 {
			r.lgr.Debug("Retries promoted", logger.Int("count", n))
		}
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
	case <-t.C:
	}
}
