package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// MessageHandler handles messages from a specific topic. An error is retried
// and then sent to the dead letter topic when one is configured.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads every registered topic with one group reader and hands
// messages to workers. A partition always maps to the same worker, so messages
// of one partition are handled in offset order.
type Consumer struct {
	cfg     ConsumerConfig
	lgr     *logger.Logger
	metrics *clientMetrics

	handlers map[string]MessageHandler
	hook     ConsumerHook
	readers  []*kafka.Reader
	dlq      *kafka.Writer
	shards   []chan fetched

	cancel   context.CancelFunc
	stopping chan struct{}
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	started  bool
	stopOnce sync.Once
}

type fetched struct {
	reader *kafka.Reader
	msg    kafka.Message
}

func NewConsumer(cfg ConsumerConfig, opts ...Option) (*Consumer, error) {
	if err := prepare(&cfg); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	c := &Consumer{
		cfg:      cfg,
		lgr:      o.lgr,
		metrics:  o.metrics,
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		stopping: make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.Hash{}}
	}
	return c, nil
}

// RegisterHandler binds a handler to its topic. Handlers must be registered before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, dup := c.handlers[topic]; dup {
		c.lgr.Warn("Kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook wraps every handled message with h.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens the readers and launches the workers.
func (c *Consumer) Start() error {
	if c.started {
		return errors.New("consumer already started")
	}
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	c.started = true

	c.shards = make([]chan fetched, c.cfg.Workers)
	for i := range c.shards {
		c.shards[i] = make(chan fetched, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.work(c.shards[i])
	}

	start := kafka.FirstOffset
	if c.cfg.StartLatest {
		start = kafka.LastOffset
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
		c.readers = append(c.readers, r)
		c.readWG.Add(1)
		go c.fetch(ctx, topic, r)
	}

	c.lgr.Info("Kafka consumer started",
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.Workers),
		logger.String("group_id", c.cfg.GroupID))
	return nil
}

// Stop stops fetching, lets the workers finish what was fetched and closes
// the readers. Uncommitted messages are redelivered on the next start.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if !c.started {
			return
		}
		close(c.stopping)
		c.cancel()
		c.readWG.Wait()
		for _, ch := range c.shards {
			close(ch)
		}

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for _, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.lgr.Warn("Kafka reader close failed", logger.String("topic", r.Config().Topic), logger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.lgr.Warn("Kafka DLQ writer close failed", logger.Error(cerr))
			}
		}
		if err == nil {
			c.lgr.Info("Kafka consumer stopped")
		}
	})
	return err
}

func (c *Consumer) fetch(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.readWG.Done()
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.lgr.Error("Kafka fetch failed", logger.String("topic", topic), logger.Error(err))
			if !c.pause(time.Second) {
				return
			}
			continue
		}

		shard := c.shards[msg.Partition%len(c.shards)]
		select {
		case shard <- fetched{reader: r, msg: msg}:
			c.metrics.backlog.WithLabelValues(topic).Set(float64(len(shard)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(in <-chan fetched) {
	defer c.workWG.Done()
	for f := range in {
		c.process(f)
	}
}

func (c *Consumer) process(f fetched) {
	topic := f.msg.Topic
	handler, ok := c.handlers[topic]
	if !ok {
		return
	}
	start := time.Now()
	err := c.handleWithRetry(handler, f.msg)
	c.metrics.handleTime.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	c.metrics.consumed.WithLabelValues(topic, result(err)).Inc()

	if err != nil {
		c.lgr.Error("Kafka handler failed",
			logger.String("topic", topic),
			logger.Int("partition", f.msg.Partition),
			logger.Int64("offset", f.msg.Offset),
			logger.Error(err))
		if !c.deadLetter(f.msg, err) {
			// no DLQ: leave the offset uncommitted so the message is redelivered
			return
		}
	}
	c.commit(f.reader, f.msg)
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg kafka.Message) (err error) {
	for attempt := 1; ; attempt++ {
		err = c.handleOnce(handler, msg)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !c.pause(jitteredBackoff(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

func (c *Consumer) handleOnce(handler MessageHandler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()
	ctx, hmsg, data, err := c.hook.BeforeHandle(context.Background(), msg.Topic, msg, msg.Value)
	if err != nil {
		return err
	}
	err = handler.Handle(ctx, data)
	c.hook.AfterHandle(ctx, msg.Topic, hmsg, data, err)
	if err != nil {
		c.hook.OnError(ctx, msg.Topic, hmsg, data, err)
	}
	return err
}

func (c *Consumer) deadLetter(msg kafka.Message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic: c.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.lgr.Error("Kafka DLQ write failed", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
		return false
	}
	c.metrics.deadLetter.WithLabelValues(msg.Topic).Inc()
	return true
}

func (c *Consumer) commit(r *kafka.Reader, msg kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return
		}
		if !c.pause(jitteredBackoff(50*time.Millisecond, 500*time.Millisecond, attempt)) {
			break
		}
	}
	c.lgr.Error("Kafka commit failed",
		logger.String("topic", msg.Topic),
		logger.Int64("offset", msg.Offset),
		logger.Error(err))
}

// pause sleeps for d and reports false when the consumer began stopping.
func (c *Consumer) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.stopping:
		return false
	}
}

// jitteredBackoff doubles lo per attempt up to hi and removes up to half of it at random.
func jitteredBackoff(lo, hi time.Duration, attempt int) time.Duration {
	lo = max(lo, time.Millisecond)
	hi = max(hi, lo)
	d := lo
	for i := 1; i < attempt && d < hi; i++ {
		d *= 2
	}
	d = min(d, hi)
	return d - rand.N(d/2+1)
}
