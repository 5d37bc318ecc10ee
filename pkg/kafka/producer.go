package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer writes keyed messages. Messages with the same key land on the same
// partition, which keeps per-instrument order.
type Producer struct {
	writer  *kafka.Writer
	metrics *clientMetrics
}

func NewProducer(cfg ProducerConfig, opts ...Option) (*Producer, error) {
	if err := prepare(&cfg); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  compressionCodec(cfg.Compression),
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			BatchSize:    cfg.BatchSize,
			BatchBytes:   int64(cfg.BatchBytes),
			BatchTimeout: cfg.Linger,
			Async:        cfg.Async,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				o.lgr.Warn(fmt.Sprintf(msg, args...))
			}),
		},
		metrics: o.metrics,
	}, nil
}

// Publish writes one message. Values other than []byte and string are JSON encoded.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	v, err := encodeValue(value)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: v, Time: start})
	p.metrics.published.WithLabelValues(topic, result(err)).Inc()
	p.metrics.publishTime.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	p.metrics.publishSize.WithLabelValues(topic).Add(float64(len(v)))
	return nil
}

// PublishMessage writes an unkeyed payload. It makes the producer a log collector sink.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

// Close flushes buffered messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
