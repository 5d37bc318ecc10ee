package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	mid "github.com/trickingegg/golden-dragon/internal/middleware"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

const (
	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 30 * time.Second
)

// CandleCollector reads the market stream and pushes events through the pipeline.
type CandleCollector struct {
	stream  drepo.MarketStream
	pipe    *mid.RealtimePipeline
	metrics drepo.Metrics
	lgr     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCandleCollector creates a collector.
func NewCandleCollector(stream drepo.MarketStream, pipe *mid.RealtimePipeline, metrics drepo.Metrics, l *logger.Logger) *CandleCollector {
	if l == nil {
		l = logger.Nop()
	}
	return &CandleCollector{stream: stream, pipe: pipe, metrics: metrics, lgr: l}
}

// IsConnected returns true if the market stream is connected.
func (c *CandleCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects, subscribes and launches the consume loop.
func (c *CandleCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.run(runCtx, done)
	return nil
}

func (c *CandleCollector) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	backoff := reconnectMinBackoff
	for {
		evCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, evCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.lgr.Warn("Market stream interrupted", logger.Error(err), logger.Duration("backoff", backoff))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				backoff = reconnectMinBackoff
				c.lgr.Info("Market stream reconnected")
				break
			}
			c.metrics.RecordError("stream_reconnect")
			backoff = min(backoff*2, reconnectMaxBackoff)
			c.lgr.Warn("Reconnect failed", logger.Error(rerr), logger.Duration("backoff", backoff))
		}
	}
}

// consume returns when the stream fails or closes.
func (c *CandleCollector) consume(ctx context.Context, evCh <-chan *models.MarketEvent, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case ev, ok := <-evCh:
			if !ok {
				return errors.New("market stream closed")
			}
			if ev == nil {
				continue
			}
			if err := c.pipe.Process(ctx, ev); err != nil {
				if errors.Is(err, models.ErrUnknownInstrument) {
					continue
				}
				c.lgr.Debug("Event not processed",
					logger.String("instrument", ev.InstrumentID()),
					logger.Error(err))
			}
		}
	}
}

// Shutdown stops the consume loop and the pipeline, then closes the stream.
func (c *CandleCollector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	c.pipe.Stop()
	return c.stream.Close()
}
