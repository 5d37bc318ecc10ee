package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	domrepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
)

const (
	minBackoff = 50 * time.Millisecond
	maxBackoff = 2 * time.Second
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ev *models.MarketEvent) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, ev *models.MarketEvent) error

func (f ProcFunc) Process(ctx context.Context, ev *models.MarketEvent) error { return f(ctx, ev) }

// RealtimePipeline sits between the market stream and the candle router.
// It validates events, throttles ticks per instrument, and buffers events
// when downstream fails, replaying them with capped exponential backoff.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.MarketEvent
	stopCh   chan struct{}
	done     chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-instrument last accepted tick
	now      func() time.Time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps ticks per second per instrument. Zero disables throttling.
// Candles are never throttled.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketEvent, p.bufSize)
	return p
}

// Start launches background replay of buffered events.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.replay(ctx)
}

func (p *RealtimePipeline) replay(ctx context.Context) {
	defer close(p.done)
	backoff := minBackoff
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-p.bufCh:
			if err := p.proc.Process(ctx, ev); err == nil {
				backoff = minBackoff
				continue
			}
			p.metrics.RecordError("pipeline_flush")
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			// requeue if space; drop otherwise
			select {
			case p.bufCh <- ev:
			default:
				p.metrics.RecordError("pipeline_buffer_drop")
			}
		}
	}
}

// Stop stops the background replay and waits for it to exit.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
}

// Buffered returns the number of events waiting for replay.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates, throttles, and forwards an event downstream, buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, ev *models.MarketEvent) error {
	start := p.now()
	if err := ValidateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if ev.Tick != nil && !p.allow(ev.Tick.InstrumentID, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		if errors.Is(err, models.ErrUnknownInstrument) {
			return err
		}
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- ev:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// ValidateEvent rejects events that cannot be applied to a series.
func ValidateEvent(ev *models.MarketEvent) error {
	switch {
	case ev == nil || (ev.Candle == nil && ev.Tick == nil):
		return errors.New("event empty")
	case ev.InstrumentID() == "":
		return errors.New("instrument empty")
	case ev.Time().IsZero():
		return errors.New("timestamp invalid")
	}
	if c := ev.Candle; c != nil {
		if c.Open.IsNegative() || c.High.IsNegative() || c.Low.IsNegative() || c.Close.IsNegative() || c.Volume.IsNegative() {
			return errors.New("negative price/volume")
		}
		if c.High.LessThan(c.Low) {
			return errors.New("high below low")
		}
	}
	if t := ev.Tick; t != nil && (!t.Price.IsPositive() || t.Volume.IsNegative()) {
		return errors.New("invalid tick price/volume")
	}
	return nil
}

func (p *RealtimePipeline) allow(instrumentID string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[instrumentID]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[instrumentID] = now
	return true
}
