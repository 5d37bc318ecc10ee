package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	mid "github.com/trickingegg/golden-dragon/internal/middleware"
	"github.com/trickingegg/golden-dragon/internal/services/series"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
	"github.com/trickingegg/golden-dragon/internal/services/tracker"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// StrategyRegistry toggles strategies and reports their counters.
type StrategyRegistry interface {
	Enable(name string, enabled bool) error
	Stats() []strategy.StrategyStatus
}

// PriceObserver is told about every applied price, e.g. the paper broker.
type PriceObserver func(instrumentID string, price decimal.Decimal)

// InstrumentStatus is the operator view of one instrument.
type InstrumentStatus struct {
	Instrument models.Instrument      `json:"instrument"`
	Bars       int                    `json:"bars"`
	LastClose  decimal.Decimal        `json:"last_close"`
	LastTime   time.Time              `json:"last_time"`
	Active     []models.TrackedSignal `json:"active"`
}

// SupervisorConfig controls the background housekeeping.
type SupervisorConfig struct {
	SweepInterval time.Duration
	RecentSignals int
}

// SupervisorDeps groups the shared collaborators.
type SupervisorDeps struct {
	Strategies StrategyRegistry
	Tracker    *tracker.Tracker
	Writer     *CandleWriter
	Publisher  drepo.Publisher
	Metrics    drepo.Metrics
	Logger     *logger.Logger
	Observers  []PriceObserver
}

// Supervisor routes market events to instrument processors and owns their schedules.
type Supervisor struct {
	processors map[string]*InstrumentProcessor
	order      []string

	strategies StrategyRegistry
	tracker    *tracker.Tracker
	writer     *CandleWriter
	publisher  drepo.Publisher
	metrics    drepo.Metrics
	observers  []PriceObserver
	lgr        *logger.Logger
	sweepEvery time.Duration

	recentMu  sync.Mutex
	recent    []models.Signal
	recentCap int

	mu        sync.Mutex
	tasks     []*Task
	sweepStop context.CancelFunc
	sweepDone chan struct{}
}

var _ mid.Proc = (*Supervisor)(nil)

// NewSupervisor wires the processors to the shared tracker, strategies and sinks.
func NewSupervisor(processors []*InstrumentProcessor, cfg SupervisorConfig, deps SupervisorDeps) *Supervisor {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.RecentSignals <= 0 {
		cfg.RecentSignals = 200
	}
	lgr := deps.Logger
	if lgr == nil {
		lgr = logger.Nop()
	}
	s := &Supervisor{
		processors: make(map[string]*InstrumentProcessor, len(processors)),
		strategies: deps.Strategies,
		tracker:    deps.Tracker,
		writer:     deps.Writer,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		observers:  deps.Observers,
		lgr:        lgr,
		sweepEvery: cfg.SweepInterval,
		recentCap:  cfg.RecentSignals,
	}
	for _, p := range processors {
		id := p.Instrument().ID
		if _, dup := s.processors[id]; dup {
			continue
		}
		s.processors[id] = p
		s.order = append(s.order, id)
		p.OnAccept(s.remember)
	}
	if s.tracker != nil {
		s.tracker.AddListener(s.onResolved)
	}
	return s
}

// Process routes one market event to its instrument processor.
func (s *Supervisor) Process(ctx context.Context, ev *models.MarketEvent) error {
	p, ok := s.processors[ev.InstrumentID()]
	if !ok {
		s.metrics.RecordError("unknown_instrument")
		return fmt.Errorf("route %q: %w", ev.InstrumentID(), models.ErrUnknownInstrument)
	}
	applied, err := p.Ingest(ctx, ev)
	if err != nil {
		return err
	}
	if applied == series.Discarded {
		return nil
	}
	for _, obs := range s.observers {
		obs(p.Instrument().ID, ev.Price())
	}
	if s.writer != nil {
		if bar, ok := p.Series().Last(); ok {
			s.writer.Add(p.Instrument().ID, bar)
		}
	}
	return nil
}

// Start backfills every instrument, then launches the analysis tasks and the sweeper.
func (s *Supervisor) Start(ctx context.Context) {
	for _, id := range s.order {
		if err := s.processors[id].Backfill(ctx); err != nil {
			s.metrics.RecordError("backfill")
			s.lgr.Warn("Backfill failed", logger.String("instrument", id), logger.Error(err))
		}
	}
	if s.writer != nil {
		s.writer.Start(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		s.tasks = append(s.tasks, s.processors[id].Start(ctx))
	}
	if s.tracker != nil && s.sweepStop == nil {
		sweepCtx, cancel := context.WithCancel(ctx)
		s.sweepStop = cancel
		s.sweepDone = make(chan struct{})
		go s.sweepLoop(sweepCtx, s.sweepDone)
	}
	s.lgr.Info("Supervisor started", logger.Strings("instruments", s.order))
}

func (s *Supervisor) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := s.tracker.Sweep(); len(expired) > 0 {
				s.lgr.Debug("Sweep expired signals", logger.Int("count", len(expired)))
			}
		}
	}
}

// Stop halts the schedules and the sweeper, then flushes pending candles.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	stop, done := s.sweepStop, s.sweepDone
	s.sweepStop, s.sweepDone = nil, nil
	s.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	if stop != nil {
		stop()
		<-done
	}
	if s.writer != nil {
		s.writer.Stop()
	}
}

func (s *Supervisor) remember(sig models.Signal) {
	s.recentMu.Lock()
	s.recent = append(s.recent, sig)
	if over := len(s.recent) - s.recentCap; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	s.recentMu.Unlock()
	if s.tracker != nil {
		s.metrics.SetActiveSignals(s.tracker.Len())
	}
}

func (s *Supervisor) onResolved(r models.Resolution) {
	s.metrics.RecordOutcome(r.Signal.Strategy, string(r.Outcome))
	s.metrics.SetActiveSignals(s.tracker.Len())
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res := r
	ev := &models.SignalEvent{Type: models.EventSignalResolved, Signal: r.Signal, Resolution: &res, At: r.ResolvedAt}
	if err := s.publisher.PublishSignalEvent(ctx, ev); err != nil {
		s.metrics.RecordError("publish_resolution")
		s.lgr.Warn("Failed to publish resolution",
			logger.Int64("signal_id", r.Signal.ID),
			logger.String("instrument", r.Signal.Instrument.ID),
			logger.Error(err))
	}
}

// Stats returns the tracker counters.
func (s *Supervisor) Stats() models.TrackerStats { return s.tracker.Stats() }

// ResetStats clears the tracker counters.
func (s *Supervisor) ResetStats() {
	s.tracker.Reset()
	s.lgr.Info("Statistics reset")
}

// Strategies returns the strategy status summed across instruments.
func (s *Supervisor) Strategies() []strategy.StrategyStatus { return s.strategies.Stats() }

// SetStrategyEnabled toggles a strategy on every processor.
func (s *Supervisor) SetStrategyEnabled(name string, enabled bool) error {
	if err := s.strategies.Enable(name, enabled); err != nil {
		return err
	}
	s.lgr.Info("Strategy toggled", logger.String("strategy", name), logger.Bool("enabled", enabled))
	return nil
}

// RecentSignals returns accepted signals newest first, optionally for one instrument.
func (s *Supervisor) RecentSignals(instrumentID string, limit int) []models.Signal {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	out := make([]models.Signal, 0, min(max(limit, 0), len(s.recent)))
	for i := len(s.recent) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if instrumentID == "" || s.recent[i].Instrument.ID == instrumentID {
			out = append(out, s.recent[i])
		}
	}
	return out
}

// Instruments returns the status of every processed instrument in configuration order.
func (s *Supervisor) Instruments() []InstrumentStatus {
	out := make([]InstrumentStatus, 0, len(s.order))
	for _, id := range s.order {
		p := s.processors[id]
		st := InstrumentStatus{Instrument: p.Instrument(), Bars: p.Series().Len()}
		if last, ok := p.Series().Last(); ok {
			st.LastClose = last.Close
			st.LastTime = last.EndTime
		}
		if s.tracker != nil {
			st.Active = s.tracker.Active(id)
		}
		out = append(out, st)
	}
	return out
}

// Bars returns the latest n bars of an instrument.
func (s *Supervisor) Bars(instrumentID string, n int) ([]models.Bar, error) {
	p, ok := s.processors[instrumentID]
	if !ok {
		return nil, fmt.Errorf("bars %q: %w", instrumentID, models.ErrUnknownInstrument)
	}
	return p.Series().LastN(n), nil
}

// Processor returns the processor of an instrument.
func (s *Supervisor) Processor(instrumentID string) (*InstrumentProcessor, bool) {
	p, ok := s.processors[instrumentID]
	return p, ok
}
