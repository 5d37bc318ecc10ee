package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/services/series"
	"github.com/trickingegg/golden-dragon/pkg/logger"
	"github.com/trickingegg/golden-dragon/pkg/util"
)

// Signaler produces candidate signals for one instrument.
type Signaler interface {
	EvaluateAll(inst models.Instrument, bars []models.Bar) []models.Signal
	WarmupPeriod() int
}

// SignalValidator decides whether a candidate may be traded.
type SignalValidator interface {
	Validate(ctx context.Context, sig models.Signal, portfolio *models.PortfolioSnapshot) models.ValidationResult
}

// SignalTracker follows accepted signals until resolution.
type SignalTracker interface {
	Register(sig models.Signal) bool
	UpdatePrice(instrumentID string, price decimal.Decimal) []models.Resolution
}

// OrderSubmitter turns an accepted signal into an order intent.
type OrderSubmitter interface {
	Submit(ctx context.Context, sig models.Signal, res models.ValidationResult) (*models.OrderIntent, error)
}

// ProcessorConfig holds the per-instrument timings.
type ProcessorConfig struct {
	BarDuration      time.Duration
	AnalysisDelay    time.Duration
	AnalysisInterval time.Duration
	Cooldown         time.Duration
	HistoryDays      int
	MaxBars          int
}

func (c *ProcessorConfig) normalize() {
	if c.BarDuration <= 0 {
		c.BarDuration = time.Minute
	}
	if c.AnalysisDelay < 0 {
		c.AnalysisDelay = 0
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = 10 * time.Second
	}
	if c.Cooldown < 0 {
		c.Cooldown = 0
	}
}

// ProcessorDeps groups the collaborators of an InstrumentProcessor.
type ProcessorDeps struct {
	Signaler  Signaler
	Validator SignalValidator
	Tracker   SignalTracker
	Portfolio drepo.PortfolioProvider
	History   drepo.HistoryProvider
	Executor  OrderSubmitter
	Publisher drepo.Publisher
	Metrics   drepo.Metrics
	IDs       *models.IDSequence
	Logger    *logger.Logger
}

// InstrumentProcessor owns the bar series of one instrument and runs its analysis cycle.
type InstrumentProcessor struct {
	inst   models.Instrument
	cfg    ProcessorConfig
	series *series.Series

	signaler  Signaler
	validator SignalValidator
	tracker   SignalTracker
	portfolio drepo.PortfolioProvider
	history   drepo.HistoryProvider
	executor  OrderSubmitter
	publisher drepo.Publisher
	metrics   drepo.Metrics
	ids       *models.IDSequence
	lgr       *logger.Logger

	mu           sync.Mutex
	lastAccepted time.Time
	onAccept     func(models.Signal)
	now          func() time.Time
}

// NewInstrumentProcessor wires a processor. Publisher, History and Executor may be nil.
func NewInstrumentProcessor(inst models.Instrument, cfg ProcessorConfig, deps ProcessorDeps) *InstrumentProcessor {
	cfg.normalize()
	ids := deps.IDs
	if ids == nil {
		ids = &models.IDSequence{}
	}
	lgr := deps.Logger
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &InstrumentProcessor{
		inst:      inst,
		cfg:       cfg,
		series:    series.New(cfg.BarDuration, series.WithMaxBars(cfg.MaxBars)),
		signaler:  deps.Signaler,
		validator: deps.Validator,
		tracker:   deps.Tracker,
		portfolio: deps.Portfolio,
		history:   deps.History,
		executor:  deps.Executor,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		ids:       ids,
		lgr:       lgr.With(logger.String("instrument", inst.ID)),
		now:       time.Now,
	}
}

// Instrument returns the processed instrument.
func (p *InstrumentProcessor) Instrument() models.Instrument { return p.inst }

// Series exposes the bar series for read-only inspection.
func (p *InstrumentProcessor) Series() *series.Series { return p.series }

// OnAccept registers a callback run after every accepted signal.
func (p *InstrumentProcessor) OnAccept(fn func(models.Signal)) {
	p.mu.Lock()
	p.onAccept = fn
	p.mu.Unlock()
}

// Ingest applies a candle or tick to the series and feeds the price to the tracker.
// Stale events are discarded without touching the tracker.
func (p *InstrumentProcessor) Ingest(ctx context.Context, ev *models.MarketEvent) (series.Applied, error) {
	if ev.InstrumentID() != p.inst.ID {
		return series.Discarded, fmt.Errorf("event for %q routed to %q: %w", ev.InstrumentID(), p.inst.ID, models.ErrUnknownInstrument)
	}

	var (
		applied series.Applied
		err     error
	)
	switch {
	case ev.Candle != nil:
		applied, err = p.series.Apply(ev.Candle.Bar(p.cfg.BarDuration))
	case ev.Tick != nil:
		applied, err = p.series.ApplyTick(*ev.Tick)
	default:
		return series.Discarded, errors.New("event empty")
	}
	if err != nil {
		p.metrics.RecordCandle(p.inst.ID, "invalid")
		return series.Discarded, fmt.Errorf("apply event: %w", err)
	}
	p.metrics.RecordCandle(p.inst.ID, applied.String())
	if applied == series.Discarded {
		p.lgr.Debug("Stale event discarded", logger.Time("event_time", ev.Time()))
		return applied, nil
	}

	price := ev.Price()
	p.metrics.RecordLastPrice(p.inst.ID, price.InexactFloat64())
	p.tracker.UpdatePrice(p.inst.ID, price)
	return applied, nil
}

// RunAnalysis runs one analysis cycle and stops at the first accepted candidate.
func (p *InstrumentProcessor) RunAnalysis(ctx context.Context) error {
	start := p.now()
	bars := p.series.Snapshot()
	if warmup := p.signaler.WarmupPeriod(); len(bars) <= warmup {
		p.lgr.Debug("Waiting for warm-up", logger.Int("bars", len(bars)), logger.Int("warmup", warmup))
		return nil
	}
	if p.inCooldown(start) {
		return nil
	}

	candidates := p.signaler.EvaluateAll(p.inst, bars)
	if len(candidates) == 0 {
		return nil
	}

	portfolio, err := p.portfolio.Portfolio(ctx)
	if err != nil {
		p.metrics.RecordError("portfolio")
		return fmt.Errorf("portfolio for %s: %w", p.inst.ID, err)
	}

	defer func() { p.metrics.RecordLatency("analysis", time.Since(start).Seconds()) }()
	for _, cand := range candidates {
		// every candidate gets an id so rejections can be traced; ids may be sparse
		cand.ID = p.ids.Next()
		p.metrics.RecordSignal(cand.Strategy, "candidate")
		res := p.validator.Validate(ctx, cand, portfolio)
		if !res.Valid {
			p.metrics.RecordSignal(cand.Strategy, "rejected")
			p.metrics.RecordRejection(string(res.Code))
			p.lgr.Info("Signal rejected",
				logger.Int64("signal_id", cand.ID),
				logger.String("strategy", cand.Strategy),
				logger.String("direction", string(cand.Direction)),
				logger.String("code", string(res.Code)),
				logger.String("reason", res.Reason))
			continue
		}
		return p.accept(ctx, cand, res)
	}
	return nil
}

func (p *InstrumentProcessor) accept(ctx context.Context, sig models.Signal, res models.ValidationResult) error {
	p.tracker.Register(sig)

	p.mu.Lock()
	p.lastAccepted = p.now()
	onAccept := p.onAccept
	p.mu.Unlock()

	p.metrics.RecordSignal(sig.Strategy, "accepted")
	p.lgr.Info("Signal accepted",
		logger.Int64("signal_id", sig.ID),
		logger.String("strategy", sig.Strategy),
		logger.String("direction", string(sig.Direction)),
		logger.Int64("lots", res.Lots),
		logger.Int64("close_lots", res.CloseLots),
		logger.String("reward_risk", res.RewardRisk.StringFixed(2)),
		logger.String("description", sig.Description))

	if onAccept != nil {
		onAccept(sig)
	}

	if p.publisher != nil {
		ev := &models.SignalEvent{Type: models.EventSignalAccepted, Signal: sig, Lots: res.Lots, At: p.now()}
		if err := p.publisher.PublishSignalEvent(ctx, ev); err != nil {
			p.metrics.RecordError("publish_signal")
			p.lgr.Warn("Failed to publish signal", logger.Int64("signal_id", sig.ID), logger.Error(err))
		}
	}

	if p.executor == nil || res.Lots == 0 {
		return nil
	}
	if _, err := p.executor.Submit(ctx, sig, res); err != nil {
		p.metrics.RecordError("order_submit")
		return fmt.Errorf("submit order for signal %d: %w", sig.ID, err)
	}
	return nil
}

func (p *InstrumentProcessor) inCooldown(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.lastAccepted.IsZero() && now.Sub(p.lastAccepted) < p.cfg.Cooldown
}

// Backfill loads HistoryDays of candles into the series before scheduling.
func (p *InstrumentProcessor) Backfill(ctx context.Context) error {
	if p.history == nil || p.cfg.HistoryDays <= 0 {
		return nil
	}
	to := p.now()
	from, to := util.AlignFromTo(to.AddDate(0, 0, -p.cfg.HistoryDays), to, p.cfg.BarDuration)

	candles, err := p.history.HistoricCandles(ctx, p.inst.ID, from, to, drepo.TimeframeFor(p.cfg.BarDuration))
	if err != nil {
		return fmt.Errorf("backfill %s: %w", p.inst.ID, err)
	}

	var appended, skipped int
	for i := range candles {
		c := candles[i]
		if c.InstrumentID == "" {
			c.InstrumentID = p.inst.ID
		}
		applied, err := p.series.Apply(c.Bar(p.cfg.BarDuration))
		if err != nil || applied == series.Discarded {
			skipped++
			continue
		}
		appended++
	}
	p.lgr.Info("Backfill complete",
		logger.Int("candles", len(candles)),
		logger.Int("applied", appended),
		logger.Int("skipped", skipped),
		logger.Int("bars", p.series.Len()))
	return nil
}

// Task is the handle of a running analysis schedule.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Stop cancels the schedule and waits for an in-flight cycle to finish.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the schedule has exited.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the fatal error that halted the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Start schedules RunAnalysis after the initial delay and then every interval.
// Cycles run on ctx, so stopping the task does not cancel a cycle in flight.
func (p *InstrumentProcessor) Start(ctx context.Context) *Task {
	taskCtx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)

		delay := time.NewTimer(p.cfg.AnalysisDelay)
		defer delay.Stop()
		select {
		case <-taskCtx.Done():
			return
		case <-delay.C:
		}

		ticker := time.NewTicker(p.cfg.AnalysisInterval)
		defer ticker.Stop()
		for {
			if err := p.RunAnalysis(ctx); err != nil {
				if errors.Is(err, models.ErrFatal) {
					p.lgr.Error("Analysis halted", logger.Error(err))
					t.mu.Lock()
					t.err = err
					t.mu.Unlock()
					return
				}
				p.lgr.Warn("Analysis cycle failed", logger.Error(err))
			}
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return t
}
