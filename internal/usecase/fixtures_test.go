package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/services/strategy"
)

var (
	sber = models.Instrument{ID: "SBER", Name: "Sberbank", Kind: models.KindStock, Currency: "RUB", LotSize: 10}
	gazp = models.Instrument{ID: "GAZP", Name: "Gazprom", Kind: models.KindStock, Currency: "RUB", LotSize: 10}

	t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func candleEvent(inst string, end time.Time, close string) *models.MarketEvent {
	c := dec(close)
	return &models.MarketEvent{Candle: &models.Candle{
		InstrumentID: inst,
		EndTime:      end,
		Duration:     time.Minute,
		Open:         c,
		High:         c,
		Low:          c,
		Close:        c,
		Volume:       dec("100"),
	}}
}

func buySignal(strategyName string) models.Signal {
	return models.Signal{
		Strategy:   strategyName,
		Direction:  models.Buy,
		Trend:      models.TrendBull,
		Score:      90,
		Entry:      dec("100"),
		StopLoss:   dec("98"),
		TakeProfit: dec("106"),
		CreatedAt:  t0,
		Instrument: sber,
	}
}

type stubSignaler struct {
	warmup int
	out    []models.Signal
	calls  atomic.Int32
}

func (s *stubSignaler) EvaluateAll(models.Instrument, []models.Bar) []models.Signal {
	s.calls.Add(1)
	return s.out
}

func (s *stubSignaler) WarmupPeriod() int { return s.warmup }

type stubValidator struct {
	mu      sync.Mutex
	results map[string]models.ValidationResult
	seen    []string
	ids     []int64
}

func (v *stubValidator) Validate(_ context.Context, sig models.Signal, _ *models.PortfolioSnapshot) models.ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen = append(v.seen, sig.Strategy)
	v.ids = append(v.ids, sig.ID)
	if r, ok := v.results[sig.Strategy]; ok {
		return r
	}
	return models.Reject(models.RejectLowScore, "no result configured")
}

type stubPortfolio struct {
	snap *models.PortfolioSnapshot
	err  error
}

func (p *stubPortfolio) Portfolio(context.Context) (*models.PortfolioSnapshot, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.snap, nil
}

type stubHistory struct {
	candles []models.Candle
	err     error
	tf      drepo.Timeframe
}

func (h *stubHistory) HistoricCandles(_ context.Context, _ string, _, _ time.Time, tf drepo.Timeframe) ([]models.Candle, error) {
	h.tf = tf
	return h.candles, h.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	intents []*models.OrderIntent
	events  []*models.SignalEvent
}

func (p *recordingPublisher) PublishOrderIntent(_ context.Context, intent *models.OrderIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, intent)
	return nil
}

func (p *recordingPublisher) PublishSignalEvent(_ context.Context, ev *models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingExecutor struct {
	mu    sync.Mutex
	calls []models.Signal
	lots  []int64
	err   error
}

func (e *recordingExecutor) Submit(_ context.Context, sig models.Signal, res models.ValidationResult) (*models.OrderIntent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, sig)
	e.lots = append(e.lots, res.Lots)
	return &models.OrderIntent{SignalID: sig.ID}, e.err
}

type queued struct {
	msgType string
	payload interface{}
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	msgs []queued
	err  error
}

func (q *recordingEnqueuer) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, queued{msgType, payload})
	return nil
}

func (q *recordingEnqueuer) Stop(context.Context) error { return nil }

type memStore struct {
	mu      sync.Mutex
	batches [][]models.Candle
	fail    bool
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) StoreBatch(_ context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.batches = append(s.batches, candles)
	return nil
}

func (s *memStore) Candles(context.Context, string, time.Time, time.Time, drepo.Timeframe) ([]models.Candle, error) {
	return nil, nil
}

func (s *memStore) LatestN(context.Context, string, int, drepo.Timeframe) ([]models.Candle, error) {
	return nil, nil
}

func (s *memStore) Health(context.Context) error { return nil }

func (s *memStore) Close() error { return nil }

func (s *memStore) stored() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

type fakeRegistry struct {
	mu      sync.Mutex
	enabled map[string]bool
}

func (r *fakeRegistry) Enable(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enabled[name]; !ok {
		return models.ErrUnknownStrategy
	}
	r.enabled[name] = enabled
	return nil
}

func (r *fakeRegistry) Stats() []strategy.StrategyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []strategy.StrategyStatus
	for name, on := range r.enabled {
		out = append(out, strategy.StrategyStatus{Name: name, Enabled: on})
	}
	return out
}
