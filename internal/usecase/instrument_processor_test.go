package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	drepo "github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/internal/services/series"
	"github.com/trickingegg/golden-dragon/internal/services/tracker"
	"github.com/trickingegg/golden-dragon/pkg/metrics"
)

type processorFixture struct {
	proc      *InstrumentProcessor
	signaler  *stubSignaler
	validator *stubValidator
	tracker   *tracker.Tracker
	portfolio *stubPortfolio
	publisher *recordingPublisher
	executor  *recordingExecutor
	clock     time.Time
}

func newProcessorFixture(cfg ProcessorConfig) *processorFixture {
	f := &processorFixture{
		signaler:  &stubSignaler{warmup: 3},
		validator: &stubValidator{results: map[string]models.ValidationResult{}},
		portfolio: &stubPortfolio{snap: &models.PortfolioSnapshot{Cash: dec("1000000")}},
		publisher: &recordingPublisher{},
		executor:  &recordingExecutor{},
		clock:     t0,
	}
	f.tracker = tracker.New(tracker.WithClock(func() time.Time { return f.clock }))
	f.proc = NewInstrumentProcessor(sber, cfg, ProcessorDeps{
		Signaler:  f.signaler,
		Validator: f.validator,
		Tracker:   f.tracker,
		Portfolio: f.portfolio,
		Executor:  f.executor,
		Publisher: f.publisher,
		Metrics:   metrics.Nop{},
	})
	f.proc.now = func() time.Time { return f.clock }
	return f
}

func (f *processorFixture) ingestBars(t *testing.T, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		_, err := f.proc.Ingest(context.Background(), candleEvent("SBER", t0.Add(time.Duration(i)*time.Minute), "100"))
		require.NoError(t, err)
	}
}

func TestIngestAppliesCandlesAndTicks(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	ctx := context.Background()

	applied, err := f.proc.Ingest(ctx, candleEvent("SBER", t0.Add(time.Minute), "100"))
	require.NoError(t, err)
	assert.Equal(t, series.Appended, applied)

	applied, err = f.proc.Ingest(ctx, candleEvent("SBER", t0.Add(time.Minute), "101"))
	require.NoError(t, err)
	assert.Equal(t, series.Amended, applied)
	assert.Equal(t, 1, f.proc.Series().Len())

	tick := &models.MarketEvent{Tick: &models.Tick{InstrumentID: "SBER", Time: t0.Add(30 * time.Second), Price: dec("102"), Volume: dec("5")}}
	applied, err = f.proc.Ingest(ctx, tick)
	require.NoError(t, err)
	assert.Equal(t, series.Amended, applied)

	last, ok := f.proc.Series().Last()
	require.True(t, ok)
	assert.True(t, last.Close.Equal(dec("102")))
	assert.True(t, last.Volume.Equal(dec("105")))

	applied, err = f.proc.Ingest(ctx, candleEvent("SBER", t0, "90"))
	require.NoError(t, err)
	assert.Equal(t, series.Discarded, applied)
	assert.Equal(t, 1, f.proc.Series().Len())
}

func TestIngestRejectsForeignInstrument(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	_, err := f.proc.Ingest(context.Background(), candleEvent("GAZP", t0, "100"))
	require.ErrorIs(t, err, models.ErrUnknownInstrument)
}

func TestIngestFeedsTracker(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	sig := buySignal("ADAPTIVE_TREND")
	sig.ID = 7
	require.True(t, f.tracker.Register(sig))

	_, err := f.proc.Ingest(context.Background(), candleEvent("SBER", t0.Add(time.Minute), "103"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.tracker.Len())

	_, err = f.proc.Ingest(context.Background(), candleEvent("SBER", t0.Add(2*time.Minute), "106"))
	require.NoError(t, err)
	stats := f.tracker.Stats()
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, 0, stats.Active)
}

func TestRunAnalysisWaitsForWarmup(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	f.signaler.out = []models.Signal{buySignal("A")}
	f.ingestBars(t, 3)

	require.NoError(t, f.proc.RunAnalysis(context.Background()))
	assert.Equal(t, int32(0), f.signaler.calls.Load())

	f.ingestBars(t, 4)
	require.NoError(t, f.proc.RunAnalysis(context.Background()))
	assert.Equal(t, int32(1), f.signaler.calls.Load())
}

func TestRunAnalysisAcceptsFirstValidCandidate(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{Cooldown: time.Minute})
	f.signaler.out = []models.Signal{buySignal("A"), buySignal("B"), buySignal("C")}
	f.validator.results["B"] = models.ValidationResult{Valid: true, Lots: 5, OpenLots: 5}
	f.validator.results["C"] = models.ValidationResult{Valid: true, Lots: 9, OpenLots: 9}
	f.ingestBars(t, 5)

	var remembered []models.Signal
	f.proc.OnAccept(func(s models.Signal) { remembered = append(remembered, s) })

	require.NoError(t, f.proc.RunAnalysis(context.Background()))

	assert.Equal(t, []string{"A", "B"}, f.validator.seen)
	assert.Equal(t, []int64{1, 2}, f.validator.ids)
	active := f.tracker.Active("SBER")
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].Signal.ID)
	assert.Equal(t, "B", active[0].Signal.Strategy)

	require.Len(t, f.executor.calls, 1)
	assert.Equal(t, int64(2), f.executor.calls[0].ID)
	assert.Equal(t, int64(5), f.executor.lots[0])

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.EventSignalAccepted, f.publisher.events[0].Type)
	assert.Equal(t, int64(5), f.publisher.events[0].Lots)
	require.Len(t, remembered, 1)
}

func TestRunAnalysisHonoursCooldown(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{Cooldown: time.Minute})
	f.signaler.out = []models.Signal{buySignal("A")}
	f.validator.results["A"] = models.ValidationResult{Valid: true, Lots: 1, OpenLots: 1}
	f.ingestBars(t, 5)
	ctx := context.Background()

	require.NoError(t, f.proc.RunAnalysis(ctx))
	f.clock = f.clock.Add(30 * time.Second)
	require.NoError(t, f.proc.RunAnalysis(ctx))
	assert.Equal(t, int32(1), f.signaler.calls.Load())

	f.clock = f.clock.Add(31 * time.Second)
	require.NoError(t, f.proc.RunAnalysis(ctx))
	assert.Equal(t, int32(2), f.signaler.calls.Load())
	assert.Equal(t, 2, f.tracker.Len())
	assert.Len(t, f.executor.calls, 2)
	assert.Equal(t, int64(2), f.executor.calls[1].ID)
}

func TestRunAnalysisRejectionsSubmitNothing(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	f.signaler.out = []models.Signal{buySignal("A"), buySignal("B")}
	f.ingestBars(t, 5)

	require.NoError(t, f.proc.RunAnalysis(context.Background()))
	assert.Equal(t, []string{"A", "B"}, f.validator.seen)
	assert.Equal(t, []int64{1, 2}, f.validator.ids, "rejected candidates carry ids")
	assert.Zero(t, f.tracker.Len())
	assert.Empty(t, f.executor.calls)
	assert.Empty(t, f.publisher.events)
}

func TestRunAnalysisSkipsOrderForZeroLots(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	f.signaler.out = []models.Signal{buySignal("A")}
	f.validator.results["A"] = models.ValidationResult{Valid: true}
	f.ingestBars(t, 5)

	require.NoError(t, f.proc.RunAnalysis(context.Background()))
	assert.Equal(t, 1, f.tracker.Len())
	assert.Empty(t, f.executor.calls)
}

func TestRunAnalysisPropagatesPortfolioError(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{})
	f.signaler.out = []models.Signal{buySignal("A")}
	f.portfolio.err = fmt.Errorf("portfolio: %w", models.ErrTransient)
	f.ingestBars(t, 5)

	err := f.proc.RunAnalysis(context.Background())
	require.ErrorIs(t, err, models.ErrTransient)
	assert.Empty(t, f.validator.seen)
}

func TestTaskHaltsOnFatalError(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{AnalysisInterval: 10 * time.Millisecond})
	f.signaler.warmup = 0
	f.signaler.out = []models.Signal{buySignal("A")}
	f.portfolio.err = fmt.Errorf("token revoked: %w", models.ErrFatal)
	f.ingestBars(t, 1)

	task := f.proc.Start(context.Background())
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not halt")
	}
	require.ErrorIs(t, task.Err(), models.ErrFatal)
	assert.Equal(t, int32(1), f.signaler.calls.Load())
}

func TestTaskContinuesAfterTransientError(t *testing.T) {
	f := newProcessorFixture(ProcessorConfig{AnalysisInterval: 5 * time.Millisecond})
	f.signaler.warmup = 0
	f.signaler.out = []models.Signal{buySignal("A")}
	f.portfolio.err = fmt.Errorf("timeout: %w", models.ErrTransient)
	f.ingestBars(t, 1)

	task := f.proc.Start(context.Background())
	require.Eventually(t, func() bool { return f.signaler.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	task.Stop()

	select {
	case <-task.Done():
	default:
		t.Fatal("Stop returned before the task exited")
	}
	assert.NoError(t, task.Err())
}

func TestBackfillAppliesHistory(t *testing.T) {
	hist := &stubHistory{candles: []models.Candle{
		*candleEvent("SBER", t0.Add(time.Minute), "100").Candle,
		*candleEvent("SBER", t0.Add(2*time.Minute), "101").Candle,
		*candleEvent("SBER", t0.Add(2*time.Minute), "102").Candle,
		*candleEvent("SBER", t0.Add(3*time.Minute), "103").Candle,
	}}
	proc := NewInstrumentProcessor(sber, ProcessorConfig{HistoryDays: 7}, ProcessorDeps{
		Signaler: &stubSignaler{},
		Tracker:  tracker.New(),
		History:  hist,
		Metrics:  metrics.Nop{},
	})
	proc.now = func() time.Time { return t0.Add(time.Hour) }

	require.NoError(t, proc.Backfill(context.Background()))
	assert.Equal(t, drepo.TF1m, hist.tf)
	assert.Equal(t, 3, proc.Series().Len())
	last, _ := proc.Series().Last()
	assert.True(t, last.Close.Equal(dec("103")))
}

func TestBackfillWithoutHistoryIsNoop(t *testing.T) {
	proc := NewInstrumentProcessor(sber, ProcessorConfig{HistoryDays: 7}, ProcessorDeps{
		Signaler: &stubSignaler{},
		Tracker:  tracker.New(),
		Metrics:  metrics.Nop{},
	})
	require.NoError(t, proc.Backfill(context.Background()))
	assert.Zero(t, proc.Series().Len())
}
