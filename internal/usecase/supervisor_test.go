package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/services/tracker"
	"github.com/trickingegg/golden-dragon/pkg/metrics"
)

type priceLog struct {
	mu     sync.Mutex
	prices []string
}

func (l *priceLog) observe(id string, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prices = append(l.prices, id+"@"+price.String())
}

type supervisorFixture struct {
	sup       *Supervisor
	tracker   *tracker.Tracker
	publisher *recordingPublisher
	store     *memStore
	writer    *CandleWriter
	prices    *priceLog
	registry  *fakeRegistry
}

func newSupervisorFixture(recent int) *supervisorFixture {
	f := &supervisorFixture{
		tracker:   tracker.New(tracker.WithClock(func() time.Time { return t0 })),
		publisher: &recordingPublisher{},
		store:     &memStore{},
		prices:    &priceLog{},
		registry:  &fakeRegistry{enabled: map[string]bool{"SCALPING": true, "ADAPTIVE_TREND": true}},
	}
	f.writer = NewCandleWriter(f.store, metrics.Nop{}, nil, 100, time.Hour)

	var procs []*InstrumentProcessor
	for _, inst := range []models.Instrument{sber, gazp} {
		procs = append(procs, NewInstrumentProcessor(inst, ProcessorConfig{AnalysisDelay: time.Hour}, ProcessorDeps{
			Signaler: &stubSignaler{},
			Tracker:  f.tracker,
			Metrics:  metrics.Nop{},
		}))
	}
	f.sup = NewSupervisor(procs, SupervisorConfig{RecentSignals: recent}, SupervisorDeps{
		Strategies: f.registry,
		Tracker:    f.tracker,
		Writer:     f.writer,
		Publisher:  f.publisher,
		Metrics:    metrics.Nop{},
		Observers:  []PriceObserver{f.prices.observe},
	})
	return f
}

func TestSupervisorRoutesEvents(t *testing.T) {
	f := newSupervisorFixture(10)
	ctx := context.Background()

	err := f.sup.Process(ctx, candleEvent("LKOH", t0, "100"))
	require.ErrorIs(t, err, models.ErrUnknownInstrument)

	require.NoError(t, f.sup.Process(ctx, candleEvent("SBER", t0.Add(time.Minute), "250")))
	require.NoError(t, f.sup.Process(ctx, candleEvent("SBER", t0.Add(time.Minute), "251")))
	require.NoError(t, f.sup.Process(ctx, candleEvent("GAZP", t0.Add(time.Minute), "160")))
	require.NoError(t, f.sup.Process(ctx, candleEvent("SBER", t0, "240")))

	assert.Equal(t, []string{"SBER@250", "SBER@251", "GAZP@160"}, f.prices.prices)
	assert.Equal(t, 2, f.writer.Pending())

	bars, err := f.sup.Bars("SBER", 10)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.True(t, bars[0].Close.Equal(dec("251")))

	_, err = f.sup.Bars("LKOH", 10)
	require.ErrorIs(t, err, models.ErrUnknownInstrument)
}

func TestSupervisorPublishesResolutions(t *testing.T) {
	f := newSupervisorFixture(10)
	sig := buySignal("ADAPTIVE_TREND")
	sig.ID = 3
	require.True(t, f.tracker.Register(sig))

	require.NoError(t, f.sup.Process(context.Background(), candleEvent("SBER", t0.Add(time.Minute), "97")))

	assert.Equal(t, []string{models.EventSignalResolved}, f.publisher.eventTypes())
	res := f.publisher.events[0].Resolution
	require.NotNil(t, res)
	assert.Equal(t, models.OutcomeFailed, res.Outcome)
	assert.Equal(t, int64(1), f.sup.Stats().Failed)

	f.sup.ResetStats()
	assert.Zero(t, f.sup.Stats().Failed)
}

func TestSupervisorRecentSignalsRing(t *testing.T) {
	f := newSupervisorFixture(2)
	for i := int64(1); i <= 3; i++ {
		sig := buySignal("SCALPING")
		sig.ID = i
		if i == 2 {
			sig.Instrument = gazp
		}
		f.sup.remember(sig)
	}

	all := f.sup.RecentSignals("", 0)
	require.Len(t, all, 2)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)

	onlySber := f.sup.RecentSignals("SBER", 10)
	require.Len(t, onlySber, 1)
	assert.Equal(t, int64(3), onlySber[0].ID)

	assert.Len(t, f.sup.RecentSignals("", 1), 1)
}

func TestSupervisorStrategiesAndInstruments(t *testing.T) {
	f := newSupervisorFixture(10)

	require.NoError(t, f.sup.SetStrategyEnabled("SCALPING", false))
	require.ErrorIs(t, f.sup.SetStrategyEnabled("NOPE", true), models.ErrUnknownStrategy)
	for _, st := range f.sup.Strategies() {
		if st.Name == "SCALPING" {
			assert.False(t, st.Enabled)
		}
	}

	require.NoError(t, f.sup.Process(context.Background(), candleEvent("SBER", t0.Add(time.Minute), "250")))
	sig := buySignal("SCALPING")
	sig.ID = 1
	sig.Entry, sig.StopLoss, sig.TakeProfit = dec("250"), dec("245"), dec("260")
	f.tracker.Register(sig)

	statuses := f.sup.Instruments()
	require.Len(t, statuses, 2)
	assert.Equal(t, "SBER", statuses[0].Instrument.ID)
	assert.Equal(t, 1, statuses[0].Bars)
	assert.True(t, statuses[0].LastClose.Equal(dec("250")))
	assert.Len(t, statuses[0].Active, 1)
	assert.Equal(t, "GAZP", statuses[1].Instrument.ID)
	assert.Zero(t, statuses[1].Bars)
}

func TestSupervisorStopFlushesCandles(t *testing.T) {
	f := newSupervisorFixture(10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.sup.Start(ctx)
	require.NoError(t, f.sup.Process(ctx, candleEvent("SBER", t0.Add(time.Minute), "250")))
	require.NoError(t, f.sup.Process(ctx, candleEvent("SBER", t0.Add(2*time.Minute), "251")))
	f.sup.Stop()

	assert.Equal(t, 2, f.store.stored())
	assert.Zero(t, f.writer.Pending())
}
