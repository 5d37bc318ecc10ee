package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// DefaultExpiry is how long a signal stays active without reaching stop or target.
const DefaultExpiry = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// Listener receives every terminal resolution. It is called outside the tracker lock.
type Listener func(models.Resolution)

// Tracker follows accepted signals until they hit the target, the stop or expire.
type Tracker struct {
	mu        sync.Mutex
	active    map[int64]*models.TrackedSignal
	stats     models.TrackerStats
	expiry    time.Duration
	now       func() time.Time
	listeners []Listener
	lgr       *logger.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithExpiry overrides the default 24h expiry window.
func WithExpiry(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.expiry = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithListener registers a resolution callback.
func WithListener(l Listener) Option {
	return func(t *Tracker) { t.listeners = append(t.listeners, l) }
}

// WithLogger sets the logger for lifecycle transitions.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) { t.lgr = l }
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		active: make(map[int64]*models.TrackedSignal),
		expiry: DefaultExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddListener registers a resolution callback after construction.
func (t *Tracker) AddListener(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Register starts tracking an accepted signal. Registering the same id twice is a no-op.
func (t *Tracker) Register(sig models.Signal) bool {
	t.mu.Lock()
	if _, exists := t.active[sig.ID]; exists {
		t.mu.Unlock()
		return false
	}
	t.active[sig.ID] = &models.TrackedSignal{
		Signal:    sig,
		StartedAt: t.now(),
		LastPrice: sig.Entry,
	}
	t.stats.Total++
	t.mu.Unlock()

	if t.lgr != nil {
		t.lgr.Info("Tracking signal",
			logger.Int64("signal_id", sig.ID),
			logger.String("instrument", sig.Instrument.ID),
			logger.String("strategy", sig.Strategy),
			logger.String("direction", string(sig.Direction)),
			logger.String("entry", sig.Entry.StringFixed(models.PriceScale)),
			logger.String("stop", sig.StopLoss.StringFixed(models.PriceScale)),
			logger.String("target", sig.TakeProfit.StringFixed(models.PriceScale)))
	}
	return true
}

// UpdatePrice checks the active signals of one instrument against a new price.
// Expiry is checked before the price levels.
func (t *Tracker) UpdatePrice(instrumentID string, price decimal.Decimal) []models.Resolution {
	now := t.now()

	t.mu.Lock()
	var out []models.Resolution
	for _, id := range t.sortedIDs() {
		ts := t.active[id]
		if ts.Signal.Instrument.ID != instrumentID {
			continue
		}
		ts.LastPrice = price
		outcome := t.evaluate(ts, price, now)
		if outcome == models.OutcomeActive {
			continue
		}
		out = append(out, t.complete(ts, outcome, price, now))
	}
	listeners := t.listeners
	t.mu.Unlock()

	t.emit(listeners, out)
	return out
}

// Sweep expires stale signals regardless of price updates.
func (t *Tracker) Sweep() []models.Resolution {
	now := t.now()

	t.mu.Lock()
	var out []models.Resolution
	for _, id := range t.sortedIDs() {
		ts := t.active[id]
		if t.expired(ts, now) {
			out = append(out, t.complete(ts, models.OutcomeExpired, ts.LastPrice, now))
		}
	}
	listeners := t.listeners
	t.mu.Unlock()

	t.emit(listeners, out)
	return out
}

func (t *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *Tracker) expired(ts *models.TrackedSignal, now time.Time) bool {
	return now.After(ts.StartedAt.Add(t.expiry))
}

func (t *Tracker) evaluate(ts *models.TrackedSignal, price decimal.Decimal, now time.Time) models.Outcome {
	if t.expired(ts, now) {
		return models.OutcomeExpired
	}
	sig := ts.Signal
	switch sig.Direction {
	case models.Buy:
		if !sig.TakeProfit.IsZero() && price.GreaterThanOrEqual(sig.TakeProfit) {
			return models.OutcomeSuccess
		}
		if price.LessThanOrEqual(sig.StopLoss) {
			return models.OutcomeFailed
		}
	case models.Sell:
		if !sig.TakeProfit.IsZero() && price.LessThanOrEqual(sig.TakeProfit) {
			return models.OutcomeSuccess
		}
		if price.GreaterThanOrEqual(sig.StopLoss) {
			return models.OutcomeFailed
		}
	}
	return models.OutcomeActive
}

// complete removes the entry and updates counters. Caller holds the lock.
func (t *Tracker) complete(ts *models.TrackedSignal, outcome models.Outcome, price decimal.Decimal, now time.Time) models.Resolution {
	delete(t.active, ts.Signal.ID)
	switch outcome {
	case models.OutcomeSuccess:
		t.stats.Success++
	case models.OutcomeFailed:
		t.stats.Failed++
	case models.OutcomeExpired:
		t.stats.Expired++
	}
	return models.Resolution{
		Signal:        ts.Signal,
		Outcome:       outcome,
		FinalPrice:    price,
		ProfitPercent: ProfitPercent(ts.Signal, price),
		Duration:      now.Sub(ts.StartedAt),
		ResolvedAt:    now,
	}
}

func (t *Tracker) emit(listeners []Listener, out []models.Resolution) {
	for _, r := range out {
		if t.lgr != nil {
			t.lgr.Info("Signal resolved",
				logger.Int64("signal_id", r.Signal.ID),
				logger.String("instrument", r.Signal.Instrument.ID),
				logger.String("strategy", r.Signal.Strategy),
				logger.String("outcome", string(r.Outcome)),
				logger.String("final_price", r.FinalPrice.StringFixed(models.PriceScale)),
				logger.String("profit_percent", r.ProfitPercent.StringFixed(4)),
				logger.Duration("duration_ms", r.Duration))
		}
		for _, l := range listeners {
			l(r)
		}
	}
}

// ProfitPercent is the signed move from entry in the signal direction, 4 decimals.
func ProfitPercent(sig models.Signal, price decimal.Decimal) decimal.Decimal {
	if sig.Entry.IsZero() {
		return decimal.Zero
	}
	pct := price.Sub(sig.Entry).Div(sig.Entry).Mul(hundred)
	if sig.Direction == models.Sell {
		pct = pct.Neg()
	}
	return pct.Round(4)
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() models.TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Active = len(t.active)
	return s
}

// Reset clears counters. Active signals stay tracked.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.stats = models.TrackerStats{}
	t.mu.Unlock()
}

// Len returns the number of active signals.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Active returns active signals for an instrument, or all when instrumentID is empty.
func (t *Tracker) Active(instrumentID string) []models.TrackedSignal {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.TrackedSignal
	for _, id := range t.sortedIDs() {
		ts := t.active[id]
		if instrumentID == "" || ts.Signal.Instrument.ID == instrumentID {
			out = append(out, *ts)
		}
	}
	return out
}
