package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/service"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

// defaultWarmup applies when no evaluator is registered.
const defaultWarmup = 25

// StrategyStatus describes one registered evaluator.
type StrategyStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Warmup  int    `json:"warmup"`
	Signals int64  `json:"signals"`
}

// Ensemble runs the enabled evaluators over one snapshot and reconciles their output.
type Ensemble struct {
	mu         sync.RWMutex
	evaluators []service.Evaluator
	enabled    map[string]bool
	counts     map[string]int64
	trendName  string
	filtered   map[string]bool
	lgr        *logger.Logger
}

// EnsembleOption configures an Ensemble.
type EnsembleOption func(*Ensemble)

// WithTrendFilter names the evaluator whose trend vetoes counter-trend signals
// from the listed evaluators.
func WithTrendFilter(trend string, filtered ...string) EnsembleOption {
	return func(e *Ensemble) {
		e.trendName = trend
		e.filtered = make(map[string]bool, len(filtered))
		for _, name := range filtered {
			e.filtered[name] = true
		}
	}
}

// WithEnsembleLogger sets the logger used for isolated evaluator failures.
func WithEnsembleLogger(l *logger.Logger) EnsembleOption {
	return func(e *Ensemble) { e.lgr = l }
}

// NewEnsemble registers evaluators in order. All start enabled.
func NewEnsemble(evaluators []service.Evaluator, opts ...EnsembleOption) *Ensemble {
	e := &Ensemble{
		evaluators: evaluators,
		enabled:    make(map[string]bool, len(evaluators)),
		counts:     make(map[string]int64, len(evaluators)),
	}
	for _, ev := range evaluators {
		e.enabled[ev.Name()] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultEnsemble builds the standard four-strategy ensemble with the trend filter
// applied to both mean reversion variants.
func NewDefaultEnsemble(cfg Config, opts ...EnsembleOption) *Ensemble {
	evs := []service.Evaluator{
		NewScalping(cfg.Scalping),
		NewMeanReversion(NameMeanReversionConservative, cfg.Conservative),
		NewMeanReversion(NameMeanReversionAggressive, cfg.Aggressive),
		NewAdaptiveTrend(cfg.AdaptiveTrend),
	}
	opts = append([]EnsembleOption{
		WithTrendFilter(NameAdaptiveTrend, NameMeanReversionConservative, NameMeanReversionAggressive),
	}, opts...)
	e := NewEnsemble(evs, opts...)
	if len(cfg.Enabled) > 0 {
		set := make(map[string]bool, len(cfg.Enabled))
		for _, name := range cfg.Enabled {
			set[name] = true
		}
		for _, ev := range evs {
			e.enabled[ev.Name()] = set[ev.Name()]
		}
	}
	return e
}

// EvaluateAll returns the actionable, conflict-free signals for the snapshot
// in registration order.
func (e *Ensemble) EvaluateAll(inst models.Instrument, bars []models.Bar) []models.Signal {
	e.mu.RLock()
	active := make([]service.Evaluator, 0, len(e.evaluators))
	for _, ev := range e.evaluators {
		if e.enabled[ev.Name()] {
			active = append(active, ev)
		}
	}
	trendName := e.trendName
	e.mu.RUnlock()

	trend := models.TrendSideways
	candidates := make([]models.Signal, 0, len(active))
	for _, ev := range active {
		sig, err := e.safeEvaluate(ev, inst, bars)
		if err != nil {
			if e.lgr != nil {
				e.lgr.Error("Strategy evaluation failed",
					logger.String("strategy", ev.Name()),
					logger.String("instrument", inst.ID),
					logger.Error(err))
			}
			continue
		}
		if ev.Name() == trendName && sig.Trend != "" {
			trend = sig.Trend
		}
		if sig.IsActionable() {
			candidates = append(candidates, sig)
		}
	}

	out := make([]models.Signal, 0, len(candidates))
	for _, sig := range candidates {
		if e.conflicts(sig, trend) {
			if e.lgr != nil {
				e.lgr.Debug("Signal dropped by trend filter",
					logger.String("strategy", sig.Strategy),
					logger.String("direction", string(sig.Direction)),
					logger.String("trend", string(trend)))
			}
			continue
		}
		sig.Description = fmt.Sprintf("[%s] %s", sig.Strategy, sig.Description)
		out = append(out, sig)
	}

	if len(out) > 0 {
		e.mu.Lock()
		for _, sig := range out {
			e.counts[sig.Strategy]++
		}
		e.mu.Unlock()
	}
	return out
}

func (e *Ensemble) conflicts(sig models.Signal, trend models.Trend) bool {
	if !e.filtered[sig.Strategy] {
		return false
	}
	return (sig.Direction == models.Sell && trend == models.TrendBull) ||
		(sig.Direction == models.Buy && trend == models.TrendBear)
}

func (e *Ensemble) safeEvaluate(ev service.Evaluator, inst models.Instrument, bars []models.Bar) (sig models.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator %s panicked: %v", ev.Name(), r)
		}
	}()
	return ev.Evaluate(inst, bars), nil
}

// Enable toggles a strategy by name.
func (e *Ensemble) Enable(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.enabled[name]; !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownStrategy, name)
	}
	e.enabled[name] = enabled
	return nil
}

// IsEnabled reports whether the named strategy runs.
func (e *Ensemble) IsEnabled(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled[name]
}

// Names returns registered strategy names in registration order.
func (e *Ensemble) Names() []string {
	names := make([]string, len(e.evaluators))
	for i, ev := range e.evaluators {
		names[i] = ev.Name()
	}
	return names
}

// EnabledNames returns the enabled strategy names sorted alphabetically.
func (e *Ensemble) EnabledNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	for name, on := range e.enabled {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Stats returns per-strategy status in registration order.
func (e *Ensemble) Stats() []StrategyStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]StrategyStatus, 0, len(e.evaluators))
	for _, ev := range e.evaluators {
		out = append(out, StrategyStatus{
			Name:    ev.Name(),
			Enabled: e.enabled[ev.Name()],
			Warmup:  ev.WarmupPeriod(),
			Signals: e.counts[ev.Name()],
		})
	}
	return out
}

// WarmupPeriod is the longest warm-up of all registered evaluators.
func (e *Ensemble) WarmupPeriod() int {
	if len(e.evaluators) == 0 {
		return defaultWarmup
	}
	w := 0
	for _, ev := range e.evaluators {
		w = max(w, ev.WarmupPeriod())
	}
	return w
}
