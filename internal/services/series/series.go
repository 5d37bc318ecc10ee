package series

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

// Applied reports what happened to an incoming bar event.
type Applied int

const (
	Appended Applied = iota
	Amended
	Discarded
)

func (a Applied) String() string {
	switch a {
	case Appended:
		return "appended"
	case Amended:
		return "amended"
	default:
		return "discarded"
	}
}

// Series is an append-mostly bar sequence for one instrument.
// Writers go through Apply/ApplyTick; readers take snapshots.
type Series struct {
	mu       sync.RWMutex
	bars     []models.Bar
	duration time.Duration
	maxBars  int
}

// Option configures a Series.
type Option func(*Series)

// WithMaxBars bounds memory by dropping the oldest bars once the limit is reached.
func WithMaxBars(n int) Option {
	return func(s *Series) {
		if n > 0 {
			s.maxBars = n
		}
	}
}

// New creates an empty series of fixed-duration bars.
func New(duration time.Duration, opts ...Option) *Series {
	s := &Series{duration: duration}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration returns the bar period.
func (s *Series) Duration() time.Duration { return s.duration }

// Apply appends the bar when its end time is after the last bar, replaces the last
// bar when the end times are equal, and discards it otherwise.
func (s *Series) Apply(bar models.Bar) (Applied, error) {
	if err := validate(bar); err != nil {
		return Discarded, err
	}
	if bar.Duration <= 0 {
		bar.Duration = s.duration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.bars)
	if n == 0 || bar.EndTime.After(s.bars[n-1].EndTime) {
		s.append(bar)
		return Appended, nil
	}
	if bar.EndTime.Equal(s.bars[n-1].EndTime) {
		s.bars[n-1] = bar
		return Amended, nil
	}
	return Discarded, nil
}

// ApplyTick folds a trade into the bar whose period contains the tick time.
func (s *Series) ApplyTick(tick models.Tick) (Applied, error) {
	if !tick.Price.IsPositive() {
		return Discarded, fmt.Errorf("tick price must be positive, got %s", tick.Price)
	}
	if s.duration <= 0 {
		return Discarded, fmt.Errorf("series has no bar duration")
	}
	end := tick.Time.Truncate(s.duration).Add(s.duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.bars)
	if n > 0 && end.Equal(s.bars[n-1].EndTime) {
		last := &s.bars[n-1]
		last.High = decimal.Max(last.High, tick.Price)
		last.Low = decimal.Min(last.Low, tick.Price)
		last.Close = tick.Price
		last.Volume = last.Volume.Add(tick.Volume)
		return Amended, nil
	}
	if n > 0 && !end.After(s.bars[n-1].EndTime) {
		return Discarded, nil
	}
	s.append(models.Bar{
		EndTime:  end,
		Duration: s.duration,
		Open:     tick.Price,
		High:     tick.Price,
		Low:      tick.Price,
		Close:    tick.Price,
		Volume:   tick.Volume,
	})
	return Appended, nil
}

func (s *Series) append(bar models.Bar) {
	s.bars = append(s.bars, bar)
	if s.maxBars > 0 && len(s.bars) > s.maxBars {
		drop := len(s.bars) - s.maxBars
		copy(s.bars, s.bars[drop:])
		s.bars = s.bars[:s.maxBars]
	}
}

// Snapshot returns a copy of all bars.
func (s *Series) Snapshot() []models.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// LastN returns a copy of the latest n bars.
func (s *Series) LastN(n int) []models.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]models.Bar, n)
	copy(out, s.bars[len(s.bars)-n:])
	return out
}

// Len returns the number of bars.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// Last returns the open bar.
func (s *Series) Last() (models.Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return models.Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

func validate(b models.Bar) error {
	if b.EndTime.IsZero() {
		return fmt.Errorf("bar end time is zero")
	}
	if b.Close.IsNegative() || b.Open.IsNegative() || b.High.IsNegative() || b.Low.IsNegative() {
		return fmt.Errorf("negative price in bar ending %s", b.EndTime.Format(time.RFC3339))
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("negative volume in bar ending %s", b.EndTime.Format(time.RFC3339))
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("high %s below low %s", b.High, b.Low)
	}
	return nil
}
