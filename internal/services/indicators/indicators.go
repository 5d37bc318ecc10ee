package indicators

import (
	"github.com/markcheno/go-talib"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
)

// Float views of bars feed the gating indicators below. They only decide
// whether a signal fires; price levels come from the decimal indicators in
// levels.go.

// Closes returns close prices as float64.
func Closes(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}

// OHLCV holds float views of bar fields used by range and volume indicators.
type OHLCV struct {
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Split returns float64 columns for the given bars.
func Split(bars []models.Bar) OHLCV {
	n := len(bars)
	s := OHLCV{
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, b := range bars {
		s.High[i] = b.High.InexactFloat64()
		s.Low[i] = b.Low.InexactFloat64()
		s.Close[i] = b.Close.InexactFloat64()
		s.Volume[i] = b.Volume.InexactFloat64()
	}
	return s
}

// RSI is Wilder's relative strength index. Values before index n are zero.
// A window without any movement reads 0. It returns nil for n < 2 or when
// there are not more than n closes.
func RSI(closes []float64, n int) []float64 {
	if n < 2 || len(closes) <= n {
		return nil
	}
	return talib.Rsi(closes, n)
}

// ADX is the average directional index. The first 2n-1 values are zero and it
// returns nil when fewer than 2n bars are given.
func ADX(s OHLCV, n int) []float64 {
	if n < 2 || len(s.Close) < 2*n {
		return nil
	}
	return talib.Adx(s.High, s.Low, s.Close, n)
}

// StdDev is the population standard deviation over a trailing window of n values.
func StdDev(values []float64, n int) []float64 {
	if n < 2 || len(values) < n {
		return nil
	}
	return talib.StdDev(values, n, 1)
}

// VWAP is the volume weighted typical price over a trailing window of n bars.
// A window with no volume falls back to the last close.
func VWAP(s OHLCV, n int) []float64 {
	size := len(s.Close)
	if size == 0 || n <= 0 {
		return nil
	}
	out := make([]float64, size)
	for i := range out {
		var pv, vol float64
		for j := max(i-n+1, 0); j <= i; j++ {
			typical := (s.High[j] + s.Low[j] + s.Close[j]) / 3
			pv += typical * s.Volume[j]
			vol += s.Volume[j]
		}
		if vol == 0 {
			out[i] = s.Close[i]
			continue
		}
		out[i] = pv / vol
	}
	return out
}

// Last returns the final element, or the zero value for an empty slice.
func Last[T any](values []T) T {
	var zero T
	if len(values) == 0 {
		return zero
	}
	return values[len(values)-1]
}

// Prev returns the element before the final one, or the zero value when absent.
func Prev[T any](values []T) T {
	var zero T
	if len(values) < 2 {
		return zero
	}
	return values[len(values)-2]
}
