package repository

import "time"

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// Duration returns the bar length of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF5m:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

// TimeframeFor maps a bar duration to the closest supported timeframe.
func TimeframeFor(d time.Duration) Timeframe {
	switch {
	case d <= time.Second:
		return TF1s
	case d >= 5*time.Minute:
		return TF5m
	default:
		return TF1m
	}
}
