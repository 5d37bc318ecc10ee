package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeActive  Outcome = "ACTIVE"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeExpired Outcome = "EXPIRED"
)

// IsTerminal reports whether the outcome ends tracking.
func (o Outcome) IsTerminal() bool { return o != OutcomeActive && o != "" }

// TrackedSignal is an accepted signal whose outcome is not yet decided.
type TrackedSignal struct {
	Signal    Signal          `json:"signal"`
	StartedAt time.Time       `json:"started_at"`
	LastPrice decimal.Decimal `json:"last_price"`
}

// Resolution is emitted once when a tracked signal reaches a terminal outcome.
type Resolution struct {
	Signal        Signal          `json:"signal"`
	Outcome       Outcome         `json:"outcome"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
	Duration      time.Duration   `json:"duration"`
	ResolvedAt    time.Time       `json:"resolved_at"`
}

// TrackerStats are the lifetime counters of the outcome tracker.
type TrackerStats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Expired int64 `json:"expired"`
	Active  int   `json:"active"`
}

// SuccessRate is success / (success + failed) in percent, zero without closed signals.
func (s TrackerStats) SuccessRate() float64 {
	closed := s.Success + s.Failed
	if closed == 0 {
		return 0
	}
	return float64(s.Success) / float64(closed) * 100
}

// SignalEvent is published for accepted and resolved signals.
type SignalEvent struct {
	Type       string      `json:"type"`
	Signal     Signal      `json:"signal"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Lots       int64       `json:"lots,omitempty"`
	At         time.Time   `json:"at"`
}

const (
	EventSignalAccepted = "signal.accepted"
	EventSignalResolved = "signal.resolved"
)
