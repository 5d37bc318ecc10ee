package service

import "github.com/trickingegg/golden-dragon/internal/domain/models"

// Evaluator turns a bar series snapshot into a signal. It must be pure:
// the same bars always yield the same signal, and bars must not be modified.
type Evaluator interface {
	Name() string
	// WarmupPeriod is the number of bars below which Evaluate returns HOLD.
	WarmupPeriod() int
	Evaluate(inst models.Instrument, bars []models.Bar) models.Signal
}

