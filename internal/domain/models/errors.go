package models

import "errors"

var (
	// ErrInsufficientData means a series is too short to evaluate. Callers treat it as HOLD.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrTransient marks feed or gateway I/O failures worth retrying on the next cycle.
	ErrTransient = errors.New("transient i/o failure")
	// ErrFatal stops the analysis task of the affected instrument.
	ErrFatal = errors.New("fatal instrument failure")
	// ErrUnknownInstrument is returned for events about instruments nobody processes.
	ErrUnknownInstrument = errors.New("unknown instrument")
	// ErrUnknownStrategy is returned when toggling a strategy that is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")
)
