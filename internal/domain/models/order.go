package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderIntent is the request to act on an accepted signal.
type OrderIntent struct {
	OrderID      string          `json:"order_id"`
	InstrumentID string          `json:"instrument_id"`
	Kind         InstrumentKind  `json:"kind"`
	Direction    Direction       `json:"direction"`
	Lots         int64           `json:"lots"`
	CloseLots    int64           `json:"close_lots"`
	StopPrice    decimal.Decimal `json:"stop_price"`
	SignalID     int64           `json:"signal_id"`
	Strategy     string          `json:"strategy"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MarketOrderRequest places a market order. OrderID is the idempotency key.
type MarketOrderRequest struct {
	OrderID      string    `json:"order_id"`
	InstrumentID string    `json:"instrument_id"`
	Direction    Direction `json:"direction"`
	Lots         int64     `json:"lots"`
}

// StopOrderRequest places a protective stop-loss order.
type StopOrderRequest struct {
	OrderID      string          `json:"order_id"`
	InstrumentID string          `json:"instrument_id"`
	Direction    Direction       `json:"direction"`
	Lots         int64           `json:"lots"`
	StopPrice    decimal.Decimal `json:"stop_price"`
}

type ExecutionStatus string

const (
	StatusFill     ExecutionStatus = "FILL"
	StatusPartial  ExecutionStatus = "PARTIAL"
	StatusNew      ExecutionStatus = "NEW"
	StatusRejected ExecutionStatus = "REJECTED"
)

// OrderResult is the broker answer to an order request.
type OrderResult struct {
	OrderID       string          `json:"order_id"`
	BrokerOrderID string          `json:"broker_order_id"`
	Status        ExecutionStatus `json:"status"`
	FilledLots    int64           `json:"filled_lots"`
	Price         decimal.Decimal `json:"price"`
	Message       string          `json:"message,omitempty"`
}
