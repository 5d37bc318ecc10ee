package models

import "github.com/shopspring/decimal"

// RejectCode classifies why the risk validator refused a signal.
type RejectCode string

const (
	RejectNone               RejectCode = ""
	RejectNotActionable      RejectCode = "not_actionable"
	RejectLowScore           RejectCode = "low_score"
	RejectMissingLevels      RejectCode = "missing_levels"
	RejectNoPortfolio        RejectCode = "no_portfolio"
	RejectRewardRisk         RejectCode = "reward_risk"
	RejectConcentration      RejectCode = "concentration"
	RejectMicroStop          RejectCode = "micro_stop"
	RejectNoCapital          RejectCode = "no_capital"
	RejectStopTooClose       RejectCode = "stop_too_close"
	RejectZeroSize           RejectCode = "zero_size"
	RejectInsufficientFunds  RejectCode = "insufficient_funds"
	RejectBelowMinimum       RejectCode = "below_minimum"
	RejectInsufficientMargin RejectCode = "insufficient_margin"
	RejectMarginLookup       RejectCode = "margin_lookup"
)

// ValidationResult is the outcome of risk validation. Lots = CloseLots + OpenLots.
type ValidationResult struct {
	Valid       bool            `json:"valid"`
	Code        RejectCode      `json:"code,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Lots        int64           `json:"lots"`
	CloseLots   int64           `json:"close_lots"`
	OpenLots    int64           `json:"open_lots"`
	Notional    decimal.Decimal `json:"notional"`
	Percent     decimal.Decimal `json:"percent"`
	RiskAmount  decimal.Decimal `json:"risk_amount"`
	RewardRisk  decimal.Decimal `json:"reward_risk"`
	MarginTotal decimal.Decimal `json:"margin_total"`
}

// Reject builds an invalid result.
func Reject(code RejectCode, reason string) ValidationResult {
	return ValidationResult{Code: code, Reason: reason}
}
