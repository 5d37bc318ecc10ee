package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/trickingegg/golden-dragon/internal/domain/models"
	"github.com/trickingegg/golden-dragon/internal/domain/repository"
	"github.com/trickingegg/golden-dragon/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

// ConcentrationCheck may veto a signal based on the portfolio composition.
type ConcentrationCheck func(sig models.Signal, portfolio *models.PortfolioSnapshot) error

// Validator decides whether a candidate signal may be traded and how many lots to use.
type Validator struct {
	riskPercent   decimal.Decimal
	minPosition   decimal.Decimal
	maxPercent    decimal.Decimal
	stopPercent   decimal.Decimal
	minStop       decimal.Decimal
	minStopRatio  decimal.Decimal
	minRewardRisk decimal.Decimal
	minScore      int

	margins       repository.MarginProvider
	concentration ConcentrationCheck
	lgr           *logger.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithConcentrationCheck installs a portfolio concentration rule.
func WithConcentrationCheck(fn ConcentrationCheck) Option {
	return func(v *Validator) { v.concentration = fn }
}

// WithLogger sets the logger used for margin warnings.
func WithLogger(l *logger.Logger) Option {
	return func(v *Validator) { v.lgr = l }
}

// NewValidator creates a validator. margins may be nil when no futures are traded.
func NewValidator(cfg Config, margins repository.MarginProvider, opts ...Option) *Validator {
	v := &Validator{
		riskPercent:   decimal.NewFromFloat(cfg.RiskPercent),
		minPosition:   decimal.NewFromFloat(cfg.MinPosition),
		maxPercent:    decimal.NewFromFloat(cfg.MaxPositionPercent),
		stopPercent:   decimal.NewFromFloat(cfg.StopDistancePercent),
		minStop:       decimal.NewFromFloat(cfg.MinStopDistance),
		minStopRatio:  decimal.NewFromFloat(cfg.MinStopRatio),
		minRewardRisk: decimal.NewFromFloat(cfg.MinRewardRisk),
		minScore:      cfg.MinScore,
		margins:       margins,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the eligibility, reward:risk, concentration, sizing and funds checks
// in order and stops at the first failure. The balance and existing position are
// taken from the portfolio using the signal's instrument.
func (v *Validator) Validate(ctx context.Context, sig models.Signal, portfolio *models.PortfolioSnapshot) models.ValidationResult {
	if r, ok := v.checkEligibility(sig); !ok {
		return r
	}
	if portfolio == nil {
		return models.Reject(models.RejectNoPortfolio, "portfolio unavailable")
	}

	rr, rrOK := v.rewardRisk(sig)
	if !rrOK {
		return withRR(models.Reject(models.RejectRewardRisk,
			fmt.Sprintf("reward:risk %s below %s", rr.StringFixed(2), v.minRewardRisk.StringFixed(2))), rr)
	}

	if v.concentration != nil {
		if err := v.concentration(sig, portfolio); err != nil {
			return withRR(models.Reject(models.RejectConcentration, err.Error()), rr)
		}
	}

	microStop := sig.Entry.Mul(v.stopPercent).Div(hundred).Round(8)
	if microStop.LessThan(v.minStop) {
		return withRR(models.Reject(models.RejectMicroStop,
			fmt.Sprintf("stop distance %s below minimum %s", microStop, v.minStop)), rr)
	}

	capital := portfolio.Capital()
	balance := portfolio.Balance(sig.Instrument.Currency)
	position := portfolio.Position(sig.Instrument.ID)

	res := v.size(sig, capital, balance, position)
	res.RewardRisk = rr
	if !res.Valid {
		return res
	}
	if res.OpenLots == 0 {
		return res
	}
	return v.checkFunds(ctx, sig, balance, res)
}

func withRR(r models.ValidationResult, rr decimal.Decimal) models.ValidationResult {
	r.RewardRisk = rr
	return r
}

func (v *Validator) checkEligibility(sig models.Signal) (models.ValidationResult, bool) {
	switch {
	case !sig.IsActionable():
		return models.Reject(models.RejectNotActionable, "signal is not actionable"), false
	case sig.Score < v.minScore:
		return models.Reject(models.RejectLowScore,
			fmt.Sprintf("score %d below minimum %d", sig.Score, v.minScore)), false
	case !sig.HasLevels():
		return models.Reject(models.RejectMissingLevels, "entry or stop price missing"), false
	}
	return models.ValidationResult{}, true
}

// rewardRisk returns the ratio rounded for reporting and whether it meets the minimum.
// The comparison itself is exact.
func (v *Validator) rewardRisk(sig models.Signal) (decimal.Decimal, bool) {
	risk := sig.StopDistance()
	reward := sig.RewardDistance()
	if risk.IsZero() || reward.IsZero() {
		return decimal.Zero, false
	}
	ratio := reward.Div(risk).Round(2)
	return ratio, reward.GreaterThanOrEqual(risk.Mul(v.minRewardRisk))
}

func (v *Validator) size(sig models.Signal, capital, balance decimal.Decimal, position *models.Position) models.ValidationResult {
	if !capital.IsPositive() {
		return models.Reject(models.RejectNoCapital, fmt.Sprintf("capital %s is not positive", capital))
	}
	stopDist := sig.StopDistance()
	if stopDist.IsZero() || stopDist.LessThan(sig.Entry.Mul(v.minStopRatio)) {
		return models.Reject(models.RejectStopTooClose,
			fmt.Sprintf("stop distance %s too close to entry %s", stopDist, sig.Entry))
	}

	// A position in the signal direction is left out of sizing: the signal is
	// sized as if flat. Scaling into an existing position has no policy yet.
	var closeLots int64
	if position.Direction() == sig.Direction.Opposite() {
		closeLots = position.AbsLots()
	}

	lot := decimal.NewFromInt(sig.Instrument.Lot())
	pricePerLot := sig.Entry.Mul(lot)
	maxRisk := capital.Mul(v.riskPercent).Div(hundred).Round(2)
	open := maxRisk.Div(stopDist.Mul(lot)).Floor()

	openRes, ok := v.boundOpenLeg(open, pricePerLot, capital, balance)
	openRes.RiskAmount = maxRisk
	if !ok {
		if closeLots > 0 {
			return closeOnly(closeLots, maxRisk)
		}
		return openRes
	}
	openRes.CloseLots = closeLots
	openRes.Lots = closeLots + openRes.OpenLots
	return openRes
}

// boundOpenLeg applies the affordability cap, the minimum notional and the
// maximum capital percentage to the new-exposure lots.
func (v *Validator) boundOpenLeg(open, pricePerLot, capital, balance decimal.Decimal) (models.ValidationResult, bool) {
	if !open.IsPositive() {
		return models.Reject(models.RejectZeroSize, "risk budget buys zero lots"), false
	}
	if balance.LessThan(open.Mul(pricePerLot)) {
		open = balance.Div(pricePerLot).Floor()
		if !open.IsPositive() {
			return models.Reject(models.RejectInsufficientFunds,
				fmt.Sprintf("balance %s cannot afford one lot at %s", balance, pricePerLot)), false
		}
	}
	notional := open.Mul(pricePerLot)
	if notional.LessThan(v.minPosition) {
		return models.Reject(models.RejectBelowMinimum,
			fmt.Sprintf("notional %s below minimum %s", notional.StringFixed(2), v.minPosition)), false
	}
	pct := notional.Div(capital).Mul(hundred).Round(4)
	if pct.GreaterThan(v.maxPercent) {
		capped := capital.Mul(v.maxPercent).Div(hundred).Round(2)
		open = capped.Div(pricePerLot).Floor()
		notional = open.Mul(pricePerLot)
		if !open.IsPositive() || notional.LessThan(v.minPosition) {
			return models.Reject(models.RejectBelowMinimum,
				fmt.Sprintf("notional %s below minimum %s after %s%% cap", notional.StringFixed(2), v.minPosition, v.maxPercent)), false
		}
		pct = notional.Div(capital).Mul(hundred).Round(4)
	}
	return models.ValidationResult{
		Valid:    true,
		OpenLots: open.IntPart(),
		Notional: notional,
		Percent:  pct,
	}, true
}

func closeOnly(closeLots int64, maxRisk decimal.Decimal) models.ValidationResult {
	return models.ValidationResult{
		Valid:      true,
		Lots:       closeLots,
		CloseLots:  closeLots,
		RiskAmount: maxRisk,
		Reason:     "close only: new exposure failed sizing bounds",
	}
}

func (v *Validator) checkFunds(ctx context.Context, sig models.Signal, balance decimal.Decimal, res models.ValidationResult) models.ValidationResult {
	if sig.Instrument.Kind != models.KindFuture {
		if balance.LessThan(res.Notional) {
			return reject(res, models.RejectInsufficientFunds,
				fmt.Sprintf("balance %s below trade amount %s", balance, res.Notional.StringFixed(2)))
		}
		return res
	}

	if v.margins == nil {
		return reject(res, models.RejectMarginLookup, "no margin provider configured")
	}
	m, err := v.margins.FuturesMargin(ctx, sig.Instrument.ID)
	if err != nil {
		return reject(res, models.RejectMarginLookup, fmt.Sprintf("margin lookup failed: %v", err))
	}
	perLot := m.For(sig.Direction)
	if perLot.IsZero() {
		if v.lgr != nil {
			v.lgr.Warn("Broker reported zero margin, skipping margin check",
				logger.String("instrument", sig.Instrument.ID),
				logger.String("direction", string(sig.Direction)))
		}
		return res
	}
	required := perLot.Mul(decimal.NewFromInt(res.OpenLots))
	res.MarginTotal = required
	if balance.LessThan(required) {
		return reject(res, models.RejectInsufficientMargin,
			fmt.Sprintf("insufficient margin: required %s, available %s", required.StringFixed(2), balance.StringFixed(2)))
	}
	return res
}

func reject(res models.ValidationResult, code models.RejectCode, reason string) models.ValidationResult {
	res.Valid = false
	res.Code = code
	res.Reason = reason
	return res
}
