// Package risk computes the valuation and solvency figures that gate every
// position mutation. All functions are pure: they read a snapshot of amounts,
// current prices, and per-asset fluctuation rates, and never touch pool state.
package risk

import (
	"github.com/shopspring/decimal"
)

// Prices maps asset symbol to the oracle reference price.
type Prices map[string]decimal.Decimal

// Price returns the price for an asset, zero when absent.
func (p Prices) Price(asset string) decimal.Decimal {
	if v, ok := p[asset]; ok {
		return v
	}
	return decimal.Zero
}

// Rates maps asset symbol to its fluctuation rate in (0,1].
type Rates map[string]decimal.Decimal

// Rate returns the fluctuation rate for an asset, 1 when absent (no haircut).
func (r Rates) Rate(asset string) decimal.Decimal {
	if v, ok := r[asset]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

// Snapshot is the position picture the risk figures are computed over. The
// amounts are token amounts, already converted out of pool shares, so the
// same snapshot shape serves both committed positions and the hypothetical
// post-trade states checked during validation.
type Snapshot struct {
	MarginAsset   string
	DebtAsset     string
	PositionAsset string

	MarginAmount   decimal.Decimal
	DebtAmount     decimal.Decimal
	PositionAmount decimal.Decimal
}

// Sentinels stand in for the undefined ratios so division by zero never
// propagates: a position with no debt is infinitely healthy, a position with
// debt but no margin is infinitely levered.
var (
	MaxHealthFactor = decimal.New(1, 9) // 1e9
	MaxLeverage     = decimal.New(1, 9)
)

const valuePlaces = 12

// MarginValue is the margin amount at the current price.
func MarginValue(s Snapshot, prices Prices) decimal.Decimal {
	return s.MarginAmount.Mul(prices.Price(s.MarginAsset))
}

// DebtValue is the debt amount at the current price.
func DebtValue(s Snapshot, prices Prices) decimal.Decimal {
	return s.DebtAmount.Mul(prices.Price(s.DebtAsset))
}

// PositionValue is the position amount at the current price.
func PositionValue(s Snapshot, prices Prices) decimal.Decimal {
	return s.PositionAmount.Mul(prices.Price(s.PositionAsset))
}

// HealthFactor is discounted collateral over inflated debt:
// (margin_value*fr_m + position_value*fr_p) / (debt_value / fr_d).
// Collateral is marked down by its fluctuation rate and debt marked up by
// dividing through its rate, so the ratio stresses both sides at once.
func HealthFactor(s Snapshot, prices Prices, rates Rates) decimal.Decimal {
	debtValue := DebtValue(s, prices)
	if debtValue.IsZero() {
		return MaxHealthFactor
	}
	collateral := MarginValue(s, prices).Mul(rates.Rate(s.MarginAsset)).
		Add(PositionValue(s, prices).Mul(rates.Rate(s.PositionAsset)))
	stressedDebt := debtValue.DivRound(rates.Rate(s.DebtAsset), valuePlaces)
	return collateral.DivRound(stressedDebt, valuePlaces)
}

// LeverageRatio is debt value over margin value.
func LeverageRatio(s Snapshot, prices Prices) decimal.Decimal {
	debtValue := DebtValue(s, prices)
	if debtValue.IsZero() {
		return decimal.Zero
	}
	marginValue := MarginValue(s, prices)
	if marginValue.IsZero() {
		return MaxLeverage
	}
	return debtValue.DivRound(marginValue, valuePlaces)
}

// PnL is position value minus debt value.
func PnL(s Snapshot, prices Prices) decimal.Decimal {
	return PositionValue(s, prices).Sub(DebtValue(s, prices))
}
