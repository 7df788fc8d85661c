package saga

import (
	"github.com/shopspring/decimal"

	"MarginPool/internal/position"
	"MarginPool/internal/risk"
)

// IncreaseCollateral moves supply shares from the account's general supply
// into the position's margin. Synchronous: no external trade is involved.
func (e *Engine) IncreaseCollateral(accountID, posID string, shares decimal.Decimal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.Get(accountID, posID)
	if err != nil {
		return err
	}
	if pos.Status != position.StatusRunning {
		return ErrPositionBusy
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return ErrUnreasonableAmount
	}
	if err := e.ledger.Account(accountID).WithdrawSupplyShares(pos.MarginAsset, shares); err != nil {
		return err
	}
	pos.MarginShares = pos.MarginShares.Add(shares)
	return nil
}

// DecreaseCollateral moves margin shares back to the account's general
// supply. The position must stay margined and within the risk limits after
// the withdrawal.
func (e *Engine) DecreaseCollateral(accountID, posID string, shares decimal.Decimal, prices risk.Prices) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.Get(accountID, posID)
	if err != nil {
		return err
	}
	if pos.Status != position.StatusRunning {
		return ErrPositionBusy
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return ErrUnreasonableAmount
	}
	if shares.GreaterThanOrEqual(pos.MarginShares) {
		return ErrInsufficientMargin
	}

	marginPool, err := e.ledger.Asset(pos.MarginAsset)
	if err != nil {
		return err
	}
	snap := e.snapshotOf(pos)
	snap.MarginAmount = marginPool.Supplied.SharesToAmount(pos.MarginShares.Sub(shares), false)
	if err := e.checkRisk(snap, prices); err != nil {
		return err
	}

	pos.MarginShares = pos.MarginShares.Sub(shares)
	e.ledger.Account(accountID).DepositSupplyShares(pos.MarginAsset, shares)
	return nil
}

// Health is the risk picture of a committed position at the given prices.
type Health struct {
	HealthFactor  decimal.Decimal
	LeverageRatio decimal.Decimal
	PnL           decimal.Decimal
	MarginValue   decimal.Decimal
	DebtValue     decimal.Decimal
	PositionValue decimal.Decimal
}

// PositionHealth computes the risk figures for an open position.
func (e *Engine) PositionHealth(accountID, posID string, prices risk.Prices) (Health, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.positions.Get(accountID, posID)
	if err != nil {
		return Health{}, err
	}
	snap := e.snapshotOf(pos)
	rates := e.rates()
	return Health{
		HealthFactor:  risk.HealthFactor(snap, prices, rates),
		LeverageRatio: risk.LeverageRatio(snap, prices),
		PnL:           risk.PnL(snap, prices),
		MarginValue:   risk.MarginValue(snap, prices),
		DebtValue:     risk.DebtValue(snap, prices),
		PositionValue: risk.PositionValue(snap, prices),
	}, nil
}

// AvailableLiquidity reports the lendable liquidity of an asset.
func (e *Engine) AvailableLiquidity(asset string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ledger.Asset(asset)
	if err != nil {
		return decimal.Zero, err
	}
	return a.AvailableAmount(), nil
}
