package pool

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrCapacityExceeded is returned when a pending-debt reservation would
	// push in-flight borrowing past the allowed share of available liquidity.
	ErrCapacityExceeded = errors.New("pending debt capacity exceeded")

	// ErrInsufficientSupply is returned when an account withdraws more supply
	// shares than it holds.
	ErrInsufficientSupply = errors.New("insufficient supply balance")
)

// Asset is the per-asset ledger aggregate: the three share pools plus the
// scalar balances that sit outside them.
type Asset struct {
	Symbol string

	Supplied   SharePool
	Borrowed   SharePool
	MarginDebt SharePool

	Reserved    decimal.Decimal
	ProtocolFee decimal.Decimal

	// PendingDebt reserves pool capacity for borrows whose external
	// settlement has not yet been confirmed.
	PendingDebt decimal.Decimal

	// MarginPosition is the aggregate exposure held as this asset across all
	// open positions.
	MarginPosition decimal.Decimal

	// FluctuationRate in (0,1]: collateral haircut / debt markup factor.
	FluctuationRate decimal.Decimal
}

// NewAsset returns an asset with empty pools and the given fluctuation rate.
func NewAsset(symbol string, fluctuationRate decimal.Decimal) *Asset {
	return &Asset{
		Symbol:          symbol,
		Supplied:        NewSharePool(),
		Borrowed:        NewSharePool(),
		MarginDebt:      NewSharePool(),
		Reserved:        decimal.Zero,
		ProtocolFee:     decimal.Zero,
		PendingDebt:     decimal.Zero,
		MarginPosition:  decimal.Zero,
		FluctuationRate: fluctuationRate,
	}
}

// AvailableAmount is the liquidity the ledger may still lend out:
// supplied + reserved + protocol_fee - borrowed - margin_debt - pending_debt.
func (a *Asset) AvailableAmount() decimal.Decimal {
	return a.Supplied.Balance.
		Add(a.Reserved).
		Add(a.ProtocolFee).
		Sub(a.Borrowed.Balance).
		Sub(a.MarginDebt.Balance).
		Sub(a.PendingDebt)
}

// PendingDebtCapacityFactor caps in-flight pending debt at 1/factor of
// available liquidity (factor 5 = 20%).
const PendingDebtCapacityFactor = 5

// ReservePendingDebt reserves borrow capacity for an outstanding external
// trade. After the reservation, pending_debt * factor must stay strictly
// below available liquidity, or the reservation is rejected whole.
func (a *Asset) ReservePendingDebt(amount decimal.Decimal) error {
	pending := a.PendingDebt.Add(amount)
	available := a.Supplied.Balance.
		Add(a.Reserved).
		Add(a.ProtocolFee).
		Sub(a.Borrowed.Balance).
		Sub(a.MarginDebt.Balance).
		Sub(pending)
	factor := decimal.NewFromInt(PendingDebtCapacityFactor)
	if pending.Mul(factor).GreaterThanOrEqual(available) {
		return ErrCapacityExceeded
	}
	a.PendingDebt = pending
	return nil
}

// CanReservePendingDebt reports whether ReservePendingDebt would succeed,
// without mutating the asset. Used by the validation phase.
func (a *Asset) CanReservePendingDebt(amount decimal.Decimal) bool {
	snapshot := *a
	return snapshot.ReservePendingDebt(amount) == nil
}

// ReleasePendingDebt returns reserved capacity after a failed external trade.
func (a *Asset) ReleasePendingDebt(amount decimal.Decimal) {
	a.PendingDebt = a.PendingDebt.Sub(amount)
}

// CommitDebt converts a pending-debt reservation into real margin-debt pool
// shares and balance, releasing the reservation. The reserved amount is the
// amount that entered the margin-debt pool; shares are minted rounding up so
// the obligation is never under-recorded.
func (a *Asset) CommitDebt(reserved decimal.Decimal) decimal.Decimal {
	shares := a.MarginDebt.AmountToShares(reserved, true)
	a.MarginDebt.Deposit(shares, reserved)
	a.PendingDebt = a.PendingDebt.Sub(reserved)
	return shares
}

// RepayDebt burns margin-debt shares against the repaid amount.
func (a *Asset) RepayDebt(shares, amount decimal.Decimal) {
	a.MarginDebt.Withdraw(shares, amount)
}

// AddPositionExposure credits the aggregate margin-position exposure.
func (a *Asset) AddPositionExposure(amount decimal.Decimal) {
	a.MarginPosition = a.MarginPosition.Add(amount)
}

// SubPositionExposure debits the aggregate margin-position exposure.
func (a *Asset) SubPositionExposure(amount decimal.Decimal) {
	a.MarginPosition = a.MarginPosition.Sub(amount)
}
