package pool

import (
	"github.com/shopspring/decimal"
)

// SharePool tracks a pooled balance in proportional shares so that pooled
// yield or loss is distributed without per-depositor bookkeeping.
type SharePool struct {
	Shares  decimal.Decimal
	Balance decimal.Decimal
}

// NewSharePool returns an empty pool (1 share = 1 unit until the first deposit).
func NewSharePool() SharePool {
	return SharePool{Shares: decimal.Zero, Balance: decimal.Zero}
}

// SharesToAmount converts shares to the underlying amount at the current pool
// price. Empty pool converts 1:1. roundUp rounds in favor of the holder; the
// default rounds down (toward the pool).
func (p SharePool) SharesToAmount(shares decimal.Decimal, roundUp bool) decimal.Decimal {
	if p.Shares.IsZero() {
		return shares
	}
	num := shares.Mul(p.Balance)
	if roundUp {
		return divRoundUp(num, p.Shares)
	}
	return divRoundDown(num, p.Shares)
}

// AmountToShares converts an amount to pool shares at the current pool price.
// Empty pool converts 1:1. roundUp rounds the minted share count up, used when
// shares represent an obligation (debt) so the pool never under-records it.
func (p SharePool) AmountToShares(amount decimal.Decimal, roundUp bool) decimal.Decimal {
	if p.Balance.IsZero() {
		return amount
	}
	num := amount.Mul(p.Shares)
	if roundUp {
		return divRoundUp(num, p.Balance)
	}
	return divRoundDown(num, p.Balance)
}

// Deposit adds shares and the matching amount to the pool.
func (p *SharePool) Deposit(shares, amount decimal.Decimal) {
	p.Shares = p.Shares.Add(shares)
	p.Balance = p.Balance.Add(amount)
}

// Withdraw removes shares and the matching amount from the pool.
func (p *SharePool) Withdraw(shares, amount decimal.Decimal) {
	p.Shares = p.Shares.Sub(shares)
	p.Balance = p.Balance.Sub(amount)
}

// AmountPlaces is the decimal precision carried by all amount and share math.
const AmountPlaces = 12

func divRoundUp(num, den decimal.Decimal) decimal.Decimal {
	q := num.DivRound(den, AmountPlaces+2)
	return q.RoundUp(AmountPlaces)
}

func divRoundDown(num, den decimal.Decimal) decimal.Decimal {
	q := num.DivRound(den, AmountPlaces+2)
	return q.RoundDown(AmountPlaces)
}
