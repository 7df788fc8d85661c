package pool

import (
	"github.com/shopspring/decimal"
)

// Account holds a user's general (non-margin) supply shares per asset.
// Margin positions are tracked separately by the position store.
type Account struct {
	ID       string
	Supplied map[string]decimal.Decimal
}

// NewAccount returns an account with no supply.
func NewAccount(id string) *Account {
	return &Account{ID: id, Supplied: make(map[string]decimal.Decimal)}
}

// SupplyShares returns the account's supply share balance for an asset.
func (ac *Account) SupplyShares(asset string) decimal.Decimal {
	if s, ok := ac.Supplied[asset]; ok {
		return s
	}
	return decimal.Zero
}

// DepositSupplyShares credits supply shares to the account.
func (ac *Account) DepositSupplyShares(asset string, shares decimal.Decimal) {
	ac.Supplied[asset] = ac.SupplyShares(asset).Add(shares)
}

// WithdrawSupplyShares debits supply shares from the account. Fails with
// ErrInsufficientSupply when the balance is short; a balance drained to zero
// is removed from the map.
func (ac *Account) WithdrawSupplyShares(asset string, shares decimal.Decimal) error {
	held := ac.SupplyShares(asset)
	if held.LessThan(shares) {
		return ErrInsufficientSupply
	}
	rest := held.Sub(shares)
	if rest.IsZero() {
		delete(ac.Supplied, asset)
	} else {
		ac.Supplied[asset] = rest
	}
	return nil
}
