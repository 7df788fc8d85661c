package pool

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// ErrUnknownAsset is returned when an operation names an asset the ledger was
// not seeded with.
var ErrUnknownAsset = errors.New("unknown asset")

// Ledger owns all asset aggregates and accounts. It is the single mutable
// registry for pool state; the settlement engine serializes access to it.
type Ledger struct {
	assets   map[string]*Asset
	accounts map[string]*Account
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		assets:   make(map[string]*Asset),
		accounts: make(map[string]*Account),
	}
}

// AddAsset registers an asset aggregate. Later registrations for the same
// symbol replace the earlier one.
func (l *Ledger) AddAsset(a *Asset) {
	l.assets[a.Symbol] = a
}

// Asset looks up an asset aggregate by symbol.
func (l *Ledger) Asset(symbol string) (*Asset, error) {
	a, ok := l.assets[symbol]
	if !ok {
		return nil, ErrUnknownAsset
	}
	return a, nil
}

// Account returns the account for id, creating it on first use.
func (l *Ledger) Account(id string) *Account {
	ac, ok := l.accounts[id]
	if !ok {
		ac = NewAccount(id)
		l.accounts[id] = ac
	}
	return ac
}

// Accounts returns all accounts, sorted by id.
func (l *Ledger) Accounts() []*Account {
	ids := make([]string, 0, len(l.accounts))
	for id := range l.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.accounts[id])
	}
	return out
}

// AssetSymbols returns the registered symbols in sorted order.
func (l *Ledger) AssetSymbols() []string {
	symbols := make([]string, 0, len(l.assets))
	for s := range l.assets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// DepositSupply moves an external amount into an account's general supply:
// shares are minted against the supplied pool (rounding down) and credited to
// the account.
func (l *Ledger) DepositSupply(accountID, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	a, err := l.Asset(asset)
	if err != nil {
		return decimal.Zero, err
	}
	shares := a.Supplied.AmountToShares(amount, false)
	a.Supplied.Deposit(shares, amount)
	l.Account(accountID).DepositSupplyShares(asset, shares)
	return shares, nil
}

// WithdrawSupply moves shares out of an account's general supply back to an
// external amount.
func (l *Ledger) WithdrawSupply(accountID, asset string, shares decimal.Decimal) (decimal.Decimal, error) {
	a, err := l.Asset(asset)
	if err != nil {
		return decimal.Zero, err
	}
	if err := l.Account(accountID).WithdrawSupplyShares(asset, shares); err != nil {
		return decimal.Zero, err
	}
	amount := a.Supplied.SharesToAmount(shares, false)
	a.Supplied.Withdraw(shares, amount)
	return amount, nil
}
