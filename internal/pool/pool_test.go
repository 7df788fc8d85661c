package pool_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"MarginPool/internal/pool"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================================
// Test: SharePool conversions
// ============================================================================

func TestSharePool_EmptyPoolConvertsOneToOne(t *testing.T) {
	p := pool.NewSharePool()

	if got := p.SharesToAmount(dec("123.45"), false); !got.Equal(dec("123.45")) {
		t.Errorf("SharesToAmount on empty pool: got %s, want 123.45", got)
	}
	if got := p.AmountToShares(dec("678.9"), true); !got.Equal(dec("678.9")) {
		t.Errorf("AmountToShares on empty pool: got %s, want 678.9", got)
	}
}

func TestSharePool_ProRataAfterYield(t *testing.T) {
	p := pool.NewSharePool()
	p.Deposit(dec("100"), dec("100"))

	// Pool accrues yield: balance grows, shares do not.
	p.Balance = p.Balance.Add(dec("50"))

	if got := p.SharesToAmount(dec("10"), false); !got.Equal(dec("15")) {
		t.Errorf("SharesToAmount after yield: got %s, want 15", got)
	}
	// 15 units now buys 10 shares.
	if got := p.AmountToShares(dec("15"), false); !got.Equal(dec("10")) {
		t.Errorf("AmountToShares after yield: got %s, want 10", got)
	}
}

func TestSharePool_RoundingDirection(t *testing.T) {
	p := pool.NewSharePool()
	p.Deposit(dec("3"), dec("10"))

	// 1 share * 10 / 3 = 3.333... Truncated down vs rounded up must differ
	// at the last carried decimal place.
	down := p.SharesToAmount(dec("1"), false)
	up := p.SharesToAmount(dec("1"), true)

	if !up.GreaterThan(down) {
		t.Fatalf("round up %s should exceed round down %s", up, down)
	}
	if got := up.Sub(down); !got.Equal(dec("0.000000000001")) {
		t.Errorf("rounding gap: got %s, want one unit in the last place", got)
	}
}

func TestSharePool_DebtSharesNeverUnderRecorded(t *testing.T) {
	p := pool.NewSharePool()
	p.Deposit(dec("7"), dec("10"))

	// Minting shares for a debt amount rounds up: converting the minted
	// shares back must cover at least the original amount.
	amount := dec("1")
	shares := p.AmountToShares(amount, true)
	back := p.SharesToAmount(shares, false)
	if back.LessThan(amount.Sub(dec("0.000000000002"))) {
		t.Errorf("round-trip of debt shares lost value: %s -> %s -> %s", amount, shares, back)
	}
	if shares.LessThan(p.AmountToShares(amount, false)) {
		t.Errorf("rounded-up shares %s below rounded-down %s", shares, p.AmountToShares(amount, false))
	}
}

// ============================================================================
// Test: Asset liquidity and pending debt
// ============================================================================

func TestAsset_AvailableAmount(t *testing.T) {
	a := pool.NewAsset("usdt", dec("0.95"))
	a.Supplied.Deposit(dec("1000"), dec("1000"))
	a.Reserved = dec("100")
	a.ProtocolFee = dec("10")
	a.Borrowed.Deposit(dec("200"), dec("200"))
	a.MarginDebt.Deposit(dec("50"), dec("50"))
	a.PendingDebt = dec("30")

	// 1000 + 100 + 10 - 200 - 50 - 30
	if got := a.AvailableAmount(); !got.Equal(dec("830")) {
		t.Errorf("available: got %s, want 830", got)
	}
}

func TestAsset_ReservePendingDebt_WithinCap(t *testing.T) {
	a := pool.NewAsset("near", dec("0.75"))
	a.Supplied.Deposit(dec("600"), dec("600"))

	// pending=100, available after = 500; 100*5 = 500 is NOT strictly below.
	if err := a.ReservePendingDebt(dec("100")); !errors.Is(err, pool.ErrCapacityExceeded) {
		t.Fatalf("reserve at the boundary: got %v, want ErrCapacityExceeded", err)
	}
	if !a.PendingDebt.IsZero() {
		t.Errorf("rejected reservation must not stick: pending=%s", a.PendingDebt)
	}

	// pending=99, available after = 501; 99*5 = 495 < 501.
	if err := a.ReservePendingDebt(dec("99")); err != nil {
		t.Fatalf("reserve below the boundary: %v", err)
	}
	if !a.PendingDebt.Equal(dec("99")) {
		t.Errorf("pending: got %s, want 99", a.PendingDebt)
	}
}

func TestAsset_ReservePendingDebt_Cumulative(t *testing.T) {
	a := pool.NewAsset("usdt", dec("0.95"))
	a.Supplied.Deposit(dec("6000"), dec("6000"))

	if err := a.ReservePendingDebt(dec("500")); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	// Second reservation is judged on the combined pending debt.
	if err := a.ReservePendingDebt(dec("600")); !errors.Is(err, pool.ErrCapacityExceeded) {
		t.Fatalf("second reserve past cap: got %v, want ErrCapacityExceeded", err)
	}
	if !a.PendingDebt.Equal(dec("500")) {
		t.Errorf("pending after rejection: got %s, want 500", a.PendingDebt)
	}
}

func TestAsset_CanReservePendingDebt_DoesNotMutate(t *testing.T) {
	a := pool.NewAsset("usdt", dec("0.95"))
	a.Supplied.Deposit(dec("6000"), dec("6000"))

	if !a.CanReservePendingDebt(dec("500")) {
		t.Fatal("500 against 6000 supplied should be reservable")
	}
	if !a.PendingDebt.IsZero() {
		t.Errorf("dry run mutated pending debt: %s", a.PendingDebt)
	}
	if a.CanReservePendingDebt(dec("1000")) {
		t.Error("1000 against 6000 supplied should exceed the cap")
	}
}

func TestAsset_CommitDebt(t *testing.T) {
	a := pool.NewAsset("near", dec("0.75"))
	a.Supplied.Deposit(dec("6000"), dec("6000"))

	if err := a.ReservePendingDebt(dec("500")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	shares := a.CommitDebt(dec("500"))

	if !a.PendingDebt.IsZero() {
		t.Errorf("pending after commit: got %s, want 0", a.PendingDebt)
	}
	if !a.MarginDebt.Balance.Equal(dec("500")) {
		t.Errorf("margin debt balance: got %s, want 500", a.MarginDebt.Balance)
	}
	if !shares.Equal(dec("500")) {
		t.Errorf("first commit into empty debt pool: got %s shares, want 500", shares)
	}

	// Available liquidity is unchanged by commit: the same 500 moves from
	// pending_debt to margin_debt.
	if got := a.AvailableAmount(); !got.Equal(dec("5500")) {
		t.Errorf("available after commit: got %s, want 5500", got)
	}
}

func TestAsset_ReleasePendingDebt(t *testing.T) {
	a := pool.NewAsset("usdt", dec("0.95"))
	a.Supplied.Deposit(dec("6000"), dec("6000"))

	if err := a.ReservePendingDebt(dec("300")); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	a.ReleasePendingDebt(dec("300"))
	if !a.PendingDebt.IsZero() {
		t.Errorf("pending after release: got %s, want 0", a.PendingDebt)
	}
}

// ============================================================================
// Test: Ledger supply accounting
// ============================================================================

func TestLedger_DepositWithdrawSupply(t *testing.T) {
	led := pool.NewLedger()
	led.AddAsset(pool.NewAsset("usdt", dec("0.95")))

	shares, err := led.DepositSupply("alice", "usdt", dec("1000"))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !shares.Equal(dec("1000")) {
		t.Errorf("first deposit shares: got %s, want 1000", shares)
	}

	acct := led.Account("alice")
	if got := acct.SupplyShares("usdt"); !got.Equal(dec("1000")) {
		t.Errorf("account shares: got %s, want 1000", got)
	}

	amount, err := led.WithdrawSupply("alice", "usdt", dec("400"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !amount.Equal(dec("400")) {
		t.Errorf("withdraw amount: got %s, want 400", amount)
	}
	if got := acct.SupplyShares("usdt"); !got.Equal(dec("600")) {
		t.Errorf("remaining shares: got %s, want 600", got)
	}

	asset, err := led.Asset("usdt")
	if err != nil {
		t.Fatalf("asset: %v", err)
	}
	if !asset.Supplied.Balance.Equal(dec("600")) {
		t.Errorf("pool balance: got %s, want 600", asset.Supplied.Balance)
	}
}

func TestLedger_WithdrawSupply_Insufficient(t *testing.T) {
	led := pool.NewLedger()
	led.AddAsset(pool.NewAsset("usdt", dec("0.95")))

	if _, err := led.DepositSupply("bob", "usdt", dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.WithdrawSupply("bob", "usdt", dec("101")); !errors.Is(err, pool.ErrInsufficientSupply) {
		t.Errorf("overdraw: got %v, want ErrInsufficientSupply", err)
	}
}

func TestLedger_UnknownAsset(t *testing.T) {
	led := pool.NewLedger()
	if _, err := led.DepositSupply("carol", "doge", dec("1")); !errors.Is(err, pool.ErrUnknownAsset) {
		t.Errorf("unknown asset deposit: got %v, want ErrUnknownAsset", err)
	}
	if _, err := led.Asset("doge"); !errors.Is(err, pool.ErrUnknownAsset) {
		t.Errorf("unknown asset lookup: got %v, want ErrUnknownAsset", err)
	}
}
