package persistence_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"MarginPool/internal/persistence"
	"MarginPool/internal/pool"
	"MarginPool/internal/position"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSnapshot_CaptureApplyRoundTrip(t *testing.T) {
	led := pool.NewLedger()
	usdt := pool.NewAsset("usdt", dec("0.95"))
	usdt.Supplied.Deposit(dec("10000"), dec("10000"))
	usdt.MarginPosition = dec("1500")
	led.AddAsset(usdt)
	near := pool.NewAsset("near", dec("0.75"))
	near.Supplied.Deposit(dec("5000"), dec("5000"))
	near.MarginDebt.Deposit(dec("500"), dec("500"))
	near.PendingDebt = dec("100")
	led.AddAsset(near)
	led.Account("alice").DepositSupplyShares("usdt", dec("1000"))

	store := position.NewStore()
	if err := store.Create(&position.MarginPosition{
		ID:             "usdt|near|usdt",
		AccountID:      "alice",
		MarginAsset:    "usdt",
		MarginShares:   dec("1000"),
		DebtAsset:      "near",
		DebtShares:     dec("500"),
		PositionAsset:  "usdt",
		PositionAmount: dec("1500"),
		Status:         position.StatusRunning,
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	data := persistence.Capture(led, store)

	led2 := pool.NewLedger()
	store2 := position.NewStore()
	if err := persistence.Apply(data, led2, store2); err != nil {
		t.Fatalf("apply: %v", err)
	}

	near2, err := led2.Asset("near")
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if !near2.MarginDebt.Balance.Equal(dec("500")) {
		t.Errorf("margin debt balance: got %s, want 500", near2.MarginDebt.Balance)
	}
	if !near2.PendingDebt.Equal(dec("100")) {
		t.Errorf("pending debt: got %s, want 100", near2.PendingDebt)
	}
	if !near2.FluctuationRate.Equal(dec("0.75")) {
		t.Errorf("fluctuation rate: got %s, want 0.75", near2.FluctuationRate)
	}
	usdt2, err := led2.Asset("usdt")
	if err != nil {
		t.Fatalf("usdt: %v", err)
	}
	if !usdt2.MarginPosition.Equal(dec("1500")) {
		t.Errorf("position exposure: got %s, want 1500", usdt2.MarginPosition)
	}

	if got := led2.Account("alice").SupplyShares("usdt"); !got.Equal(dec("1000")) {
		t.Errorf("alice shares: got %s, want 1000", got)
	}

	pos, err := store2.Get("alice", "usdt|near|usdt")
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.Status != position.StatusRunning {
		t.Errorf("status: got %s, want Running", pos.Status)
	}
	if !pos.DebtShares.Equal(dec("500")) || !pos.PositionAmount.Equal(dec("1500")) {
		t.Errorf("amounts: debt=%s position=%s", pos.DebtShares, pos.PositionAmount)
	}
}
