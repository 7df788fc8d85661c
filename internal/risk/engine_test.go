package risk_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"MarginPool/internal/risk"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Snapshot, prices and rates for a usdt-margined near position: 1000 usdt
// margin, 500 near debt swapped into 1500 usdt of position, near at 3.0.
func fixture() (risk.Snapshot, risk.Prices, risk.Rates) {
	snap := risk.Snapshot{
		MarginAsset:    "usdt",
		DebtAsset:      "near",
		PositionAsset:  "usdt",
		MarginAmount:   dec("1000"),
		DebtAmount:     dec("500"),
		PositionAmount: dec("1500"),
	}
	prices := risk.Prices{"usdt": dec("1"), "near": dec("3")}
	rates := risk.Rates{"usdt": dec("0.95"), "near": dec("0.75")}
	return snap, prices, rates
}

// ============================================================================
// Test: valuations
// ============================================================================

func TestValues(t *testing.T) {
	snap, prices, _ := fixture()

	if got := risk.MarginValue(snap, prices); !got.Equal(dec("1000")) {
		t.Errorf("margin value: got %s, want 1000", got)
	}
	if got := risk.DebtValue(snap, prices); !got.Equal(dec("1500")) {
		t.Errorf("debt value: got %s, want 1500", got)
	}
	if got := risk.PositionValue(snap, prices); !got.Equal(dec("1500")) {
		t.Errorf("position value: got %s, want 1500", got)
	}
}

func TestValues_MissingPriceIsZero(t *testing.T) {
	snap, _, _ := fixture()
	prices := risk.Prices{"usdt": dec("1")}

	if got := risk.DebtValue(snap, prices); !got.IsZero() {
		t.Errorf("debt value with no near price: got %s, want 0", got)
	}
}

// ============================================================================
// Test: health factor
// ============================================================================

func TestHealthFactor(t *testing.T) {
	snap, prices, rates := fixture()

	// collateral = 1000*0.95 + 1500*0.95 = 2375
	// stressed debt = 1500 / 0.75 = 2000
	got := risk.HealthFactor(snap, prices, rates)
	if !got.Equal(dec("1.1875")) {
		t.Errorf("health factor: got %s, want 1.1875", got)
	}
}

func TestHealthFactor_NoDebtIsMax(t *testing.T) {
	snap, prices, rates := fixture()
	snap.DebtAmount = decimal.Zero

	if got := risk.HealthFactor(snap, prices, rates); !got.Equal(risk.MaxHealthFactor) {
		t.Errorf("health factor with no debt: got %s, want sentinel %s", got, risk.MaxHealthFactor)
	}
}

func TestHealthFactor_MissingRateIsNoHaircut(t *testing.T) {
	snap, prices, _ := fixture()

	// With no rates at all: collateral = 2500, debt = 1500.
	got := risk.HealthFactor(snap, prices, risk.Rates{})
	want := dec("2500").DivRound(dec("1500"), 12)
	if !got.Equal(want) {
		t.Errorf("health factor without rates: got %s, want %s", got, want)
	}
}

// ============================================================================
// Test: leverage and pnl
// ============================================================================

func TestLeverageRatio(t *testing.T) {
	snap, prices, _ := fixture()

	if got := risk.LeverageRatio(snap, prices); !got.Equal(dec("1.5")) {
		t.Errorf("leverage: got %s, want 1.5", got)
	}
}

func TestLeverageRatio_Sentinels(t *testing.T) {
	snap, prices, _ := fixture()

	snap.DebtAmount = decimal.Zero
	if got := risk.LeverageRatio(snap, prices); !got.IsZero() {
		t.Errorf("leverage with no debt: got %s, want 0", got)
	}

	snap.DebtAmount = dec("500")
	snap.MarginAmount = decimal.Zero
	if got := risk.LeverageRatio(snap, prices); !got.Equal(risk.MaxLeverage) {
		t.Errorf("leverage with no margin: got %s, want sentinel %s", got, risk.MaxLeverage)
	}
}

func TestPnL(t *testing.T) {
	snap, prices, _ := fixture()

	if got := risk.PnL(snap, prices); !got.IsZero() {
		t.Errorf("pnl at entry: got %s, want 0", got)
	}

	// near rallies to 4: debt is now worth 2000 against a 1500 position.
	prices["near"] = dec("4")
	if got := risk.PnL(snap, prices); !got.Equal(dec("-500")) {
		t.Errorf("pnl after rally: got %s, want -500", got)
	}
}
