package saga

import (
	"github.com/shopspring/decimal"
)

// Config holds the static risk limits applied to every operation.
type Config struct {
	// MinOpenHealthFactor is the floor on the speculative post-trade HF.
	MinOpenHealthFactor decimal.Decimal

	// MaxLeverageRate is the ceiling on post-trade debt/margin.
	MaxLeverageRate decimal.Decimal

	// MaxMarginValue caps the value of margin a single position may post.
	MaxMarginValue decimal.Decimal

	// PriceDeviationTolerance bounds how far above the oracle-implied output
	// a declared output may sit.
	PriceDeviationTolerance decimal.Decimal
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MinOpenHealthFactor:     decimal.RequireFromString("1.05"),
		MaxLeverageRate:         decimal.RequireFromString("2.0"),
		MaxMarginValue:          decimal.RequireFromString("1000"),
		PriceDeviationTolerance: decimal.RequireFromString("0.05"),
	}
}
