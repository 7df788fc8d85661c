package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the position lifecycle state. There is no closed state: a fully
// unwound position is deleted from the store, and deletion is the close.
type Status int32

const (
	// StatusPreOpen: created by open, debt and position amounts still zero,
	// first settlement callback not yet arrived.
	StatusPreOpen Status = iota
	// StatusRunning: settled; the only state new operations may start from.
	StatusRunning
	// StatusAdjusting: an increase or decrease trade is outstanding.
	StatusAdjusting
)

func (s Status) String() string {
	switch s {
	case StatusPreOpen:
		return "PreOpen"
	case StatusRunning:
		return "Running"
	case StatusAdjusting:
		return "Adjusting"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates status transitions.
func (s Status) CanTransitionTo(next Status) bool {
	validTransitions := map[Status][]Status{
		StatusPreOpen: {
			StatusRunning,
		},
		StatusRunning: {
			StatusAdjusting,
		},
		StatusAdjusting: {
			StatusRunning,
		},
	}

	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, next2 := range allowed {
		if next == next2 {
			return true
		}
	}
	return false
}

// MarginPosition is one leveraged position: margin collateral and debt held
// as pool share claims, the position asset held as an absolute amount (it
// accrues nothing, so it needs no share accounting).
type MarginPosition struct {
	ID        string
	AccountID string

	MarginAsset  string
	MarginShares decimal.Decimal

	DebtAsset  string
	DebtShares decimal.Decimal

	PositionAsset  string
	PositionAmount decimal.Decimal

	Status Status
}

// DeriveID builds the deterministic position id from the asset triple. One
// open position per account per triple.
func DeriveID(marginAsset, debtAsset, positionAsset string) string {
	return fmt.Sprintf("%s|%s|%s", marginAsset, debtAsset, positionAsset)
}

// IsUnwound reports whether both debt and position amount have reached zero,
// at which point the position must be deleted.
func (p *MarginPosition) IsUnwound() bool {
	return p.DebtShares.IsZero() && p.PositionAmount.IsZero()
}
