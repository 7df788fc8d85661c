package saga

import (
	"errors"
)

// Every validation failure is a rejection: detected before any mutation,
// leaving ledger and positions untouched.
var (
	// ErrPositionBusy guards the single in-flight saga per position: any
	// operation on a position not in running status is rejected.
	ErrPositionBusy = errors.New("position has an operation in flight")

	// ErrUnreasonableAmount rejects a declared output more than the allowed
	// tolerance above the oracle-implied output.
	ErrUnreasonableAmount = errors.New("declared amount deviates from oracle price")

	ErrHealthFactorTooLow = errors.New("health factor below minimum")
	ErrLeverageTooHigh    = errors.New("leverage ratio above maximum")
	ErrMarginTooHigh      = errors.New("margin value above maximum")

	// ErrInsufficientMargin rejects a collateral decrease that would drain
	// the position's margin entirely.
	ErrInsufficientMargin = errors.New("margin cannot be reduced to zero")

	// ErrUnexpectedCallback rejects a callback that does not match the
	// saga's awaited phase: duplicates after settlement, or a finalize
	// arriving before its resolve.
	ErrUnexpectedCallback = errors.New("callback does not match awaited saga phase")
)
