package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeRef is the correlation token the engine hands to the trading venue at
// dispatch and receives back unmodified on the exact-fill callback.
type TradeRef struct {
	AccountID      string
	PosID          string
	ReservedAmount decimal.Decimal
	Op             Op
}

// TradeResolved is callback 1: the coarse trade outcome. A failed trade
// triggers compensation; a successful one changes nothing until the
// exact-fill notification arrives.
// Idempotency key: callback_id (UUID from the venue adapter).
type TradeResolved struct {
	CallbackID uuid.UUID
	Success    bool
	AccountID  string
	PosID      string
	Amount     decimal.Decimal
	Op         Op
	Timestamp  time.Time
}

func (t *TradeResolved) IdempotencyKey() string {
	return t.CallbackID.String()
}

func (t *TradeResolved) EventType() EventType {
	return EventTypeTradeResolved
}

func (t *TradeResolved) PositionID() string {
	return t.PosID
}

// ExactFill is callback 2: the asset actually received and its exact amount,
// carrying the engine's own TradeRef round-tripped through the venue.
// Idempotency key: callback_id.
type ExactFill struct {
	CallbackID uuid.UUID
	Asset      string
	SourceID   string // venue-side fill identifier
	Amount     decimal.Decimal
	Ref        TradeRef
	Timestamp  time.Time
}

func (f *ExactFill) IdempotencyKey() string {
	return f.CallbackID.String()
}

func (f *ExactFill) EventType() EventType {
	return EventTypeExactFill
}

func (f *ExactFill) PositionID() string {
	return f.Ref.PosID
}
