package saga

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
)

// Phase is the continuation state of an in-flight saga.
type Phase int32

const (
	// PhaseAwaitingResolve: the trade request is out, callback 1 not yet in.
	PhaseAwaitingResolve Phase = iota
	// PhaseAwaitingFill: the trade resolved successfully, the exact-fill
	// notification not yet in.
	PhaseAwaitingFill
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingResolve:
		return "AwaitingResolve"
	case PhaseAwaitingFill:
		return "AwaitingFill"
	default:
		return "Unknown"
	}
}

// Record is the persisted saga continuation: everything needed to resolve a
// callback that may arrive arbitrarily later, across a restart.
type Record struct {
	CorrelationID uuid.UUID
	AccountID     string
	PosID         string
	Op            event.Op

	// ReservedAmount is the debt amount reserved (open/increase) or the
	// position amount released (decrease) in the prepare phase; compensation
	// and commit both key off it.
	ReservedAmount decimal.Decimal

	// MinAmountOut is the minimum-output bound handed to the venue.
	MinAmountOut decimal.Decimal

	Phase     Phase
	StartedAt time.Time
}

// Ref builds the correlation token round-tripped through the venue.
func (r *Record) Ref() event.TradeRef {
	return event.TradeRef{
		AccountID:      r.AccountID,
		PosID:          r.PosID,
		ReservedAmount: r.ReservedAmount,
		Op:             r.Op,
	}
}

// RecordStore persists saga continuations so a crash between the external
// call and its callbacks cannot lose a reservation.
type RecordStore interface {
	Save(r *Record) error
	UpdatePhase(accountID, posID string, phase Phase) error
	Delete(accountID, posID string) error
	LoadOpen() ([]*Record, error)
}
