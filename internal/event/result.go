package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result is an outbound operation outcome, appended to the outcome journal
// and published for downstream consumers.
type Result struct {
	ResultID  uuid.UUID       `json:"result_id"`
	Type      EventType       `json:"-"`
	TypeName  string          `json:"type"`
	AccountID string          `json:"account_id"`
	PosID     string          `json:"pos_id"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewResult builds a Result with a fresh id and the type name filled in.
func NewResult(t EventType, accountID, posID, asset string, amount decimal.Decimal) *Result {
	return &Result{
		ResultID:  uuid.New(),
		Type:      t,
		TypeName:  t.String(),
		AccountID: accountID,
		PosID:     posID,
		Asset:     asset,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	}
}

func (r *Result) IdempotencyKey() string {
	return r.ResultID.String()
}

func (r *Result) EventType() EventType {
	return r.Type
}

func (r *Result) PositionID() string {
	return r.PosID
}
