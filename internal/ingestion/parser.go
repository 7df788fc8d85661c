package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
)

// ParseRawCallback converts a RawCallback into a typed event. The ingestion
// shell validates and decodes before anything reaches the engine.
func ParseRawCallback(raw RawCallback) (event.Event, error) {
	switch raw.Kind {
	case KindTradeResolved:
		return parseTradeResolved(raw.Data)
	case KindExactFill:
		return parseExactFill(raw.Data)
	default:
		return nil, fmt.Errorf("unknown callback kind: %s", raw.Kind)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the venue adapter.

type tradeResolvedJSON struct {
	CallbackID  string `json:"callback_id"`
	Success     bool   `json:"success"`
	AccountID   string `json:"account_id"`
	PosID       string `json:"pos_id"`
	Amount      string `json:"amount"`
	Op          string `json:"op"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseTradeResolved(data []byte) (*event.TradeResolved, error) {
	var j tradeResolvedJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TradeResolved: %w", err)
	}

	callbackID, err := uuid.Parse(j.CallbackID)
	if err != nil {
		return nil, fmt.Errorf("parse callback_id: %w", err)
	}
	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	op := event.ParseOp(j.Op)
	if op == event.OpUnknown {
		return nil, fmt.Errorf("parse op: unknown operation %q", j.Op)
	}

	return &event.TradeResolved{
		CallbackID: callbackID,
		Success:    j.Success,
		AccountID:  j.AccountID,
		PosID:      j.PosID,
		Amount:     amount,
		Op:         op,
		Timestamp:  time.UnixMicro(j.TimestampUs),
	}, nil
}

type tradeRefJSON struct {
	AccountID string `json:"account_id"`
	PosID     string `json:"pos_id"`
	AmountIn  string `json:"amount_in"`
	Op        string `json:"op"`
}

type exactFillJSON struct {
	CallbackID  string       `json:"callback_id"`
	Asset       string       `json:"asset"`
	SourceID    string       `json:"source_id"`
	Amount      string       `json:"amount"`
	Ref         tradeRefJSON `json:"ref"`
	TimestampUs int64        `json:"timestamp_us"`
}

func parseExactFill(data []byte) (*event.ExactFill, error) {
	var j exactFillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ExactFill: %w", err)
	}

	callbackID, err := uuid.Parse(j.CallbackID)
	if err != nil {
		return nil, fmt.Errorf("parse callback_id: %w", err)
	}
	amount, err := decimal.NewFromString(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	reserved, err := decimal.NewFromString(j.Ref.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("parse ref.amount_in: %w", err)
	}
	op := event.ParseOp(j.Ref.Op)
	if op == event.OpUnknown {
		return nil, fmt.Errorf("parse ref.op: unknown operation %q", j.Ref.Op)
	}

	return &event.ExactFill{
		CallbackID: callbackID,
		Asset:      j.Asset,
		SourceID:   j.SourceID,
		Amount:     amount,
		Ref: event.TradeRef{
			AccountID:      j.Ref.AccountID,
			PosID:          j.Ref.PosID,
			ReservedAmount: reserved,
			Op:             op,
		},
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
