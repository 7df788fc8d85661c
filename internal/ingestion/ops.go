package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Action names accepted on the operation request subject.
const (
	ActionOpen               = "open"
	ActionIncrease           = "increase"
	ActionDecrease           = "decrease"
	ActionClose              = "close"
	ActionIncreaseCollateral = "increase_collateral"
	ActionDecreaseCollateral = "decrease_collateral"
	ActionDeposit            = "deposit"
	ActionWithdraw           = "withdraw"
)

// OpRequest is a decoded operation request. Which fields are meaningful
// depends on Action; the dispatcher in cmd/marginpool picks what it needs.
type OpRequest struct {
	RequestID     string
	Action        string
	AccountID     string
	PosID         string
	Asset         string
	MarginAsset   string
	DebtAsset     string
	PositionAsset string
	MarginAmount  decimal.Decimal
	DebtAmount    decimal.Decimal
	Amount        decimal.Decimal
	MinAmountOut  decimal.Decimal
	Prices        map[string]decimal.Decimal
}

type opRequestJSON struct {
	RequestID     string            `json:"request_id"`
	Action        string            `json:"action"`
	AccountID     string            `json:"account_id"`
	PosID         string            `json:"pos_id"`
	Asset         string            `json:"asset"`
	MarginAsset   string            `json:"margin_asset"`
	DebtAsset     string            `json:"debt_asset"`
	PositionAsset string            `json:"position_asset"`
	MarginAmount  string            `json:"margin_amount"`
	DebtAmount    string            `json:"debt_amount"`
	Amount        string            `json:"amount"`
	MinAmountOut  string            `json:"min_amount_out"`
	Prices        map[string]string `json:"prices"`
}

// ParseOpRequest decodes an operation request payload. Numeric fields are
// optional on the wire and default to zero; which ones must be set is the
// dispatcher's concern.
func ParseOpRequest(data []byte) (*OpRequest, error) {
	var j opRequestJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse OpRequest: %w", err)
	}
	if j.Action == "" {
		return nil, fmt.Errorf("parse OpRequest: missing action")
	}
	if j.AccountID == "" {
		return nil, fmt.Errorf("parse OpRequest: missing account_id")
	}

	req := &OpRequest{
		RequestID:     j.RequestID,
		Action:        j.Action,
		AccountID:     j.AccountID,
		PosID:         j.PosID,
		Asset:         j.Asset,
		MarginAsset:   j.MarginAsset,
		DebtAsset:     j.DebtAsset,
		PositionAsset: j.PositionAsset,
	}

	var err error
	if req.MarginAmount, err = optionalDecimal(j.MarginAmount); err != nil {
		return nil, fmt.Errorf("parse margin_amount: %w", err)
	}
	if req.DebtAmount, err = optionalDecimal(j.DebtAmount); err != nil {
		return nil, fmt.Errorf("parse debt_amount: %w", err)
	}
	if req.Amount, err = optionalDecimal(j.Amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if req.MinAmountOut, err = optionalDecimal(j.MinAmountOut); err != nil {
		return nil, fmt.Errorf("parse min_amount_out: %w", err)
	}

	if len(j.Prices) > 0 {
		req.Prices = make(map[string]decimal.Decimal, len(j.Prices))
		for sym, s := range j.Prices {
			p, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("parse prices[%s]: %w", sym, err)
			}
			req.Prices[sym] = p
		}
	}

	return req, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
