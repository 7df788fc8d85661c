package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
)

// NATSDex submits trade requests to the venue adapter over JetStream. It is
// fire-and-forget by design: the outcome comes back on the callback subjects,
// never through this call.
type NATSDex struct {
	js      jetstream.JetStream
	subject string
}

// NewNATSDex returns a Dex publishing to subject (default
// "margin.dex.requests" when empty).
func NewNATSDex(js jetstream.JetStream, subject string) *NATSDex {
	if subject == "" {
		subject = "margin.dex.requests"
	}
	return &NATSDex{js: js, subject: subject}
}

type tradeRequestJSON struct {
	AssetIn      string       `json:"asset_in"`
	AmountIn     string       `json:"amount_in"`
	AssetOut     string       `json:"asset_out"`
	MinAmountOut string       `json:"min_amount_out"`
	Ref          tradeRefJSON `json:"ref"`
}

// Trade publishes a swap request carrying the engine's correlation token,
// which the venue adapter echoes back unmodified on the exact-fill callback.
func (d *NATSDex) Trade(ctx context.Context, assetIn string, amountIn decimal.Decimal, assetOut string, minAmountOut decimal.Decimal, ref event.TradeRef) error {
	req := tradeRequestJSON{
		AssetIn:      assetIn,
		AmountIn:     amountIn.String(),
		AssetOut:     assetOut,
		MinAmountOut: minAmountOut.String(),
		Ref: tradeRefJSON{
			AccountID: ref.AccountID,
			PosID:     ref.PosID,
			AmountIn:  ref.ReservedAmount.String(),
			Op:        ref.Op.String(),
		},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal trade request: %w", err)
	}
	if _, err := d.js.Publish(ctx, d.subject, data); err != nil {
		return fmt.Errorf("publish trade request: %w", err)
	}
	return nil
}
