package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"MarginPool/internal/event"
)

// OutcomeWriter batch-inserts operation results into margin.outcomes. The
// journal is append-only and idempotent on result_id, so a retried batch
// never double-writes.
type OutcomeWriter struct {
	db *sql.DB
}

func NewOutcomeWriter(db *sql.DB) *OutcomeWriter {
	return &OutcomeWriter{db: db}
}

// WriteBatch writes a batch of results using a multi-row INSERT inside tx.
func (w *OutcomeWriter) WriteBatch(ctx context.Context, tx *sql.Tx, results []*event.Result) error {
	if len(results) == 0 {
		return nil
	}

	query := `INSERT INTO margin.outcomes
		(result_id, event_type, account_id, pos_id, asset, amount, reason, created_at)
		VALUES `

	values := make([]string, 0, len(results))
	args := make([]interface{}, 0, len(results)*8)

	for i, r := range results {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			r.ResultID, r.TypeName, r.AccountID, r.PosID,
			r.Asset, r.Amount.String(), r.Reason, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (result_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
