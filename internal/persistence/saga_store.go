package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"MarginPool/internal/event"
	"MarginPool/internal/saga"
)

// PostgresRecordStore persists saga continuations in margin.sagas. A crash
// between the external call and its callbacks must not lose a reservation,
// so every continuation is written before the trade request leaves the
// process and removed only when the saga settles.
type PostgresRecordStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db, timeout: 2 * time.Second}
}

// Save inserts or replaces the continuation for an account's position. The
// key is the (account, position) pair: position IDs repeat across accounts.
func (s *PostgresRecordStore) Save(r *saga.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO margin.sagas
			(account_id, pos_id, correlation_id, op, reserved_amount, min_amount_out, phase, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, pos_id) DO UPDATE SET
			correlation_id = EXCLUDED.correlation_id,
			op             = EXCLUDED.op,
			reserved_amount = EXCLUDED.reserved_amount,
			min_amount_out  = EXCLUDED.min_amount_out,
			phase          = EXCLUDED.phase,
			started_at     = EXCLUDED.started_at
	`,
		r.AccountID, r.PosID, r.CorrelationID, r.Op.String(),
		r.ReservedAmount.String(), r.MinAmountOut.String(),
		int32(r.Phase), r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("save saga %s/%s: %w", r.AccountID, r.PosID, err)
	}
	return nil
}

// UpdatePhase advances a continuation to the given phase.
func (s *PostgresRecordStore) UpdatePhase(accountID, posID string, phase saga.Phase) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE margin.sagas SET phase = $1 WHERE account_id = $2 AND pos_id = $3`,
		int32(phase), accountID, posID,
	)
	if err != nil {
		return fmt.Errorf("update saga phase %s/%s: %w", accountID, posID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update saga phase %s/%s: no such saga", accountID, posID)
	}
	return nil
}

// Delete removes a settled continuation.
func (s *PostgresRecordStore) Delete(accountID, posID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM margin.sagas WHERE account_id = $1 AND pos_id = $2`, accountID, posID)
	if err != nil {
		return fmt.Errorf("delete saga %s/%s: %w", accountID, posID, err)
	}
	return nil
}

// LoadOpen reads all unresolved continuations, for engine restore on boot.
func (s *PostgresRecordStore) LoadOpen() ([]*saga.Record, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, pos_id, correlation_id, op, reserved_amount, min_amount_out, phase, started_at
		FROM margin.sagas
		ORDER BY started_at
	`)
	if err != nil {
		return nil, fmt.Errorf("load sagas: %w", err)
	}
	defer rows.Close()

	var records []*saga.Record
	for rows.Next() {
		var (
			r              saga.Record
			correlationID  string
			opName         string
			reservedAmount string
			minAmountOut   string
			phase          int32
		)
		if err := rows.Scan(&r.AccountID, &r.PosID, &correlationID, &opName,
			&reservedAmount, &minAmountOut, &phase, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan saga row: %w", err)
		}
		if r.CorrelationID, err = uuid.Parse(correlationID); err != nil {
			return nil, fmt.Errorf("parse correlation_id: %w", err)
		}
		if r.ReservedAmount, err = decimal.NewFromString(reservedAmount); err != nil {
			return nil, fmt.Errorf("parse reserved_amount: %w", err)
		}
		if r.MinAmountOut, err = decimal.NewFromString(minAmountOut); err != nil {
			return nil, fmt.Errorf("parse min_amount_out: %w", err)
		}
		r.Op = event.ParseOp(opName)
		r.Phase = saga.Phase(phase)
		records = append(records, &r)
	}
	return records, rows.Err()
}
