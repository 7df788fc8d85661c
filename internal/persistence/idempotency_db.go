package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ProcessedCallbackStore is the durable tier of callback deduplication:
// applied callbacks are recorded in margin.processed_callbacks and looked up
// when a key has aged out of the in-memory LRU.
type ProcessedCallbackStore struct {
	db *sql.DB
}

func NewProcessedCallbackStore(db *sql.DB) *ProcessedCallbackStore {
	return &ProcessedCallbackStore{db: db}
}

// IsDuplicate checks whether a callback key has already been applied.
func (s *ProcessedCallbackStore) IsDuplicate(eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1
		FROM margin.processed_callbacks
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record marks a callback key as applied.
func (s *ProcessedCallbackStore) Record(ctx context.Context, eventType, idempotencyKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO margin.processed_callbacks (event_type, idempotency_key, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (event_type, idempotency_key) DO NOTHING
	`, eventType, idempotencyKey)
	if err != nil {
		return fmt.Errorf("record processed callback: %w", err)
	}
	return nil
}

// RecentKeys returns up to limit composite keys ("type:key"), newest first,
// for warming the in-memory LRU on restart.
func (s *ProcessedCallbackStore) RecentKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type || ':' || idempotency_key
		FROM margin.processed_callbacks
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("load recent callback keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
