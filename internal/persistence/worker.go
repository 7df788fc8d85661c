package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"MarginPool/internal/event"
	"MarginPool/internal/observability"
)

// OutcomeWorker drains the persist channel and batch-writes results to
// Postgres. The engine sends on this channel blocking: if the worker falls
// behind, operations stall rather than lose an outcome.
type OutcomeWorker struct {
	writer       *OutcomeWriter
	db           *sql.DB
	inputChan    <-chan *event.Result
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewOutcomeWorker(
	db *sql.DB,
	inputChan <-chan *event.Result,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *OutcomeWorker {
	return &OutcomeWorker{
		writer:       NewOutcomeWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the worker loop. Batches flush when full or when the flush
// timeout expires; a final flush happens on shutdown.
func (ow *OutcomeWorker) Run(ctx context.Context) error {
	batch := make([]*event.Result, 0, ow.batchSize)

	timer := time.NewTimer(ow.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := ow.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case res, ok := <-ow.inputChan:
			if !ok {
				if len(batch) > 0 {
					if err := ow.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, res)
			if len(batch) >= ow.batchSize {
				if err := ow.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				batch = batch[:0]
				timer.Reset(ow.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := ow.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				batch = batch[:0]
			}
			timer.Reset(ow.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never drops a
// result: it retries until the write succeeds or the context is cancelled,
// and even then attempts one last flush.
func (ow *OutcomeWorker) flushWithRetry(ctx context.Context, batch []*event.Result) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: outcome persist retry attempt %d (backoff=%v, results=%d)",
				attempt, backoff, len(batch))
			select {
			case <-ctx.Done():
				if finalErr := ow.flush(context.Background(), batch); finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			if ow.metrics != nil {
				ow.metrics.PersistRetry.Inc()
			}
		}

		if err := ow.flush(ctx, batch); err == nil {
			if attempt > 0 {
				log.Printf("INFO: outcome persist succeeded after %d retries", attempt)
			}
			return nil
		}
	}
}

func (ow *OutcomeWorker) flush(ctx context.Context, batch []*event.Result) error {
	tx, err := ow.db.BeginTx(ctx, nil)
	if err != nil {
		if ow.metrics != nil {
			ow.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := ow.writer.WriteBatch(ctx, tx, batch); err != nil {
		if ow.metrics != nil {
			ow.metrics.PersistErrors.WithLabelValues("write").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if ow.metrics != nil {
			ow.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if ow.metrics != nil {
		ow.metrics.PersistBatchSize.Observe(float64(len(batch)))
		ow.metrics.OutcomesWritten.Add(float64(len(batch)))
	}
	return nil
}
