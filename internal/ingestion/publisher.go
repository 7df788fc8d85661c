package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"MarginPool/internal/event"
)

// OutboundPublisher publishes operation results to NATS for downstream
// consumers. Results arrive on the input channel after the journal write has
// been handed off; publishing is best-effort, the journal is the record.
// Subjects follow the pattern: margin.engine.events.{event_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan *event.Result
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan *event.Result) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case res, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, res); err != nil {
				log.Printf("WARN: outbound publish failed result=%s: %v", res.ResultID, err)
				// Non-fatal: downstream consumers can read the outcome journal
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, res *event.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	subject := fmt.Sprintf("margin.engine.events.%s", res.TypeName)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "MARGIN_ENGINE_EVENTS",
		Subjects:  []string{"margin.engine.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream MARGIN_ENGINE_EVENTS")
	return nil
}
