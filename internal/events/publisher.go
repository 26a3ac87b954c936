// Package events publishes document lifecycle notifications to Kafka for
// downstream consumers (audit, search indexing). Publishing is best-effort
// by contract: callers log failures and move on.
package events

import (
	"context"

	"github.com/tranhaiminh/docvault/internal/document"
	"github.com/tranhaiminh/docvault/pkg/kafka"
)

// Publisher emits document events keyed by document ID so events for one
// document stay ordered within a partition.
type Publisher struct {
	producer *kafka.Producer
}

// New creates a Publisher on top of a Kafka producer.
func New(producer *kafka.Producer) *Publisher {
	return &Publisher{producer: producer}
}

// Publish writes a single lifecycle event.
func (p *Publisher) Publish(ctx context.Context, ev document.Event) error {
	return p.producer.Publish(ctx, kafka.Event{
		Key:   ev.DocumentID,
		Value: ev,
	})
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}
