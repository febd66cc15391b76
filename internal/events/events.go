// Package events publishes catalog and vendor domain events to NATS.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ProductSubmitted           = "product.submitted"
	ProductApproved            = "product.approved"
	ProductRejected            = "product.rejected"
	ProductVariantsRegenerated = "product.variants_regenerated"
	VendorVerificationChanged  = "vendor.verification_changed"
)

// Event is the envelope published on the subject named by Type.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	ProductID  string          `json:"product_id"`
	VendorID   string          `json:"vendor_id"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time. Payload encoding errors
// drop the payload.
func New(eventType, productID, vendorID, actorID string, payload any) Event {
	event := Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		ProductID:  productID,
		VendorID:   vendorID,
		ActorID:    actorID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Discard drops every event; it is used when NATS_URL is unset.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

func (Discard) Close() {}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists recorded event types in publish order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}
