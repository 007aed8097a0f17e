// Package events carries ledger notifications to external observers.
// Delivery is best effort: sinks may drop events and publishers never wait
// for acknowledgement.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/settlex/internal/models"
)

// TopicPaymentRecorded is the topic of events emitted after a payment is stored.
const TopicPaymentRecorded = "pmt_rec"

// Event is one published notification.
type Event struct {
	ID          string                 `json:"id"`
	Topic       string                 `json:"topic"`
	Payload     models.PaymentRecorded `json:"payload"`
	PublishedAt time.Time              `json:"published_at"`
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

type fanout []Sink

// Fanout publishes each event to every sink. A failing sink does not stop
// delivery to the others; all failures are joined.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

func (f fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
