package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// ConnectNATS opens a NATS connection with reconnect handling.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// msgPublisher is satisfied by *nats.Conn.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSSink publishes events as JSON to "<subject>.<topic>".
// The event ID is sent as Nats-Msg-Id so JetStream streams can deduplicate.
type NATSSink struct {
	pub     msgPublisher
	subject string
}

// NewNATSSink creates a sink publishing under subject.
func NewNATSSink(pub msgPublisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

// Publish sends ev without waiting for any acknowledgement.
func (s *NATSSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(s.subject + "." + ev.Topic)
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Header.Set("Settlex-Trip-Id", ev.Payload.TripID)

	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.ID, err)
	}
	return nil
}
