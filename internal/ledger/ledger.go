// Package ledger records shared-expense payments and guarantees that each
// member pays each expense at most once.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settlex/internal/events"
	"github.com/mmynk/settlex/internal/models"
	"github.com/mmynk/settlex/internal/storage"
)

const (
	// RetentionThreshold is the remaining lifetime below which a slot's
	// retention is extended on write.
	RetentionThreshold = 30 * 24 * time.Hour
	// RetentionTarget is the lifetime a slot is extended to.
	RetentionTarget = 365 * 24 * time.Hour
)

// Authenticator verifies that the current invocation is authorized by a
// principal.
type Authenticator interface {
	RequireAuthorization(ctx context.Context, principal models.Principal) error
}

// Observer is notified of recording outcomes.
type Observer interface {
	PaymentRecorded()
	PaymentRejected(kind string)
}

type nopObserver struct{}

func (nopObserver) PaymentRecorded()       {}
func (nopObserver) PaymentRejected(string) {}

// Ledger is the payment recording engine and its query surface.
type Ledger struct {
	store    storage.Store
	auth     Authenticator
	clock    Clock
	sink     events.Sink
	observer Observer
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the time source for record timestamps.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithEventSink sets where payment notifications are published.
func WithEventSink(s events.Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithObserver sets a recipient for recording outcomes, such as metrics.
func WithObserver(o Observer) Option {
	return func(l *Ledger) { l.observer = o }
}

// New creates a Ledger over store. auth decides whether the caller may act
// for a payment's member.
func New(store storage.Store, auth Authenticator, opts ...Option) *Ledger {
	l := &Ledger{
		store:    store,
		auth:     auth,
		clock:    &SystemClock{},
		sink:     events.Discard,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordPayment stores a payment by sub.Member toward sub.ExpenseID in the
// history of sub.TripID. The member must have authorized the call; the payer
// is recorded as given.
//
// Either every effect happens (history entry, paid marker, retention
// extensions) or none does. A notification is published after commit.
func (l *Ledger) RecordPayment(ctx context.Context, sub models.PaymentSubmission) error {
	if err := l.auth.RequireAuthorization(ctx, sub.Member); err != nil {
		return l.reject(sub, fmt.Errorf("%w: %w", ErrUnauthorized, err))
	}
	if err := ValidateAmount(sub.Amount); err != nil {
		return l.reject(sub, err)
	}
	if err := ValidateIDs(sub.TripID, sub.ExpenseID); err != nil {
		return l.reject(sub, err)
	}

	err := l.store.Update(ctx, func(tx storage.Tx) error {
		if err := claimPayment(ctx, tx, sub.ExpenseID, sub.Member); err != nil {
			return err
		}

		// Read the history before taking the timestamp so that a write
		// committed after the read conflicts with this one, keeping
		// timestamps in history order.
		tripKey := storage.TripPayments(sub.TripID)
		history, err := loadHistory(ctx, tx, tripKey)
		if err != nil {
			return err
		}

		record := models.PaymentRecord{
			ExpenseID: sub.ExpenseID,
			Payer:     sub.Payer,
			Member:    sub.Member,
			Amount:    sub.Amount,
			TxHash:    sub.TxHash,
			Timestamp: l.clock.Now(),
		}
		history = append(history, record)
		if err := tx.Set(ctx, tripKey, encodeHistory(history)); err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		if err := tx.ExtendRetention(ctx, tripKey, RetentionThreshold, RetentionTarget); err != nil {
			return fmt.Errorf("failed to extend history retention: %w", err)
		}

		paidKey := storage.ExpensePaid(sub.ExpenseID, sub.Member)
		if err := tx.ExtendRetention(ctx, paidKey, RetentionThreshold, RetentionTarget); err != nil {
			return fmt.Errorf("failed to extend marker retention: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyPaid) {
		return l.reject(sub, err)
	}
	if err != nil {
		l.observer.PaymentRejected(Kind(err))
		slog.Error("RecordPayment failed", "trip_id", sub.TripID, "expense_id", sub.ExpenseID, "error", err)
		return fmt.Errorf("failed to record payment: %w", err)
	}

	l.observer.PaymentRecorded()
	slog.Info("Payment recorded",
		"trip_id", sub.TripID,
		"expense_id", sub.ExpenseID,
		"member", sub.Member,
		"amount", sub.Amount.String(),
	)
	l.publish(ctx, sub)
	return nil
}

// GetPayments returns the payment history of tripID in insertion order.
// Unknown or expired trips yield an empty slice.
func (l *Ledger) GetPayments(ctx context.Context, tripID string) ([]models.PaymentRecord, error) {
	var history []models.PaymentRecord
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		history, err = loadHistory(ctx, tx, storage.TripPayments(tripID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get payments: %w", err)
	}
	return history, nil
}

// IsPaid reports whether member has recorded a payment toward expenseID.
func (l *Ledger) IsPaid(ctx context.Context, expenseID string, member models.Principal) (bool, error) {
	var paid bool
	err := l.store.View(ctx, func(tx storage.Tx) error {
		var err error
		paid, err = tx.Has(ctx, storage.ExpensePaid(expenseID, member))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to check paid marker: %w", err)
	}
	return paid, nil
}

func (l *Ledger) reject(sub models.PaymentSubmission, err error) error {
	kind := Kind(err)
	l.observer.PaymentRejected(kind)
	slog.Warn("Payment rejected",
		"kind", kind,
		"trip_id", sub.TripID,
		"expense_id", sub.ExpenseID,
		"member", sub.Member,
	)
	return err
}

// publish is fire-and-forget: failures are logged and never reach the caller.
func (l *Ledger) publish(ctx context.Context, sub models.PaymentSubmission) {
	ev := events.Event{
		ID:    uuid.New().String(),
		Topic: events.TopicPaymentRecorded,
		Payload: models.PaymentRecorded{
			TripID:    sub.TripID,
			ExpenseID: sub.ExpenseID,
			Member:    sub.Member,
			Amount:    sub.Amount,
		},
		PublishedAt: time.Now().UTC(),
	}
	if err := l.sink.Publish(ctx, ev); err != nil {
		slog.Warn("Event publish failed", "event_id", ev.ID, "topic", ev.Topic, "error", err)
	}
}

func loadHistory(ctx context.Context, tx storage.Tx, key storage.Key) ([]models.PaymentRecord, error) {
	raw, ok, err := tx.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if !ok {
		return []models.PaymentRecord{}, nil
	}
	return decodeHistory(raw)
}
