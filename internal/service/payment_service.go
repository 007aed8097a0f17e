package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settlex/internal/auth"
	"github.com/mmynk/settlex/internal/events"
	"github.com/mmynk/settlex/internal/ledger"
	"github.com/mmynk/settlex/internal/models"
	"github.com/mmynk/settlex/internal/storage"
	"github.com/mmynk/settlex/pkg/api"
)

// watchBuffer is how many events a slow watcher may lag behind before
// events are dropped for it.
const watchBuffer = 64

// Ensure PaymentService implements api.PaymentServiceHandler
var _ api.PaymentServiceHandler = (*PaymentService)(nil)

// PaymentService implements the Connect PaymentService
type PaymentService struct {
	ledger *ledger.Ledger
	hub    *events.Hub
}

// NewPaymentService creates a new PaymentService. hub feeds WatchPayments and
// must also be among the ledger's event sinks.
func NewPaymentService(l *ledger.Ledger, hub *events.Hub) *PaymentService {
	return &PaymentService{ledger: l, hub: hub}
}

// RecordPayment records a payment for the authenticated member.
func (s *PaymentService) RecordPayment(ctx context.Context, req *connect.Request[api.RecordPaymentRequest]) (*connect.Response[api.RecordPaymentResponse], error) {
	slog.Info("RecordPayment request received",
		"trip_id", req.Msg.TripID,
		"expense_id", req.Msg.ExpenseID,
		"member", req.Msg.Member,
	)

	err := s.ledger.RecordPayment(ctx, models.PaymentSubmission{
		TripID:    req.Msg.TripID,
		ExpenseID: req.Msg.ExpenseID,
		Payer:     models.Principal(req.Msg.Payer),
		Member:    models.Principal(req.Msg.Member),
		Amount:    req.Msg.Amount,
		TxHash:    req.Msg.TxHash,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RecordPaymentResponse{}), nil
}

// GetPayments returns a trip's payment history.
func (s *PaymentService) GetPayments(ctx context.Context, req *connect.Request[api.GetPaymentsRequest]) (*connect.Response[api.GetPaymentsResponse], error) {
	slog.Info("GetPayments request received", "trip_id", req.Msg.TripID)

	records, err := s.ledger.GetPayments(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("GetPayments failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	payments := make([]api.Payment, len(records))
	for i, r := range records {
		payments[i] = api.Payment{
			ExpenseID: r.ExpenseID,
			Payer:     r.Payer.String(),
			Member:    r.Member.String(),
			Amount:    r.Amount,
			TxHash:    r.TxHash,
			Timestamp: r.Timestamp,
		}
	}

	slog.Info("GetPayments successful", "trip_id", req.Msg.TripID, "count", len(payments))

	return connect.NewResponse(&api.GetPaymentsResponse{Payments: payments}), nil
}

// IsPaid reports whether a member has paid an expense.
func (s *PaymentService) IsPaid(ctx context.Context, req *connect.Request[api.IsPaidRequest]) (*connect.Response[api.IsPaidResponse], error) {
	slog.Info("IsPaid request received", "expense_id", req.Msg.ExpenseID, "member", req.Msg.Member)

	paid, err := s.ledger.IsPaid(ctx, req.Msg.ExpenseID, models.Principal(req.Msg.Member))
	if err != nil {
		slog.Error("IsPaid failed", "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&api.IsPaidResponse{Paid: paid}), nil
}

// WatchPayments streams payment events until the client goes away. With
// Since set, the trip's stored payments from that time on are sent first.
func (s *PaymentService) WatchPayments(ctx context.Context, req *connect.Request[api.WatchPaymentsRequest], stream *connect.ServerStream[api.PaymentEvent]) error {
	slog.Info("WatchPayments request received", "trip_id", req.Msg.TripID, "since", req.Msg.Since)

	if req.Msg.Since > 0 && req.Msg.TripID == "" {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("since requires trip_id"))
	}

	// Subscribe before replaying so nothing recorded in between is missed.
	ch, cancel := s.hub.Subscribe(req.Msg.TripID, watchBuffer)
	defer cancel()

	replayed, err := s.replay(ctx, req.Msg.TripID, req.Msg.Since, stream)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("WatchPayments closed", "trip_id", req.Msg.TripID)
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if replayed[paymentKey(ev.Payload.ExpenseID, ev.Payload.Member)] {
				continue
			}
			err := stream.Send(&api.PaymentEvent{
				EventID:   ev.ID,
				TripID:    ev.Payload.TripID,
				ExpenseID: ev.Payload.ExpenseID,
				Member:    ev.Payload.Member.String(),
				Amount:    ev.Payload.Amount,
			})
			if err != nil {
				slog.Warn("WatchPayments send failed", "trip_id", req.Msg.TripID, "error", err)
				return err
			}
		}
	}
}

// replay sends the stored payments of tripID recorded at or after since and
// returns the keys it sent. A zero since replays nothing.
func (s *PaymentService) replay(ctx context.Context, tripID string, since uint64, stream *connect.ServerStream[api.PaymentEvent]) (map[string]bool, error) {
	sent := make(map[string]bool)
	if since == 0 {
		return sent, nil
	}

	records, err := s.ledger.GetPayments(ctx, tripID)
	if err != nil {
		slog.Error("WatchPayments replay failed", "trip_id", tripID, "error", err)
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	for _, r := range records {
		if r.Timestamp < since {
			continue
		}
		err := stream.Send(&api.PaymentEvent{
			TripID:    tripID,
			ExpenseID: r.ExpenseID,
			Member:    r.Member.String(),
			Amount:    r.Amount,
			Replayed:  true,
		})
		if err != nil {
			return nil, err
		}
		sent[paymentKey(r.ExpenseID, r.Member)] = true
	}
	return sent, nil
}

// paymentKey identifies a payment; each (expense, member) pair is paid once.
func paymentKey(expenseID string, member models.Principal) string {
	return storage.ExpensePaid(expenseID, member).String()
}

// toConnectError maps ledger errors onto Connect codes and attaches the
// error kind as metadata.
func toConnectError(err error) *connect.Error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, auth.ErrNoPrincipal):
		code = connect.CodeUnauthenticated
	case errors.Is(err, ledger.ErrUnauthorized):
		code = connect.CodePermissionDenied
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrEmptyID):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ledger.ErrAlreadyPaid):
		code = connect.CodeAlreadyExists
	case errors.Is(err, storage.ErrTxConflict):
		// Nothing was written; the caller may resend the same request.
		code = connect.CodeAborted
	}

	connectErr := connect.NewError(code, err)
	if kind := ledger.Kind(err); kind != "" {
		connectErr.Meta().Set(api.ErrorKindHeader, kind)
	}
	return connectErr
}
