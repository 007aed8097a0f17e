package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the PaymentService.
const ServiceName = "settlex.v1.PaymentService"

// Procedure paths of the PaymentService.
const (
	RecordPaymentProcedure = "/" + ServiceName + "/RecordPayment"
	GetPaymentsProcedure   = "/" + ServiceName + "/GetPayments"
	IsPaidProcedure        = "/" + ServiceName + "/IsPaid"
	WatchPaymentsProcedure = "/" + ServiceName + "/WatchPayments"
)

// ErrorKindHeader is the error metadata key naming the ledger error kind.
const ErrorKindHeader = "Settlex-Error-Kind"

// ErrorKind returns the ledger error kind attached to an RPC error
// ("invalid_amount", "already_paid", "empty_id", "unauthorized", "conflict"),
// or "".
func ErrorKind(err error) string {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return ""
	}
	return connectErr.Meta().Get(ErrorKindHeader)
}

// PaymentServiceHandler is implemented by the server.
type PaymentServiceHandler interface {
	RecordPayment(context.Context, *connect.Request[RecordPaymentRequest]) (*connect.Response[RecordPaymentResponse], error)
	GetPayments(context.Context, *connect.Request[GetPaymentsRequest]) (*connect.Response[GetPaymentsResponse], error)
	IsPaid(context.Context, *connect.Request[IsPaidRequest]) (*connect.Response[IsPaidResponse], error)
	WatchPayments(context.Context, *connect.Request[WatchPaymentsRequest], *connect.ServerStream[PaymentEvent]) error
}

// NewPaymentServiceHandler builds an HTTP handler for svc. It returns the path
// to mount the handler on.
func NewPaymentServiceHandler(svc PaymentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	recordPayment := connect.NewUnaryHandler(RecordPaymentProcedure, svc.RecordPayment, opts...)
	getPayments := connect.NewUnaryHandler(GetPaymentsProcedure, svc.GetPayments, opts...)
	isPaid := connect.NewUnaryHandler(IsPaidProcedure, svc.IsPaid, opts...)
	watchPayments := connect.NewServerStreamHandler(WatchPaymentsProcedure, svc.WatchPayments, opts...)

	prefix := "/" + ServiceName + "/"
	return prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RecordPaymentProcedure:
			recordPayment.ServeHTTP(w, r)
		case GetPaymentsProcedure:
			getPayments.ServeHTTP(w, r)
		case IsPaidProcedure:
			isPaid.ServeHTTP(w, r)
		case WatchPaymentsProcedure:
			watchPayments.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// PaymentServiceClient calls a remote PaymentService.
type PaymentServiceClient struct {
	recordPayment *connect.Client[RecordPaymentRequest, RecordPaymentResponse]
	getPayments   *connect.Client[GetPaymentsRequest, GetPaymentsResponse]
	isPaid        *connect.Client[IsPaidRequest, IsPaidResponse]
	watchPayments *connect.Client[WatchPaymentsRequest, PaymentEvent]
}

// NewPaymentServiceClient creates a client for the service at baseURL
// (for example http://localhost:8080).
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PaymentServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &PaymentServiceClient{
		recordPayment: connect.NewClient[RecordPaymentRequest, RecordPaymentResponse](httpClient, baseURL+RecordPaymentProcedure, opts...),
		getPayments:   connect.NewClient[GetPaymentsRequest, GetPaymentsResponse](httpClient, baseURL+GetPaymentsProcedure, opts...),
		isPaid:        connect.NewClient[IsPaidRequest, IsPaidResponse](httpClient, baseURL+IsPaidProcedure, opts...),
		watchPayments: connect.NewClient[WatchPaymentsRequest, PaymentEvent](httpClient, baseURL+WatchPaymentsProcedure, opts...),
	}
}

// WithBearerToken returns a client option sending token on every unary call.
func WithBearerToken(token string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}))
}

// RecordPayment calls settlex.v1.PaymentService.RecordPayment.
func (c *PaymentServiceClient) RecordPayment(ctx context.Context, req *connect.Request[RecordPaymentRequest]) (*connect.Response[RecordPaymentResponse], error) {
	return c.recordPayment.CallUnary(ctx, req)
}

// GetPayments calls settlex.v1.PaymentService.GetPayments.
func (c *PaymentServiceClient) GetPayments(ctx context.Context, req *connect.Request[GetPaymentsRequest]) (*connect.Response[GetPaymentsResponse], error) {
	return c.getPayments.CallUnary(ctx, req)
}

// IsPaid calls settlex.v1.PaymentService.IsPaid.
func (c *PaymentServiceClient) IsPaid(ctx context.Context, req *connect.Request[IsPaidRequest]) (*connect.Response[IsPaidResponse], error) {
	return c.isPaid.CallUnary(ctx, req)
}

// WatchPayments calls settlex.v1.PaymentService.WatchPayments.
func (c *PaymentServiceClient) WatchPayments(ctx context.Context, req *connect.Request[WatchPaymentsRequest]) (*connect.ServerStreamForClient[PaymentEvent], error) {
	return c.watchPayments.CallServerStream(ctx, req)
}
