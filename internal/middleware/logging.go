package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/settlex/internal/auth"
)

// RequestIDHeader carries a per-call identifier echoed back to the client.
const RequestIDHeader = "Settlex-Request-Id"

// LoggingInterceptor returns a Connect interceptor that logs every RPC call,
// unary and streaming. It logs the procedure name, principal, duration, and
// any error codes/messages.
func LoggingInterceptor() connect.Interceptor {
	return loggingInterceptor{}
}

type loggingInterceptor struct{}

func (loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		requestID := requestIDFrom(req.Header())

		resp, err := next(ctx, req)
		if err == nil {
			resp.Header().Set(RequestIDHeader, requestID)
		}
		logCall(ctx, req.Spec().Procedure, requestID, start, err)
		return resp, err
	}
}

func (loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		requestID := requestIDFrom(conn.RequestHeader())
		conn.ResponseHeader().Set(RequestIDHeader, requestID)

		slog.Info("RPC stream opened",
			"procedure", conn.Spec().Procedure,
			"request_id", requestID,
		)
		err := next(ctx, conn)
		logCall(ctx, conn.Spec().Procedure, requestID, start, err)
		return err
	}
}

func requestIDFrom(h http.Header) string {
	if id := h.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.New().String()
}

func logCall(ctx context.Context, procedure, requestID string, start time.Time, err error) {
	principal := auth.PrincipalFrom(ctx) // empty if unauthenticated
	duration := time.Since(start).Milliseconds()

	if err == nil {
		slog.Info("RPC ok",
			"procedure", procedure,
			"request_id", requestID,
			"principal", principal,
			"duration_ms", duration,
		)
		return
	}

	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		connectErr.Meta().Set(RequestIDHeader, requestID)
		slog.Warn("RPC error",
			"procedure", procedure,
			"request_id", requestID,
			"code", connectErr.Code(),
			"error", connectErr.Message(),
			"principal", principal,
			"duration_ms", duration,
		)
		return
	}
	slog.Error("RPC error",
		"procedure", procedure,
		"request_id", requestID,
		"error", err,
		"principal", principal,
		"duration_ms", duration,
	)
}
