package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/settlex/internal/auth"
	"github.com/mmynk/settlex/internal/models"
)

type ping struct{}

// call runs interceptor around a handler that captures the principal.
func call(t *testing.T, interceptor connect.UnaryInterceptorFunc, header string) (models.Principal, error) {
	t.Helper()
	var seen models.Principal
	handler := interceptor(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seen = auth.PrincipalFrom(ctx)
		return connect.NewResponse(&ping{}), nil
	})

	req := connect.NewRequest(&ping{})
	if header != "" {
		req.Header().Set("Authorization", header)
	}
	_, err := handler(context.Background(), req)
	return seen, err
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc", "abc", nil},
		{"missing", "", "", auth.ErrMissingToken},
		{"wrong scheme", "Basic abc", "", auth.ErrInvalidToken},
		{"extra parts", "Bearer a b", "", auth.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error: expected %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("token: expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.Generate("GMEMBER")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	got, err := call(t, OptionalAuth(jwtManager), "Bearer "+token)
	if err != nil || got != "GMEMBER" {
		t.Errorf("valid token: got principal %q, err %v", got, err)
	}

	got, err = call(t, OptionalAuth(jwtManager), "Bearer nope")
	if err != nil || got != "" {
		t.Errorf("invalid token: got principal %q, err %v", got, err)
	}

	got, err = call(t, OptionalAuth(jwtManager), "")
	if err != nil || got != "" {
		t.Errorf("no token: got principal %q, err %v", got, err)
	}
}

// fakeStream is the server side of a streaming call with no messages.
type fakeStream struct {
	connect.StreamingHandlerConn
	reqHeader  http.Header
	respHeader http.Header
}

func newFakeStream() *fakeStream {
	return &fakeStream{reqHeader: http.Header{}, respHeader: http.Header{}}
}

func (s *fakeStream) Spec() connect.Spec {
	return connect.Spec{Procedure: "/settlex.v1.PaymentService/WatchPayments", StreamType: connect.StreamTypeServer}
}
func (s *fakeStream) RequestHeader() http.Header  { return s.reqHeader }
func (s *fakeStream) ResponseHeader() http.Header { return s.respHeader }

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggingInterceptorStreams(t *testing.T) {
	logs := captureLogs(t)
	handler := LoggingInterceptor().WrapStreamingHandler(func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return nil
	})

	stream := newFakeStream()
	stream.reqHeader.Set(RequestIDHeader, "req-42")
	if err := handler(context.Background(), stream); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := stream.respHeader.Get(RequestIDHeader); got != "req-42" {
		t.Errorf("request id: expected req-42, got %q", got)
	}
	out := logs.String()
	for _, want := range []string{"RPC stream opened", "RPC ok", "WatchPayments"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in logs, got %s", want, out)
		}
	}
}

func TestLoggingInterceptorStreamError(t *testing.T) {
	logs := captureLogs(t)
	handler := LoggingInterceptor().WrapStreamingHandler(func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("since requires trip_id"))
	})

	stream := newFakeStream()
	err := handler(context.Background(), stream)

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect error, got %v", err)
	}
	if connectErr.Meta().Get(RequestIDHeader) == "" {
		t.Error("expected generated request id on the error")
	}
	if !strings.Contains(logs.String(), "RPC error") {
		t.Errorf("expected error to be logged, got %s", logs.String())
	}
}
