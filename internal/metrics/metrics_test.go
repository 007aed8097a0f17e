package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.PaymentRecorded()
	m.PaymentRecorded()
	m.PaymentRejected("already_paid")
	m.PaymentRejected("")
	m.SlotsPurged(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.recorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("already_paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("internal")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.purged))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.PaymentRecorded()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "settlex_payments_recorded_total 1"))
}

type fakeStream struct {
	connect.StreamingHandlerConn
}

func (fakeStream) Spec() connect.Spec {
	return connect.Spec{Procedure: "/settlex.v1.PaymentService/WatchPayments", StreamType: connect.StreamTypeServer}
}
func (fakeStream) RequestHeader() http.Header { return http.Header{} }

func TestInterceptorObservesStreams(t *testing.T) {
	m := New()
	interceptor := m.Interceptor()

	ok := interceptor.WrapStreamingHandler(func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return nil
	})
	require.NoError(t, ok(context.Background(), fakeStream{}))

	failing := interceptor.WrapStreamingHandler(func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return connect.NewError(connect.CodeInvalidArgument, errors.New("bad request"))
	})
	require.Error(t, failing(context.Background(), fakeStream{}))

	assert.Equal(t, 2, testutil.CollectAndCount(m.rpcDuration))
	body := scrape(t, m)
	assert.Contains(t, body, `settlex_rpc_duration_seconds_count{code="ok",procedure="/settlex.v1.PaymentService/WatchPayments"} 1`)
	assert.Contains(t, body, `settlex_rpc_duration_seconds_count{code="invalid_argument",procedure="/settlex.v1.PaymentService/WatchPayments"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
