// Package metrics exposes Prometheus instrumentation for the ledger and its
// RPC surface.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records ledger outcomes and RPC latencies.
// It implements ledger.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	recorded    prometheus.Counter
	rejected    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	purged      prometheus.Counter
}

// New creates Metrics registered on a fresh registry, including Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlex",
			Name:      "payments_recorded_total",
			Help:      "Payments successfully recorded.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "settlex",
			Name:      "payments_rejected_total",
			Help:      "Payment submissions rejected, by error kind.",
		}, []string{"kind"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "settlex",
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling latency by procedure and code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure", "code"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "settlex",
			Name:      "slots_purged_total",
			Help:      "Expired storage slots removed by the sweeper.",
		}),
	}
	reg.MustRegister(
		m.recorded, m.rejected, m.rpcDuration, m.purged,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// PaymentRecorded counts a successful payment.
func (m *Metrics) PaymentRecorded() {
	m.recorded.Inc()
}

// PaymentRejected counts a failed payment by kind. An empty kind is an
// infrastructure failure and is counted as "internal".
func (m *Metrics) PaymentRejected(kind string) {
	if kind == "" {
		kind = "internal"
	}
	m.rejected.WithLabelValues(kind).Inc()
}

// SlotsPurged counts slots removed by expiration housekeeping.
func (m *Metrics) SlotsPurged(n int64) {
	m.purged.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Interceptor returns a Connect interceptor observing RPC latency. Streams
// are observed when they end.
func (m *Metrics) Interceptor() connect.Interceptor {
	return rpcInterceptor{m}
}

type rpcInterceptor struct {
	m *Metrics
}

func (i rpcInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		i.m.observeRPC(req.Spec().Procedure, start, err)
		return resp, err
	}
}

func (i rpcInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i rpcInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		i.m.observeRPC(conn.Spec().Procedure, start, err)
		return err
	}
}

func (m *Metrics) observeRPC(procedure string, start time.Time, err error) {
	code := "ok"
	if err != nil {
		code = connect.CodeUnknown.String()
		var connectErr *connect.Error
		if errors.As(err, &connectErr) {
			code = connectErr.Code().String()
		}
	}
	m.rpcDuration.WithLabelValues(procedure, code).Observe(time.Since(start).Seconds())
}
