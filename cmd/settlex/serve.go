package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/settlex/internal/auth"
	"github.com/mmynk/settlex/internal/config"
	"github.com/mmynk/settlex/internal/events"
	"github.com/mmynk/settlex/internal/ledger"
	"github.com/mmynk/settlex/internal/metrics"
	"github.com/mmynk/settlex/internal/middleware"
	"github.com/mmynk/settlex/internal/service"
	"github.com/mmynk/settlex/internal/storage"
	"github.com/mmynk/settlex/internal/storage/memory"
	"github.com/mmynk/settlex/internal/storage/redis"
	"github.com/mmynk/settlex/internal/storage/sqlite"
	"github.com/mmynk/settlex/pkg/api"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().String("store", "", "storage backend: sqlite, redis or memory")
	cmd.Flags().String("db-path", "", "SQLite database path")
	cmd.Flags().String("redis-url", "", "Redis URL")
	cmd.Flags().String("nats-url", "", "NATS URL for payment notifications (empty disables)")
	bindFlags(a.v, cmd.Flags(), map[string]string{
		"addr":      "addr",
		"store":     "store",
		"db_path":   "db-path",
		"redis_url": "redis-url",
		"nats_url":  "nats-url",
	})

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required to serve (set SETTLEX_JWT_SECRET)")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("Storage initialized", "store", cfg.Store)

	m := metrics.New()
	hub := events.NewHub()
	sinks := []events.Sink{hub}

	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(events.NATSConfig{
			URL:            cfg.NATSURL,
			Name:           "settlex",
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
			ConnectTimeout: 5 * time.Second,
		})
		if err != nil {
			return err
		}
		defer nc.Close()
		sinks = append(sinks, events.NewNATSSink(nc, cfg.NATSSubject))
		slog.Info("Publishing payment events to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
	}

	l := ledger.New(store, auth.ContextAuthenticator{},
		ledger.WithEventSink(events.Fanout(sinks...)),
		ledger.WithObserver(m),
	)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	if purger, ok := store.(storage.Purger); ok && cfg.SweepInterval > 0 {
		go sweep(ctx, purger, cfg.SweepInterval, m)
	}

	server := &http.Server{
		Addr: cfg.Addr,
		// Wrap with h2c for HTTP/2 without TLS (required for Connect streaming)
		Handler:           h2c.NewHandler(newHandler(l, hub, jwtManager, m), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newHandler assembles the HTTP surface: the Connect service, metrics and a
// health check, with request logging and CORS around all of it.
func newHandler(l *ledger.Ledger, hub *events.Hub, jwtManager *auth.JWTManager, m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()

	path, handler := api.NewPaymentServiceHandler(
		service.NewPaymentService(l, hub),
		connect.WithInterceptors(
			middleware.OptionalAuth(jwtManager),
			middleware.LoggingInterceptor(),
			m.Interceptor(),
		),
	)
	mux.Handle(path, handler)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return loggingMiddleware(corsMiddleware(mux))
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return sqlite.New(cfg.DBPath)
	case config.StoreRedis:
		return redis.New(ctx, cfg.RedisURL)
	case config.StoreMemory:
		slog.Warn("Using in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// sweep periodically deletes expired slots from stores that do not expire
// them natively.
func sweep(ctx context.Context, purger storage.Purger, interval time.Duration, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.Purge(ctx)
			if err != nil {
				slog.Error("Purge failed", "error", err)
				continue
			}
			m.SlotsPurged(n)
			if n > 0 {
				slog.Info("Purged expired slots", "count", n)
			}
		}
	}
}
