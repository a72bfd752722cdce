// Command notesyncd keeps a local note database in sync with the remote store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/note-sync/internal/config"
	"github.com/and161185/note-sync/internal/daemon"
	"github.com/and161185/note-sync/internal/errs"
	"github.com/and161185/note-sync/internal/metrics"
	grpcserver "github.com/and161185/note-sync/internal/server/grpc"
	"github.com/and161185/note-sync/internal/service"
	"github.com/and161185/note-sync/internal/session"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, opens the stores, and runs the sync loop with health and metrics endpoints.
func main() {
	cfg, _, err := config.Load("notesyncd", os.Args[1:], os.Environ())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("tag", cfg.Tag),
		zap.Duration("interval", cfg.Interval),
		zap.String("policy", cfg.PolicyValue().String()),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func validate(cfg *config.Config) error {
	if err := cfg.ValidateSync(); err != nil {
		return err
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", errs.ErrInvalidConfig)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := newRegistry()

	sess, err := session.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	rec := sess.Reconciler(service.WithMetrics(metrics.New(reg)))

	// Health
	gs := grpcserver.New(logger, cfg.Reflection, reg)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	errCh := make(chan error, 2)
	go func() { errCh <- gs.Serve(lis) }()
	defer gs.Shutdown(shutdownTimeout)

	// Metrics
	if cfg.MetricsAddr != "" {
		hs := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = hs.Shutdown(sctx)
		}()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = daemon.Run(loopCtx, rec, cfg.Interval, logger, func(err error) { gs.SetServing(err == nil) })
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("server error", zap.Error(err))
	}
	gs.SetServing(false)
	cancel()
	<-done
	return err
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func metricsMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
