package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-scheduling/internal/api/router"
	"github.com/wolfman30/clinic-scheduling/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/internal/scheduling"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting clinic-scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"lock_backend", cfg.LockBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	rt, err := bootstrap.BuildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	handler, err := newHandler(cfg, rt, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newHandler wires the scheduling services over rt and returns the root router.
func newHandler(cfg *appconfig.Config, rt *bootstrap.Runtime, logger *logging.Logger) (http.Handler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	metricsHandler, schedulingMetrics := setupMetrics()

	deps := rt.SchedulingDeps(scheduling.DefaultRules().WithLocation(loc), logger)
	deps.Metrics = schedulingMetrics

	var history scheduling.HistoryReader
	if rt.Audit != nil {
		history = rt.Audit
	}
	schedulingHandler := scheduling.NewHandler(
		scheduling.NewScheduleCatalog(deps),
		scheduling.NewAppointmentLifecycle(deps),
		history,
		logger,
	)

	readiness := map[string]router.Pinger{}
	if rt.Pool != nil {
		readiness["postgres"] = rt.Pool
	}
	if rt.Redis != nil {
		readiness["redis"] = router.PingFunc(func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() })
	}

	return router.New(&router.Config{
		Logger:             logger,
		Scheduling:         schedulingHandler,
		Metrics:            schedulingMetrics,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Readiness:          readiness,
	}), nil
}

func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewSchedulingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}
