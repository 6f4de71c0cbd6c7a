package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/health"
	httphandler "github.com/kjstillabower/weather-dashboard/internal/http"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/traffic"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := observability.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := loadConfig(cmd)
			if err != nil {
				logger.Error("config", zap.Error(err))
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// server is a configured HTTP server plus the pieces graceful shutdown needs.
type server struct {
	app      *app
	srv      *http.Server
	monitor  *health.Monitor
	inFlight *httphandler.InFlightTracker
	warmer   *cache.CacheWarmer
}

func newServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*server, error) {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tracker := traffic.New(nil, 0)
	monitor := health.NewMonitor(health.Config{
		OverloadWindow:         cfg.OverloadWindow,
		OverloadThresholdPct:   cfg.OverloadThresholdPct,
		RateLimitRPS:           float64(cfg.RateLimitRPS),
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
	}, tracker, logger, nil)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	deps := httphandler.Deps{
		Weather:        a.service,
		Locations:      a.resolver,
		Backgrounds:    a.backgrounds,
		Monitor:        monitor,
		Tracker:        tracker,
		Logger:         logger,
		Version:        version,
		QueryMaxLength: cfg.SearchQueryMaxLength,
	}
	if a.caches.mem != nil {
		deps.Cache = a.caches.mem
	}
	if a.caches.pinger != nil {
		deps.HealthChecks = map[string]health.Pinger{"cache": a.caches.pinger}
	}

	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(httphandler.NewHandler(deps), logger, httphandler.RouterConfig{
		RequestTimeout:    cfg.RequestTimeout,
		Limiter:           limiter,
		Tracker:           tracker,
		InFlight:          inFlight,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		AllowedOrigins:    cfg.AllowedOrigins,
		StaticDir:         cfg.StaticDir,
		TestingMode:       cfg.TestingMode,
	})
	if cfg.TestingMode {
		logger.Warn("testing mode enabled; /debug/cache exposed")
	}

	s := &server{
		app:      a,
		monitor:  monitor,
		inFlight: inFlight,
		srv: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		},
	}
	if len(cfg.WarmLocations) > 0 {
		s.warmer = cache.NewCacheWarmer(a.service, logger, cfg.WarmForecastDays, 30*time.Second)
	}
	return s, nil
}

// startWarming warms once synchronously when no interval is configured, otherwise hands the
// locations to the scheduler, which runs immediately and then every interval.
func (s *server) startWarming(ctx context.Context) {
	if s.warmer == nil {
		return
	}
	cfg := s.app.cfg
	if cfg.WarmInterval <= 0 {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			s.app.logger.Warn("cache warming failed", zap.Error(err))
		}
		return
	}
	if err := s.warmer.Start(cfg.WarmLocations, cfg.WarmInterval); err != nil {
		s.app.logger.Error("cache warming not scheduled", zap.Error(err))
	}
}

// shutdown flags the service as shutting down, stops accepting connections, waits for
// in-flight requests and flushes telemetry.
func (s *server) shutdown() {
	cfg, logger := s.app.cfg, s.app.logger
	logger.Info("graceful shutdown triggered")
	s.monitor.SetShuttingDown(true)
	if s.warmer != nil {
		s.warmer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", s.inFlight.Count()))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := s.inFlight.WaitForZero(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", s.inFlight.Count()))
	}

	s.app.Close()
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	s, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup", zap.Error(err))
		return err
	}
	s.startWarming(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", s.srv.Addr), zap.String("version", version))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		logger.Error("server", zap.Error(err))
		s.shutdown()
		return err
	}
}
