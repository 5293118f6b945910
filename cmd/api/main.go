package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/Floyce/OCR-Sorter/internal/adapters/http"
	"github.com/Floyce/OCR-Sorter/internal/bootstrap"
	"github.com/Floyce/OCR-Sorter/internal/config"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/export/xlsx"
	"github.com/Floyce/OCR-Sorter/internal/observability/logging"
	"github.com/Floyce/OCR-Sorter/internal/observability/metrics"
)

const service = "api"

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(service, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    service,
		Logger:     logger,
		Registerer: serverMetrics.Registry(),
	})
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Runner, app.Organizer, app.Ingestor,
		httpadapter.WithWorkbook(xlsx.Write),
		httpadapter.WithMetrics(serverMetrics),
		httpadapter.WithLogger(logger),
	)
	apiServer := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux(serverMetrics.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listener, err := net.Listen("tcp", apiServer.Addr)
		if err != nil {
			return err
		}
		if cfg.APIMaxConnections > 0 {
			listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
		}
		logger.Info("api_listening", "addr", apiServer.Addr, "max_connections", cfg.APIMaxConnections)
		return ignoreClosed(apiServer.Serve(listener))
	})
	g.Go(func() error {
		logger.Info("metrics_listening", "addr", metricsServer.Addr)
		return ignoreClosed(metricsServer.ListenAndServe())
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Runner.Cancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logger.Error("api_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("api_stopped")
}

func metricsMux(handler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	return mux
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
