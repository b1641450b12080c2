package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/dataviz-search/internal/adapters/http"
	mcpadapter "github.com/kirillkom/dataviz-search/internal/adapters/mcp"
	"github.com/kirillkom/dataviz-search/internal/bootstrap"
	"github.com/kirillkom/dataviz-search/internal/config"
	"github.com/kirillkom/dataviz-search/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(bootstrap.APIServiceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []httpadapter.RouterOption{httpadapter.WithMetrics(app.Metrics)}
	for name, check := range app.HealthChecks {
		opts = append(opts, httpadapter.WithHealthCheck(name, check))
	}
	if cfg.MCPEnabled {
		opts = append(opts, httpadapter.WithMCPHandler(mcpadapter.New(app.Search, app.Describer).Handler()))
	}

	router := httpadapter.NewRouter(cfg, app.Turns, app.Sessions, app.Images, opts...).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "mcp", cfg.MCPEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}
