package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/orgadmin/pkg/app"
	"github.com/platinummonkey/orgadmin/pkg/config"
	"github.com/platinummonkey/orgadmin/pkg/observability"
)

var configPath = flag.String("config", os.Getenv("ORGADMIN_CONFIG"), "Path to the YAML configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), observability.LogFormat(cfg.Observability.LogFormat), nil)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.InitOTel(ctx, cfg.Observability.OTel, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown failed")
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := a.Handler(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      observability.InstrumentHandler(handler, "orgadmin"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Backup.Enabled {
		runner, err := a.BackupRunner(ctx)
		if err != nil {
			return err
		}
		if err := runner.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			runner.Stop(stopCtx)
			return nil
		})
	}

	if cfg.ImportWatch.Enabled {
		watcher, err := a.ImportWatcher()
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	return g.Wait()
}
