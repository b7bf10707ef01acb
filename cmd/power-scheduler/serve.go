package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/monitor"
	"github.com/t77yq/power-scheduler/internal/scheduler"
)

const (
	reconcileJob      = "reconcile"
	historyCleanupJob = "history-cleanup"
	shutdownTimeout   = 10 * time.Second
)

var runAtStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run evaluation passes on the configured cron schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runAtStart, "run-at-start", false, "run one pass immediately on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, reg)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger
	reg.MustRegister(monitor.NewHostCollector(logger))

	cron := scheduler.NewCronScheduler(logger)
	err = cron.AddJob(reconcileJob, a.cfg.Schedule.Cron, func(ctx context.Context) error {
		_, err := a.runner.RunOnce(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if a.history != nil && a.cfg.History.Retention > 0 {
		retention := a.cfg.History.Retention
		err = cron.AddJob(historyCleanupJob, "@daily", func(ctx context.Context) error {
			_, err := a.history.DeleteBefore(ctx, time.Now().Add(-retention))
			return err
		})
		if err != nil {
			return err
		}
	}

	var srv *http.Server
	if a.cfg.Metrics.Bind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		srv = &http.Server{
			Addr:              a.cfg.Metrics.Bind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("Metrics server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
				stop()
			}
		}()
	}

	if runAtStart {
		if _, err := a.runner.RunOnce(ctx); err != nil {
			logger.Error("Initial evaluation pass failed", zap.Error(err))
		}
	}

	cron.Start()
	logger.Info("Power scheduler started",
		zap.String("cron", a.cfg.Schedule.Cron),
		zap.Time("next_run", cron.Next(reconcileJob)),
		zap.Bool("dry_run", a.cfg.Schedule.DryRun))

	<-ctx.Done()
	logger.Info("Shutting down...")

	cron.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown metrics server: %w", err)
		}
	}
	return nil
}
