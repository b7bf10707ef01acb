package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/config"
	"github.com/t77yq/power-scheduler/internal/monitor"
	"github.com/t77yq/power-scheduler/internal/provider/docker"
	"github.com/t77yq/power-scheduler/internal/provider/ec2"
	"github.com/t77yq/power-scheduler/internal/scheduler"
	"github.com/t77yq/power-scheduler/internal/service"
	"github.com/t77yq/power-scheduler/internal/storage"
)

const natsConnectRetries = 5

// app holds the components shared by the commands
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *scheduler.Runner
	history *storage.SQLiteTransitionHistory
	closers []func()
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.Named(cfg.Name), nil
}

// newApp loads the configuration, applies overrides and wires listers,
// history, events and metrics into a runner. reg may be nil to disable metrics.
func newApp(ctx context.Context, reg prometheus.Registerer, overrides ...func(*config.Config)) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	logger, err := newLogger(cfg.App)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx, reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, reg prometheus.Registerer) error {
	listers, err := a.listers(ctx)
	if err != nil {
		return err
	}

	var opts []scheduler.RunnerOption

	if a.cfg.History.Path != "" {
		history, err := storage.NewSQLiteTransitionHistory(a.logger, a.cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open transition history: %w", err)
		}
		a.history = history
		a.closers = append(a.closers, func() { history.Close() })
		opts = append(opts, scheduler.WithRecorder(history))
	}

	if a.cfg.NATS.Enabled {
		nc, err := connectNATS(a.cfg, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { nc.Drain() })

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		events, err := service.NewEventService(ctx, js, a.cfg.NATS.Stream, a.logger)
		if err != nil {
			return err
		}
		opts = append(opts, scheduler.WithPublisher(events))
	}

	if reg != nil {
		metrics, err := monitor.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, scheduler.WithObserver(metrics))
	}

	a.runner, err = scheduler.NewRunner(listers, scheduler.RunnerConfig{
		Workers:         a.cfg.Schedule.Workers,
		DryRun:          a.cfg.Schedule.DryRun,
		ResourceTimeout: a.cfg.Schedule.Timeout,
		MaxAttempts:     a.cfg.Retry.MaxAttempts,
		Backoff: &scheduler.ExponentialBackoff{
			InitialDelay: a.cfg.Retry.InitialDelay,
			MaxDelay:     a.cfg.Retry.MaxDelay,
			Multiplier:   a.cfg.Retry.Multiplier,
		},
	}, a.logger, opts...)
	return err
}

func (a *app) listers(ctx context.Context) ([]scheduler.Lister, error) {
	var listers []scheduler.Lister

	if a.cfg.EC2.Enabled {
		awsCfg, err := ec2.LoadConfig(ctx, ec2.Credentials{
			AccessKeyID:     a.cfg.EC2.AccessKeyID,
			SecretAccessKey: a.cfg.EC2.SecretAccessKey,
			Profile:         a.cfg.EC2.Profile,
		})
		if err != nil {
			return nil, err
		}
		listers = append(listers, ec2.NewLister(
			ec2.NewClientFactory(awsCfg),
			a.cfg.Schedule.Tag,
			a.cfg.EC2.Regions,
			awsCfg.Region,
			a.logger,
		))
	}

	if a.cfg.Docker.Enabled {
		cli, err := docker.NewClient(a.cfg.Docker.Host)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { cli.Close() })
		listers = append(listers, docker.NewLister(cli, a.cfg.Docker.Label, a.cfg.Docker.StopTimeout, a.logger))
	}

	return listers, nil
}

// Close releases every connection in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.logger.Sync()
}

// connectNATS connects with reconnect handling, retrying the initial dial
func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	logger = logger.Named("nats")
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS connection error", fields...)
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var errs []error
	for i := 0; i < natsConnectRetries; i++ {
		nc, err := nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
			return nc, nil
		}
		errs = append(errs, err)
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", natsConnectRetries, errors.Join(errs...))
}
