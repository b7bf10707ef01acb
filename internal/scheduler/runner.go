package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/t77yq/power-scheduler/internal/model"
	"github.com/t77yq/power-scheduler/internal/resource"
	"github.com/t77yq/power-scheduler/internal/schedule"
)

// RunnerConfig tunes a Runner
type RunnerConfig struct {
	Workers         int
	DryRun          bool
	ResourceTimeout time.Duration
	MaxAttempts     int
	Backoff         RetryStrategy
}

// RunnerOption configures optional Runner collaborators
type RunnerOption func(*Runner)

// WithRecorder stores every transition record
func WithRecorder(rec Recorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithPublisher publishes every attempted transition
func WithPublisher(pub Publisher) RunnerOption {
	return func(r *Runner) { r.publisher = pub }
}

// WithObserver reports pass statistics
func WithObserver(obs Observer) RunnerOption {
	return func(r *Runner) { r.observer = obs }
}

// WithClock replaces time.Now
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

// Runner performs evaluation passes over every configured lister
type Runner struct {
	logger    *zap.Logger
	listers   []Lister
	cfg       RunnerConfig
	recorder  Recorder
	publisher Publisher
	observer  Observer
	clock     func() time.Time
}

// NewRunner creates a runner over listers
func NewRunner(listers []Lister, cfg RunnerConfig, logger *zap.Logger, opts ...RunnerOption) (*Runner, error) {
	if len(listers) == 0 {
		return nil, ErrNoListers
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Backoff == nil {
		cfg.Backoff = &ExponentialBackoff{
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
			Multiplier:   DefaultMultiplier,
		}
	}

	r := &Runner{
		logger:  logger.Named("runner"),
		listers: listers,
		cfg:     cfg,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// work is one scheduled resource of a pass
type work struct {
	candidate resource.Candidate
	schedule  *schedule.Schedule
}

// RunOnce lists all resources and reconciles the scheduled ones against the
// current time. Failures of a single lister or resource are logged, counted
// and recorded; they never abort the pass.
func (r *Runner) RunOnce(ctx context.Context) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.New().String(),
		StartedAt: r.clock(),
	}
	now := summary.StartedAt
	logger := r.logger.With(zap.String("run_id", summary.RunID))
	logger.Info("Starting evaluation pass", zap.Time("now", now), zap.Bool("dry_run", r.cfg.DryRun))

	var items []work
	for _, lister := range r.listers {
		candidates, err := lister.List(ctx)
		if err != nil {
			summary.ListerErrors++
			r.observeListerError(lister.Name())
			logger.Error("Failed to list resources",
				zap.String("provider", lister.Name()),
				zap.Error(err))
			continue
		}

		for _, c := range candidates {
			if c.Provider == "" {
				c.Provider = lister.Name()
			}
			summary.Listed++

			if c.Running == nil {
				summary.Ignored++
				logger.Debug("Ignoring resource in transitional state", zap.String("resource_id", c.ID))
				continue
			}
			if c.Schedule == "" {
				summary.Unscheduled++
				continue
			}

			sched, err := schedule.Parse(c.Schedule)
			if err != nil {
				summary.Invalid++
				r.observeInvalidSchedule(c.Provider)
				logger.Error("Invalid schedule",
					zap.String("resource_id", c.ID),
					zap.String("schedule", c.Schedule),
					zap.Error(err))
				r.record(ctx, logger, &model.Transition{
					ID:              uuid.New().String(),
					RunID:           summary.RunID,
					ResourceID:      c.ID,
					Provider:        c.Provider,
					Target:          schedule.Unchanged.String(),
					PreviousRunning: *c.Running,
					Result:          model.TransitionResultInvalidSchedule,
					Error:           err.Error(),
					Schedule:        c.Schedule,
					EvaluatedAt:     now,
				}, false)
				continue
			}

			items = append(items, work{candidate: c, schedule: sched})
		}
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Workers)
	for i, item := range items {
		if ctx.Err() != nil {
			summary.Skipped = len(items) - i
			break
		}
		g.Go(func() error {
			target, result := r.reconcile(ctx, logger, summary.RunID, now, item)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case result == model.TransitionResultFailed:
				summary.Failed++
			case target == schedule.On:
				summary.Started++
			case target == schedule.Off:
				summary.Stopped++
			default:
				summary.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = r.clock().Sub(summary.StartedAt)
	if r.observer != nil {
		r.observer.ObserveRun(summary.Duration)
	}

	logger.Info("Evaluation pass finished",
		zap.Int("listed", summary.Listed),
		zap.Int("started", summary.Started),
		zap.Int("stopped", summary.Stopped),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", summary.Failed),
		zap.Int("invalid", summary.Invalid),
		zap.Int("skipped", summary.Skipped),
		zap.Int("lister_errors", summary.ListerErrors),
		zap.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("evaluation pass interrupted: %w", err)
	}
	return summary, nil
}

// reconcile drives one resource and returns the applied target and the
// result of the transition, empty when nothing was attempted
func (r *Runner) reconcile(ctx context.Context, logger *zap.Logger, runID string, now time.Time, item work) (schedule.Target, model.TransitionResult) {
	c := item.candidate
	logger = logger.With(zap.String("resource_id", c.ID), zap.String("provider", c.Provider))

	verdict := item.schedule.EvaluateInstant(now)
	if r.observer != nil {
		r.observer.ObserveEvaluation(verdict.String())
	}

	// Candidates without an actuator are simulated like a dry run
	simulated := r.cfg.DryRun || c.Actuator == nil
	var act resource.Actuator
	if simulated {
		act = &resource.MemoryActuator{}
	} else {
		act = NewRetryActuator(c.Actuator, r.cfg.Backoff, r.cfg.MaxAttempts, logger)
	}
	res := resource.New(c.ID, *c.Running, item.schedule, act)

	if r.cfg.ResourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ResourceTimeout)
		defer cancel()
	}

	target, err := res.ReconcileAt(ctx, now)
	if err == nil && target == schedule.Unchanged {
		logger.Debug("Resource already in desired state", zap.Stringer("verdict", verdict))
		return target, ""
	}

	record := &model.Transition{
		ID:              uuid.New().String(),
		RunID:           runID,
		ResourceID:      c.ID,
		Provider:        c.Provider,
		Target:          target.String(),
		PreviousRunning: *c.Running,
		Result:          model.TransitionResultSucceeded,
		Schedule:        item.schedule.String(),
		EvaluatedAt:     now,
	}

	var terr *resource.TransitionError
	switch {
	case errors.As(err, &terr):
		record.Target = terr.Target.String()
		record.Result = model.TransitionResultFailed
		record.Error = terr.Err.Error()
		logger.Error("Failed to apply power transition",
			zap.String("target", record.Target),
			zap.Error(err))
	case err != nil:
		record.Target = verdict.String()
		record.Result = model.TransitionResultFailed
		record.Error = err.Error()
		logger.Error("Failed to reconcile resource", zap.Error(err))
	case simulated:
		record.Result = model.TransitionResultDryRun
		logger.Info("Dry run: transition not applied",
			zap.String("target", record.Target),
			zap.Bool("has_actuator", c.Actuator != nil))
	default:
		logger.Info("Power transition applied", zap.String("target", record.Target))
	}

	if r.observer != nil {
		r.observer.ObserveTransition(c.Provider, record.Target, string(record.Result))
	}
	r.record(ctx, logger, record, true)

	return target, record.Result
}

// record stores and optionally publishes a transition. Both are best effort.
func (r *Runner) record(ctx context.Context, logger *zap.Logger, t *model.Transition, publish bool) {
	// The resource timeout may have expired; bookkeeping must still happen
	ctx = context.WithoutCancel(ctx)

	if r.recorder != nil {
		if err := r.recorder.Store(ctx, t); err != nil {
			logger.Error("Failed to record transition",
				zap.String("transition_id", t.ID),
				zap.Error(err))
		}
	}
	if publish && r.publisher != nil {
		if err := r.publisher.PublishTransition(ctx, t); err != nil {
			logger.Error("Failed to publish transition",
				zap.String("transition_id", t.ID),
				zap.Error(err))
		}
	}
}

func (r *Runner) observeListerError(provider string) {
	if r.observer != nil {
		r.observer.ObserveListerError(provider)
	}
}

func (r *Runner) observeInvalidSchedule(provider string) {
	if r.observer != nil {
		r.observer.ObserveInvalidSchedule(provider)
	}
}
