package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronScheduler runs named jobs on cron expressions. A job whose previous
// run has not finished is skipped, and a panicking job is recovered.
type CronScheduler struct {
	logger  *zap.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

// NewCronScheduler creates a new scheduler
func NewCronScheduler(logger *zap.Logger) *CronScheduler {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithParser(CronParser),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		cron.WithLogger(cronLogger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		logger:  logger.Named("cron-scheduler"),
		cron:    cron.New(cronOptions...),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob schedules fn under name. The context passed to fn is cancelled by Stop.
func (s *CronScheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	if _, err := CronParser.Parse(spec); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidCronSpec, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	entryID, err := s.cron.AddJob(spec, &cronJob{scheduler: s, name: name, fn: fn})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entries[name] = entryID

	s.logger.Info("Added job",
		zap.String("name", name),
		zap.String("expression", spec))
	return nil
}

// Next returns the next activation of the named job, zero before Start
func (s *CronScheduler) Next(name string) time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(entryID).Next
}

// Start starts the scheduler
func (s *CronScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop cancels running jobs and waits for them to return
func (s *CronScheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron scheduler stopped")
}

// cronJob implements cron.Job
type cronJob struct {
	scheduler *CronScheduler
	name      string
	fn        func(ctx context.Context) error
}

// Run executes the job
func (j *cronJob) Run() {
	logger := j.scheduler.logger.With(zap.String("job", j.name))
	start := time.Now()

	if err := j.fn(j.scheduler.ctx); err != nil {
		logger.Error("Job failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}

	logger.Debug("Job completed", zap.Duration("duration", time.Since(start)))
}
