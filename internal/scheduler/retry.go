package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/resource"
)

// RetryStrategy defines the interface for retry strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given retry
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// RetryActuator retries a failing actuator with a backoff between attempts
type RetryActuator struct {
	logger      *zap.Logger
	actuator    resource.Actuator
	strategy    RetryStrategy
	maxAttempts int
}

// NewRetryActuator wraps act. maxAttempts below one is treated as one.
func NewRetryActuator(act resource.Actuator, strategy RetryStrategy, maxAttempts int, logger *zap.Logger) *RetryActuator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryActuator{
		logger:      logger,
		actuator:    act,
		strategy:    strategy,
		maxAttempts: maxAttempts,
	}
}

// Start implements resource.Actuator
func (a *RetryActuator) Start(ctx context.Context) error {
	return a.do(ctx, "start", a.actuator.Start)
}

// Stop implements resource.Actuator
func (a *RetryActuator) Stop(ctx context.Context) error {
	return a.do(ctx, "stop", a.actuator.Stop)
}

func (a *RetryActuator) do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if a.maxAttempts == 1 {
			return err
		}
		if attempt == a.maxAttempts-1 {
			break
		}

		delay := a.strategy.NextRetry(attempt)
		a.logger.Warn("Actuator call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("failed to %s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrMaxRetriesExceeded, op, a.maxAttempts, err)
}
