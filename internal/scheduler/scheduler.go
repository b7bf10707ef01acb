package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/t77yq/power-scheduler/internal/model"
	"github.com/t77yq/power-scheduler/internal/resource"
)

// Lister reports the resources of one provider
type Lister interface {
	// Name identifies the provider in logs, metrics and records
	Name() string

	// List returns every resource carrying a schedule tag or label
	List(ctx context.Context) ([]resource.Candidate, error)
}

// Recorder persists transition records
type Recorder interface {
	Store(ctx context.Context, transition *model.Transition) error
}

// Publisher announces transition records to other services
type Publisher interface {
	PublishTransition(ctx context.Context, transition *model.Transition) error
}

// Observer receives pass statistics
type Observer interface {
	ObserveRun(d time.Duration)
	ObserveEvaluation(target string)
	ObserveTransition(provider, target, result string)
	ObserveInvalidSchedule(provider string)
	ObserveListerError(provider string)
}

// CronParser parses the six-field (seconds first) expressions and descriptors
// accepted by CronScheduler
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)
