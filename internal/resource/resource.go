// Package resource reconciles the observed power state of a managed resource
// with the verdict of its schedule.
package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/t77yq/power-scheduler/internal/schedule"
)

// Actuator powers a resource on or off.
type Actuator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TransitionError is returned by Reconcile when the actuator fails. The
// resource keeps its previous running state.
type TransitionError struct {
	ID     string
	Target schedule.Target
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("resource %s: failed to turn %s: %v", e.ID, e.Target, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Candidate is what a lister reports about one resource before its schedule
// is parsed. A nil Running means the resource is transitioning or gone and
// must not be managed. An empty Schedule means the resource is unscheduled.
type Candidate struct {
	ID       string
	Provider string
	Running  *bool
	Schedule string
	Actuator Actuator
}

// Resource is a managed resource. Reconcile must not be called concurrently
// on the same Resource; distinct Resources are independent.
type Resource struct {
	id       string
	running  bool
	schedule *schedule.Schedule
	actuator Actuator
}

// New returns a Resource. A nil schedule leaves the resource unmanaged; a nil
// actuator selects a MemoryActuator, so only the running flag changes.
func New(id string, running bool, sched *schedule.Schedule, act Actuator) *Resource {
	if act == nil {
		act = &MemoryActuator{}
	}
	return &Resource{
		id:       id,
		running:  running,
		schedule: sched,
		actuator: act,
	}
}

// ID returns the resource identifier.
func (r *Resource) ID() string {
	return r.id
}

// Running returns the observed power state.
func (r *Resource) Running() bool {
	return r.running
}

// Schedule returns the attached schedule, nil when unmanaged.
func (r *Resource) Schedule() *schedule.Schedule {
	return r.schedule
}

// Reconcile evaluates the schedule at the naive timestamp ts and applies the
// result. It returns the target that was applied, or Unchanged when no
// actuator call was made.
func (r *Resource) Reconcile(ctx context.Context, ts time.Time) (schedule.Target, error) {
	if r.schedule == nil {
		return schedule.Unchanged, nil
	}
	target, err := r.schedule.Evaluate(ts)
	if err != nil {
		return schedule.Unchanged, err
	}
	return r.apply(ctx, target)
}

// ReconcileAt is Reconcile for an absolute instant, read in the schedule zone.
func (r *Resource) ReconcileAt(ctx context.Context, t time.Time) (schedule.Target, error) {
	if r.schedule == nil {
		return schedule.Unchanged, nil
	}
	return r.apply(ctx, r.schedule.EvaluateInstant(t))
}

func (r *Resource) apply(ctx context.Context, target schedule.Target) (schedule.Target, error) {
	want, ok := target.Running()
	if !ok || want == r.running {
		return schedule.Unchanged, nil
	}

	var err error
	if want {
		err = r.actuator.Start(ctx)
	} else {
		err = r.actuator.Stop(ctx)
	}
	if err != nil {
		return schedule.Unchanged, &TransitionError{ID: r.id, Target: target, Err: err}
	}

	r.running = want
	return target, nil
}
