package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/power-scheduler/internal/model"
	"github.com/t77yq/power-scheduler/internal/monitor"
	"github.com/t77yq/power-scheduler/internal/resource"
	"github.com/t77yq/power-scheduler/internal/service"
	"github.com/t77yq/power-scheduler/internal/storage"
)

var (
	_ Recorder  = (*storage.SQLiteTransitionHistory)(nil)
	_ Publisher = (*service.EventService)(nil)
	_ Observer  = (*monitor.Metrics)(nil)
)

type staticLister struct {
	name       string
	candidates []resource.Candidate
	err        error
}

func (l *staticLister) Name() string { return l.name }

func (l *staticLister) List(ctx context.Context) ([]resource.Candidate, error) {
	return l.candidates, l.err
}

type memoryRecorder struct {
	mu      sync.Mutex
	records map[string]*model.Transition
}

func newMemoryRecorder() *memoryRecorder {
	return &memoryRecorder{records: make(map[string]*model.Transition)}
}

func (r *memoryRecorder) Store(ctx context.Context, t *model.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[t.ResourceID] = t
	return nil
}

func (r *memoryRecorder) PublishTransition(ctx context.Context, t *model.Transition) error {
	return r.Store(ctx, t)
}

func (r *memoryRecorder) get(id string) *model.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

func (r *memoryRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func boolPtr(b bool) *bool { return &b }

// Monday 2018-04-23 12:00 UTC
var runTime = time.Date(2018, 4, 23, 12, 0, 0, 0, time.UTC)

type fixture struct {
	actuators map[string]*flakyActuator
	listers   []Lister
}

func newFixture() *fixture {
	f := &fixture{actuators: make(map[string]*flakyActuator)}
	add := func(id string, running *bool, sched string, failures int64) resource.Candidate {
		act := &flakyActuator{failures: failures}
		f.actuators[id] = act
		return resource.Candidate{ID: id, Running: running, Schedule: sched, Actuator: act}
	}

	f.listers = []Lister{
		&staticLister{name: "ec2", candidates: []resource.Candidate{
			add("start-me", boolPtr(false), "10:00;22:00;UTC;Mon,Tue,Wed,Thu,Fri", 0),
			add("stop-me", boolPtr(true), "NONE;11:00;UTC;Mon", 0),
			add("already-on", boolPtr(true), "10:00;22:00;UTC;Mon", 0),
			add("pending", nil, "10:00;22:00;UTC;Mon", 0),
			add("untagged", boolPtr(false), "", 0),
			add("garbage", boolPtr(false), "10:00;22:00;UTC", 0),
		}},
		&staticLister{name: "docker", candidates: []resource.Candidate{
			add("broken", boolPtr(false), "10:00;NONE;UTC;Mon", 5),
			add("weekend", boolPtr(false), "10:00;22:00;UTC;Sat,Sun", 0),
		}},
		&staticLister{name: "gce", err: errors.New("credentials expired")},
	}
	return f
}

func TestRunner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	records := newMemoryRecorder()
	events := newMemoryRecorder()
	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg)
	require.NoError(t, err)

	runner, err := NewRunner(f.listers, RunnerConfig{
		Workers:     2,
		MaxAttempts: 2,
		Backoff:     &ExponentialBackoff{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}, zaptest.NewLogger(t),
		WithRecorder(records),
		WithPublisher(events),
		WithObserver(metrics),
		WithClock(func() time.Time { return runTime }),
	)
	require.NoError(t, err)

	summary, err := runner.RunOnce(ctx)
	require.NoError(t, err)

	t.Run("Summary", func(t *testing.T) {
		assert.NotEmpty(t, summary.RunID)
		assert.Equal(t, runTime, summary.StartedAt)
		assert.Equal(t, 8, summary.Listed)
		assert.Equal(t, 1, summary.Ignored)
		assert.Equal(t, 1, summary.Unscheduled)
		assert.Equal(t, 1, summary.Invalid)
		assert.Equal(t, 2, summary.Unchanged)
		assert.Equal(t, 1, summary.Started)
		assert.Equal(t, 1, summary.Stopped)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.ListerErrors)
	})

	t.Run("Actuators", func(t *testing.T) {
		assert.Equal(t, int64(1), f.actuators["start-me"].starts.Load())
		assert.Equal(t, int64(1), f.actuators["stop-me"].stops.Load())
		assert.Zero(t, f.actuators["already-on"].starts.Load()+f.actuators["already-on"].stops.Load())
		assert.Zero(t, f.actuators["pending"].starts.Load())
		assert.Zero(t, f.actuators["weekend"].starts.Load())
		// One call plus one retry
		assert.Equal(t, int64(2), f.actuators["broken"].starts.Load())
	})

	t.Run("Records", func(t *testing.T) {
		assert.Equal(t, 4, records.len())

		started := records.get("start-me")
		require.NotNil(t, started)
		assert.Equal(t, summary.RunID, started.RunID)
		assert.Equal(t, "ec2", started.Provider)
		assert.Equal(t, "on", started.Target)
		assert.False(t, started.PreviousRunning)
		assert.Equal(t, model.TransitionResultSucceeded, started.Result)
		assert.Equal(t, "10:00;22:00;UTC;Mon,Tue,Wed,Thu,Fri", started.Schedule)
		assert.Equal(t, runTime, started.EvaluatedAt)

		stopped := records.get("stop-me")
		require.NotNil(t, stopped)
		assert.Equal(t, "off", stopped.Target)
		assert.True(t, stopped.PreviousRunning)

		failed := records.get("broken")
		require.NotNil(t, failed)
		assert.Equal(t, "docker", failed.Provider)
		assert.Equal(t, "on", failed.Target)
		assert.Equal(t, model.TransitionResultFailed, failed.Result)
		assert.Contains(t, failed.Error, errUnavailable.Error())

		invalid := records.get("garbage")
		require.NotNil(t, invalid)
		assert.Equal(t, model.TransitionResultInvalidSchedule, invalid.Result)
		assert.NotEmpty(t, invalid.Error)
	})

	t.Run("Events", func(t *testing.T) {
		assert.Equal(t, 3, events.len())
		assert.Nil(t, events.get("garbage"))
		assert.NotNil(t, events.get("broken"))
	})

	t.Run("Metrics", func(t *testing.T) {
		expected := `
# HELP power_scheduler_transitions_total Attempted power transitions.
# TYPE power_scheduler_transitions_total counter
power_scheduler_transitions_total{provider="docker",result="failed",target="on"} 1
power_scheduler_transitions_total{provider="ec2",result="succeeded",target="off"} 1
power_scheduler_transitions_total{provider="ec2",result="succeeded",target="on"} 1
# HELP power_scheduler_invalid_schedules_total Resources skipped because their schedule could not be parsed.
# TYPE power_scheduler_invalid_schedules_total counter
power_scheduler_invalid_schedules_total{provider="ec2"} 1
# HELP power_scheduler_lister_errors_total Failed resource listings.
# TYPE power_scheduler_lister_errors_total counter
power_scheduler_lister_errors_total{provider="gce"} 1
# HELP power_scheduler_runs_total Number of completed evaluation passes.
# TYPE power_scheduler_runs_total counter
power_scheduler_runs_total 1
`
		require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected),
			"power_scheduler_transitions_total",
			"power_scheduler_invalid_schedules_total",
			"power_scheduler_lister_errors_total",
			"power_scheduler_runs_total",
		))
	})
}

func TestRunnerDryRun(t *testing.T) {
	f := newFixture()
	records := newMemoryRecorder()

	runner, err := NewRunner(f.listers, RunnerConfig{DryRun: true}, zap.NewNop(),
		WithRecorder(records),
		WithClock(func() time.Time { return runTime }),
	)
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	// The failing actuator is never reached in a dry run
	assert.Equal(t, 2, summary.Started)
	assert.Equal(t, 1, summary.Stopped)
	assert.Zero(t, summary.Failed)

	for id, act := range f.actuators {
		assert.Zero(t, act.starts.Load()+act.stops.Load(), id)
	}

	started := records.get("start-me")
	require.NotNil(t, started)
	assert.Equal(t, model.TransitionResultDryRun, started.Result)
}

func TestRunnerWithHistory(t *testing.T) {
	history, err := storage.NewSQLiteTransitionHistory(zap.NewNop(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()

	f := newFixture()
	runner, err := NewRunner(f.listers, RunnerConfig{MaxAttempts: 1}, zap.NewNop(),
		WithRecorder(history),
		WithClock(func() time.Time { return runTime }),
	)
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background())
	require.NoError(t, err)

	count, err := history.Count(context.Background(), map[string]interface{}{"run_id": summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	failed, err := history.List(context.Background(), map[string]interface{}{"result": string(model.TransitionResultFailed)}, 0, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ResourceID)
	assert.Equal(t, int64(1), f.actuators["broken"].starts.Load())
}

func TestRunnerCancelled(t *testing.T) {
	f := newFixture()
	runner, err := NewRunner(f.listers, RunnerConfig{}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := runner.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Started+summary.Stopped)
	assert.Equal(t, 5, summary.Skipped)
	assert.Equal(t, summary.Listed, summary.Ignored+summary.Unscheduled+summary.Invalid+
		summary.Unchanged+summary.Started+summary.Stopped+summary.Failed+summary.Skipped)
}

func TestRunnerWithoutActuator(t *testing.T) {
	records := newMemoryRecorder()
	events := newMemoryRecorder()
	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg)
	require.NoError(t, err)

	lister := &staticLister{name: "ec2", candidates: []resource.Candidate{
		{ID: "sim", Running: boolPtr(false), Schedule: "10:00;22:00;UTC;Mon"},
	}}
	runner, err := NewRunner([]Lister{lister}, RunnerConfig{}, zaptest.NewLogger(t),
		WithRecorder(records),
		WithPublisher(events),
		WithObserver(metrics),
		WithClock(func() time.Time { return runTime }),
	)
	require.NoError(t, err)

	summary, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Started)

	rec := records.get("sim")
	require.NotNil(t, rec)
	assert.Equal(t, "on", rec.Target)
	assert.Equal(t, model.TransitionResultDryRun, rec.Result)

	ev := events.get("sim")
	require.NotNil(t, ev)
	assert.Equal(t, model.TransitionResultDryRun, ev.Result)

	expected := `
# HELP power_scheduler_transitions_total Attempted power transitions.
# TYPE power_scheduler_transitions_total counter
power_scheduler_transitions_total{provider="ec2",result="dry_run",target="on"} 1
`
	require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected), "power_scheduler_transitions_total"))
}

func TestNewRunnerWithoutListers(t *testing.T) {
	_, err := NewRunner(nil, RunnerConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoListers)
}
