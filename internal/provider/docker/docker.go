// Package docker lists and powers containers labelled with a schedule.
package docker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/t77yq/power-scheduler/internal/resource"
)

// ProviderName identifies containers in records and metrics
const ProviderName = "docker"

// API is the subset of the Docker client used by the provider
type API interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
}

// NewClient connects to the Docker daemon at host, or the environment's
// daemon when host is empty
func NewClient(host string) (*client.Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return cli, nil
}

// runningState maps a container state to a running flag. Nil means the
// container must be ignored.
func runningState(state string) *bool {
	on, off := true, false
	switch state {
	case "running", "restarting":
		return &on
	case "created", "exited":
		return &off
	default:
		return nil
	}
}

// Lister reports the containers carrying the schedule label
type Lister struct {
	logger      *zap.Logger
	api         API
	label       string
	stopTimeout time.Duration
}

// NewLister creates a lister. stopTimeout is the grace period given to a
// container before it is killed; zero keeps the daemon default.
func NewLister(api API, label string, stopTimeout time.Duration, logger *zap.Logger) *Lister {
	return &Lister{
		logger:      logger.Named("docker"),
		api:         api,
		label:       label,
		stopTimeout: stopTimeout,
	}
}

// Name implements scheduler.Lister
func (l *Lister) Name() string {
	return ProviderName
}

// List implements scheduler.Lister
func (l *Lister) List(ctx context.Context) ([]resource.Candidate, error) {
	containers, err := l.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", l.label)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	candidates := make([]resource.Candidate, 0, len(containers))
	for _, c := range containers {
		candidate := resource.Candidate{
			ID:       c.ID,
			Provider: ProviderName,
			Running:  runningState(c.State),
			Schedule: strings.TrimSpace(c.Labels[l.label]),
			Actuator: &Actuator{api: l.api, id: c.ID, stopTimeout: l.stopTimeout},
		}
		l.logger.Debug("Container listed",
			zap.String("resource_id", c.ID),
			zap.Strings("names", c.Names),
			zap.String("state", c.State),
			zap.String("schedule", candidate.Schedule))
		candidates = append(candidates, candidate)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

// Actuator starts and stops one container
type Actuator struct {
	api         API
	id          string
	stopTimeout time.Duration
}

// Start implements resource.Actuator
func (a *Actuator) Start(ctx context.Context) error {
	if err := a.api.ContainerStart(ctx, a.id, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", a.id, err)
	}
	return nil
}

// Stop implements resource.Actuator
func (a *Actuator) Stop(ctx context.Context) error {
	var opts container.StopOptions
	if a.stopTimeout > 0 {
		// The daemon takes whole seconds and kills at zero
		timeout := int(math.Ceil(a.stopTimeout.Seconds()))
		opts.Timeout = &timeout
	}
	if err := a.api.ContainerStop(ctx, a.id, opts); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", a.id, err)
	}
	return nil
}
