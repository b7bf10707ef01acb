package resource

import (
	"context"
	"sync/atomic"
)

// MemoryActuator never touches a real resource. It counts calls, which makes
// it usable for dry runs and simulations.
type MemoryActuator struct {
	starts atomic.Int64
	stops  atomic.Int64
}

// Start implements Actuator.
func (m *MemoryActuator) Start(ctx context.Context) error {
	m.starts.Add(1)
	return nil
}

// Stop implements Actuator.
func (m *MemoryActuator) Stop(ctx context.Context) error {
	m.stops.Add(1)
	return nil
}

// Starts returns the number of Start calls.
func (m *MemoryActuator) Starts() int {
	return int(m.starts.Load())
}

// Stops returns the number of Stop calls.
func (m *MemoryActuator) Stops() int {
	return int(m.stops.Load())
}
