package monitor

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestHostCollector(t *testing.T) {
	t.Run("Sampled Values", func(t *testing.T) {
		c := NewHostCollector(zaptest.NewLogger(t))
		c.cpuPercent = func() ([]float64, error) { return []float64{37.5}, nil }
		c.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8192, Used: 2048, UsedPercent: 25}, nil
		}

		reg := prometheus.NewRegistry()
		require.NoError(t, reg.Register(c))

		expected := `
# HELP power_scheduler_host_cpu_percent Host CPU usage since the previous scrape.
# TYPE power_scheduler_host_cpu_percent gauge
power_scheduler_host_cpu_percent 37.5
# HELP power_scheduler_host_memory_total_bytes Total host memory.
# TYPE power_scheduler_host_memory_total_bytes gauge
power_scheduler_host_memory_total_bytes 8192
# HELP power_scheduler_host_memory_used_bytes Host memory in use.
# TYPE power_scheduler_host_memory_used_bytes gauge
power_scheduler_host_memory_used_bytes 2048
# HELP power_scheduler_host_memory_used_percent Host memory usage.
# TYPE power_scheduler_host_memory_used_percent gauge
power_scheduler_host_memory_used_percent 25
`
		require.NoError(t, promtest.GatherAndCompare(reg, strings.NewReader(expected)))
	})

	t.Run("Failed Sample", func(t *testing.T) {
		c := NewHostCollector(zap.NewNop())
		c.cpuPercent = func() ([]float64, error) { return nil, errors.New("no /proc/stat") }
		c.virtualMemory = func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8192, Used: 4096, UsedPercent: 50}, nil
		}

		assert.Equal(t, 3, promtest.CollectAndCount(c))
		assert.Zero(t, promtest.CollectAndCount(c, "power_scheduler_host_cpu_percent"))

		c.virtualMemory = func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("no /proc/meminfo") }
		assert.Zero(t, promtest.CollectAndCount(c))
	})

	t.Run("Host", func(t *testing.T) {
		if _, err := mem.VirtualMemory(); err != nil {
			t.Skipf("host memory not readable: %v", err)
		}
		if _, err := cpu.Percent(0, false); err != nil {
			t.Skipf("host cpu not readable: %v", err)
		}
		c := NewHostCollector(zap.NewNop())
		assert.Equal(t, 4, promtest.CollectAndCount(c))
	})
}
