package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// HostCollector samples CPU and memory usage of the host on every scrape
type HostCollector struct {
	logger        *zap.Logger
	cpuPercent    func() ([]float64, error)
	virtualMemory func() (*mem.VirtualMemoryStat, error)

	cpuUsage    *prometheus.Desc
	memoryUsed  *prometheus.Desc
	memoryTotal *prometheus.Desc
	memoryUsage *prometheus.Desc
}

// NewHostCollector creates a collector backed by gopsutil
func NewHostCollector(logger *zap.Logger) *HostCollector {
	return &HostCollector{
		logger: logger.Named("host-collector"),
		// Zero interval compares against the previous call
		cpuPercent:    func() ([]float64, error) { return cpu.Percent(0, false) },
		virtualMemory: mem.VirtualMemory,

		cpuUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "cpu_percent"),
			"Host CPU usage since the previous scrape.", nil, nil),
		memoryUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "memory_used_bytes"),
			"Host memory in use.", nil, nil),
		memoryTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "memory_total_bytes"),
			"Total host memory.", nil, nil),
		memoryUsage: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "host", "memory_used_percent"),
			"Host memory usage.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *HostCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuUsage
	ch <- c.memoryUsed
	ch <- c.memoryTotal
	ch <- c.memoryUsage
}

// Collect implements prometheus.Collector. A failed sample is logged and
// its metrics are left out of the scrape.
func (c *HostCollector) Collect(ch chan<- prometheus.Metric) {
	cpuPercent, err := c.cpuPercent()
	switch {
	case err != nil:
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
	case len(cpuPercent) == 0:
		c.logger.Warn("No CPU usage sample")
	default:
		ch <- prometheus.MustNewConstMetric(c.cpuUsage, prometheus.GaugeValue, cpuPercent[0])
	}

	memInfo, err := c.virtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.memoryUsed, prometheus.GaugeValue, float64(memInfo.Used))
	ch <- prometheus.MustNewConstMetric(c.memoryTotal, prometheus.GaugeValue, float64(memInfo.Total))
	ch <- prometheus.MustNewConstMetric(c.memoryUsage, prometheus.GaugeValue, memInfo.UsedPercent)
}
