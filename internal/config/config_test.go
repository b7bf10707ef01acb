package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
app:
  name: scheduler-test
  log_level: debug
schedule:
  tag: PowerSchedule
  cron: "0 */10 * * * *"
  workers: 3
  dry_run: true
ec2:
  enabled: true
  regions: [eu-west-1, us-east-1]
docker:
  enabled: true
  stop_timeout: 45s
nats:
  enabled: true
  url: nats://nats:4222
history:
  path: /var/lib/power-scheduler/history.db
  retention: 168h
retry:
  max_attempts: 5
  initial_delay: 500ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "scheduler-test", cfg.App.Name)
	assert.Equal(t, "debug", cfg.App.LogLevel)

	assert.Equal(t, "PowerSchedule", cfg.Schedule.Tag)
	assert.Equal(t, "0 */10 * * * *", cfg.Schedule.Cron)
	assert.Equal(t, 3, cfg.Schedule.Workers)
	assert.True(t, cfg.Schedule.DryRun)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.Timeout)

	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, cfg.EC2.Regions)
	assert.True(t, cfg.Docker.Enabled)
	assert.Equal(t, "PowerSchedule", cfg.Docker.Label)
	assert.Equal(t, 45*time.Second, cfg.Docker.StopTimeout)

	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "POWER", cfg.NATS.Stream)

	assert.Equal(t, "/var/lib/power-scheduler/history.db", cfg.History.Path)
	assert.Equal(t, 7*24*time.Hour, cfg.History.Retention)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "Schedule", cfg.Schedule.Tag)
	assert.Equal(t, "Schedule", cfg.Docker.Label)
	assert.True(t, cfg.EC2.Enabled)
	assert.False(t, cfg.Docker.Enabled)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Bind)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("POWERSCHED_SCHEDULE_DRY_RUN", "false")
	t.Setenv("POWERSCHED_SCHEDULE_WORKERS", "12")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.False(t, cfg.Schedule.DryRun)
	assert.Equal(t, 12, cfg.Schedule.Workers)
}

func TestLoadErrors(t *testing.T) {
	t.Run("Missing File", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	tests := []struct {
		name    string
		content string
	}{
		{"Bad Cron", "schedule:\n  cron: every minute\n"},
		{"No Workers", "schedule:\n  workers: 0\n"},
		{"No Provider", "ec2:\n  enabled: false\n"},
		{"Half Credentials", "ec2:\n  access_key_id: AKIA\n"},
		{"Bad Level", "app:\n  log_level: loud\n"},
		{"No Attempts", "retry:\n  max_attempts: 0\n"},
		{"Empty Tag", "schedule:\n  tag: \" \"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
