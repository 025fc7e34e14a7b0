package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 4, config.Queue.Concurrency)
	assert.Equal(t, "./data", config.Storage.Badger.Path)
	assert.Equal(t, 100, config.Status.QueueCapacity)
	assert.Equal(t, "30s", config.Status.PingInterval)
	assert.Equal(t, "5m", config.Status.StaleTimeout)
	assert.Equal(t, LLMProviderGemini, config.LLM.DefaultProvider)
}

func TestLoadFromFiles_MergeOrder(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[server]
port = 9090
host = "0.0.0.0"

[queue]
concurrency = 8
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`
[server]
port = 9191
`), 0644))

	config, err := LoadFromFiles(nil, base, override)
	require.NoError(t, err)

	// Later file wins for port, base file wins where override is silent
	assert.Equal(t, 9191, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 8, config.Queue.Concurrency)
	// Untouched sections keep defaults
	assert.Equal(t, "./data", config.Storage.Badger.Path)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(nil, "/nonexistent/scrutor.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFiles_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("this is not toml = = ="), 0644))

	_, err := LoadFromFiles(nil, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCRUTOR_SERVER_PORT", "7070")
	t.Setenv("SCRUTOR_QUEUE_CONCURRENCY", "16")
	t.Setenv("SCRUTOR_STATUS_QUEUE_CAPACITY", "250")
	t.Setenv("SCRUTOR_LOG_OUTPUT", "stdout, file")
	t.Setenv("SCRUTOR_LLM_DEFAULT_PROVIDER", "claude")

	config := NewDefaultConfig()
	applyEnvOverrides(config)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 16, config.Queue.Concurrency)
	assert.Equal(t, 250, config.Status.QueueCapacity)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	assert.Equal(t, LLMProviderClaude, config.LLM.DefaultProvider)
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("SCRUTOR_SERVER_PORT", "not-a-number")
	t.Setenv("SCRUTOR_QUEUE_POLL_INTERVAL", "not-a-duration")

	config := NewDefaultConfig()
	applyEnvOverrides(config)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "500ms", config.Queue.PollInterval)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9999, "10.0.0.5")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "10.0.0.5", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "10.0.0.5", config.Server.Host)
}

func TestValidateJobSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"valid hourly", "0 * * * *", false},
		{"valid every 5 minutes", "*/5 * * * *", false},
		{"valid nightly", "0 2 * * *", false},
		{"every minute rejected", "* * * * *", true},
		{"every 2 minutes rejected", "*/2 * * * *", true},
		{"garbage", "not a cron", true},
		{"too few fields", "0 *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJobSchedule(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())
	assert.True(t, config.AllowTestURLs())

	config.Environment = "production"
	assert.True(t, config.IsProduction())
	assert.False(t, config.AllowTestURLs())

	config.Environment = " PROD "
	assert.True(t, config.IsProduction())
}

func TestDeepCloneConfig(t *testing.T) {
	original := NewDefaultConfig()
	original.Status.AllowedEvents = []string{"job_update"}
	original.Status.ThrottleIntervals = map[string]string{"job_progress": "2s"}

	clone := DeepCloneConfig(original)
	require.NotNil(t, clone)

	clone.Status.AllowedEvents[0] = "mutated"
	clone.Status.ThrottleIntervals["job_progress"] = "99s"
	clone.Logging.Output[0] = "mutated"

	assert.Equal(t, "job_update", original.Status.AllowedEvents[0])
	assert.Equal(t, "2s", original.Status.ThrottleIntervals["job_progress"])
	assert.Equal(t, "stdout", original.Logging.Output[0])

	assert.Nil(t, DeepCloneConfig(nil))
}
