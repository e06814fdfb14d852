package authtask_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	authtask "github.com/goliatone/go-authtask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := authtask.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, authtask.DefaultEventTopic, cfg.EventTopic)
	assert.True(t, cfg.LinkExternalCredentials)
	assert.False(t, cfg.ConfigurationMode)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := authtask.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, authtask.DefaultConfig(), cfg)
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authtask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id: node-a
event_topic: cluster:auth
task_retention: 30m
sweep_interval: 10s
event_sink_capacity: 16
configuration_mode: true
`), 0o600))

	cfg, err := authtask.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "cluster:auth", cfg.EventTopic)
	assert.Equal(t, 30*time.Minute, cfg.TaskRetention)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 16, cfg.EventSinkCapacity)
	assert.Equal(t, authtask.DefaultMaxSessionMessages, cfg.MaxSessionMessages)
	assert.True(t, cfg.ConfigurationMode)
	assert.True(t, cfg.LinkExternalCredentials)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"short sweep":  "sweep_interval: 10ms\n",
		"empty topic":  "event_topic: \"\"\n",
		"bad capacity": "event_sink_capacity: -1\n",
		"bad yaml":     "task_retention: [\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "authtask.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			_, err := authtask.LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestConfigSessionOptions(t *testing.T) {
	cfg := authtask.DefaultConfig()
	cfg.MaxSessionMessages = 1

	session := authtask.NewSession("S", cfg.SessionOptions()...)
	session.AddWarning("a")
	session.AddWarning("b")
	assert.Len(t, session.Messages(), 1)
}
