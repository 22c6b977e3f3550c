package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Empty(t, cfg.Line.ChannelSecret)

	dispatch, ok := cfg.Scheduler.Tasks[TaskMessageDispatch]
	require.True(t, ok)
	assert.Equal(t, DefaultDispatch, dispatch.Schedule)
	assert.True(t, dispatch.Enabled)

	reminder, ok := cfg.Scheduler.Tasks[TaskCalendarReminder]
	require.True(t, ok)
	assert.Equal(t, DefaultReminder, reminder.Schedule)
	assert.True(t, reminder.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")
	t.Setenv("BRIDGE_SERVER_LISTEN", ":8080")
	t.Setenv("BRIDGE_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestLoadChannelSecretFromEnv(t *testing.T) {
	t.Setenv("BRIDGE_LINE_CHANNEL_SECRET", "super-secret")

	cfg, err := Load()
	require.NoError(t, err)

	// The secret must survive an env-only deployment with no config.yaml;
	// dropping it silently downgrades webhook auth to presence-only.
	assert.Equal(t, "super-secret", cfg.Line.ChannelSecret)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("BRIDGE_LOG_LEVEL", "verbose")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}
