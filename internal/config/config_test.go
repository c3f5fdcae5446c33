package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KirkDiggler/pinball-core/internal/config"
	"github.com/KirkDiggler/pinball-core/internal/errors"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"MACHINE_TICK_HZ", "MACHINE_MODES_PATH", "MACHINE_DEBUG", "MACHINE_STALL_WARN_MS",
		"REDIS_URL", "REDIS_CHANNEL", "DISCORD_TOKEN", "DISCORD_CHANNEL_ID",
		"FORWARD_EVENTS", "FORWARD_MONITOR_ALL", "FORWARD_BUFFER_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Machine.TickHz)
	assert.Equal(t, "modes", cfg.Machine.ModesPath)
	assert.False(t, cfg.Machine.Debug)
	assert.Equal(t, 10*time.Second, cfg.Machine.StallWarnAfter)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "pinball:events", cfg.Redis.Channel)
	assert.Empty(t, cfg.Forward.Events)
	assert.Equal(t, 256, cfg.Forward.BufferSize)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MACHINE_TICK_HZ", "60")
	t.Setenv("MACHINE_DEBUG", "true")
	t.Setenv("MACHINE_STALL_WARN_MS", "2500")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "1234")
	t.Setenv("FORWARD_EVENTS", "ball_started, ,ball_ending,")
	t.Setenv("FORWARD_MONITOR_ALL", "1")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 60, cfg.Machine.TickHz)
	assert.True(t, cfg.Machine.Debug)
	assert.Equal(t, 2500*time.Millisecond, cfg.Machine.StallWarnAfter)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)
	assert.Equal(t, "1234", cfg.Discord.ChannelID)
	assert.Equal(t, []string{"ball_started", "ball_ending"}, cfg.Forward.Events)
	assert.True(t, cfg.Forward.MonitorAll)
}

func TestLoadIgnoresUnparsableNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MACHINE_TICK_HZ", "fast")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Machine.TickHz)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "tick rate too low", env: map[string]string{"MACHINE_TICK_HZ": "-1"}},
		{name: "tick rate too high", env: map[string]string{"MACHINE_TICK_HZ": "5000"}},
		{name: "stall threshold", env: map[string]string{"MACHINE_STALL_WARN_MS": "-5"}},
		{name: "discord without channel", env: map[string]string{"DISCORD_TOKEN": "token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}
