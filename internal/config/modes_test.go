package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KirkDiggler/pinball-core/internal/config"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

const bonusYAML = `
mode:
  priority: 500
  start_events: [ball_ending]
  stop_events: [bonus_done]
  use_wait_queue: true
  stop_on_ball_end: false

timers:
  countdown:
    start_value: 5
    direction: down
    tick_interval: 250

event_player:
  mode_bonus_started: bonus_music
  target_hit:
    add_bonus: {points: 100}
`

const baseYAML = `
mode:
  name: base
  start_events: [ball_started]
`

func writeFile(t *testing.T, dir, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadModes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bonus.yaml", bonusYAML)
	writeFile(t, dir, "attract.yml", baseYAML)
	writeFile(t, dir, "README.md", "not a mode")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	configs, err := config.LoadModes(dir)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	base := configs[0]
	assert.Equal(t, "base", base.Mode.Name)
	assert.Equal(t, modes.DefaultPriority, base.Mode.Priority)
	assert.True(t, base.Mode.StopOnBallEnd)
	assert.Equal(t, []string{"ball_started"}, base.Mode.StartEvents)

	bonus := configs[1]
	assert.Equal(t, "bonus", bonus.Mode.Name)
	assert.Equal(t, 500, bonus.Mode.Priority)
	assert.True(t, bonus.Mode.UseWaitQueue)
	assert.False(t, bonus.Mode.StopOnBallEnd)
	assert.Equal(t, 5, bonus.Timers["countdown"].StartValue)
	assert.Equal(t, modes.DirectionDown, bonus.Timers["countdown"].Direction)

	player, ok := bonus.Section("event_player").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bonus_music", player["mode_bonus_started"])
	assert.Equal(t, map[string]any{"add_bonus": map[string]any{"points": 100}}, player["target_hit"])

	require.NoError(t, bonus.Validate())
	assert.Equal(t, []string{"bonus_done"}, bonus.Mode.StopEvents)
}

func TestLoadModesBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "mode: [unclosed")

	_, err := config.LoadModes(dir)

	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, filepath.Join(dir, "broken.yaml"), errors.GetMeta(err)["file"])
}

func TestLoadModesMissingDir(t *testing.T) {
	_, err := config.LoadModes(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
