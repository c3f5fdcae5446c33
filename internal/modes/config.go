package modes

import (
	"sort"
	"strings"

	"github.com/KirkDiggler/pinball-core/internal/errors"
)

const (
	// DefaultPriority is used when a mode file does not set one
	DefaultPriority = 100

	// DefaultTickInterval is the timer tick interval in milliseconds
	DefaultTickInterval = 1000
)

// Timer directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Timer control actions
const (
	TimerActionAdd      = "add"
	TimerActionSubtract = "subtract"
	TimerActionJump     = "jump"
	TimerActionStart    = "start"
	TimerActionStop     = "stop"
	TimerActionReset    = "reset"
	TimerActionRestart  = "restart"
	TimerActionPause    = "pause"
)

// Settings is the mode: section of a mode file
type Settings struct {
	Name              string   `yaml:"name"`
	Priority          int      `yaml:"priority"`
	StartPriority     int      `yaml:"start_priority"`
	StopPriority      int      `yaml:"stop_priority"`
	StartEvents       []string `yaml:"start_events"`
	StopEvents        []string `yaml:"stop_events"`
	UseWaitQueue      bool     `yaml:"use_wait_queue"`
	StopOnBallEnd     bool     `yaml:"stop_on_ball_end"`
	RestartOnNextBall bool     `yaml:"restart_on_next_ball"`
	EventsWhenStarted []string `yaml:"events_when_started"`
	EventsWhenStopped []string `yaml:"events_when_stopped"`
}

// TimerControl maps an event to a timer action
type TimerControl struct {
	Event  string `yaml:"event"`
	Action string `yaml:"action"`
	Value  int    `yaml:"value"`
}

// TimerConfig configures one mode timer. Values are in ticks; TickInterval
// is in milliseconds.
type TimerConfig struct {
	StartValue        int            `yaml:"start_value"`
	EndValue          *int           `yaml:"end_value"`
	MaxValue          *int           `yaml:"max_value"`
	Direction         string         `yaml:"direction"`
	TickInterval      int            `yaml:"tick_interval"`
	StartRunning      bool           `yaml:"start_running"`
	RestartOnComplete bool           `yaml:"restart_on_complete"`
	ControlEvents     []TimerControl `yaml:"control_events"`
}

// Config is one mode file. Sections holds every top-level key other than
// mode and timers; collaborators read their own section through hooks.
type Config struct {
	Mode     Settings               `yaml:"mode"`
	Timers   map[string]TimerConfig `yaml:"timers"`
	Sections map[string]any         `yaml:",inline"`
}

// NewConfig returns a config with defaults applied, ready to be decoded into
func NewConfig(name string) *Config {
	return &Config{
		Mode: Settings{
			Name:          name,
			Priority:      DefaultPriority,
			StopOnBallEnd: true,
		},
	}
}

// HasSection reports whether the named collaborator section is present
func (c *Config) HasSection(name string) bool {
	if name == "timers" {
		return len(c.Timers) > 0
	}
	_, ok := c.Sections[name]
	return ok
}

// Section returns the raw value of a collaborator section
func (c *Config) Section(name string) any {
	if name == "timers" {
		return c.Timers
	}
	return c.Sections[name]
}

// TimerNames returns the configured timer names in a stable order
func (c *Config) TimerNames() []string {
	names := make([]string, 0, len(c.Timers))
	for name := range c.Timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate normalises event names and timer defaults and reports the first
// configuration problem
func (c *Config) Validate() error {
	s := &c.Mode
	if strings.TrimSpace(s.Name) == "" {
		return errors.Validation("mode name is required")
	}

	lists := map[string][]string{
		"start_events":        s.StartEvents,
		"stop_events":         s.StopEvents,
		"events_when_started": s.EventsWhenStarted,
		"events_when_stopped": s.EventsWhenStopped,
	}
	for key, list := range lists {
		for i, ev := range list {
			if strings.TrimSpace(ev) == "" {
				return errors.Validationf("mode %s: %s[%d] is empty", s.Name, key, i).
					WithMeta("mode", s.Name)
			}
			list[i] = strings.ToLower(strings.TrimSpace(ev))
		}
	}

	for name, t := range c.Timers {
		if t.Direction == "" {
			t.Direction = DirectionUp
		}
		t.Direction = strings.ToLower(t.Direction)
		if t.Direction != DirectionUp && t.Direction != DirectionDown {
			return errors.Validationf("mode %s: timer %s has invalid direction %q", s.Name, name, t.Direction).
				WithMeta("mode", s.Name)
		}
		if t.TickInterval == 0 {
			t.TickInterval = DefaultTickInterval
		}
		if t.TickInterval < 0 {
			return errors.Validationf("mode %s: timer %s has negative tick_interval", s.Name, name).
				WithMeta("mode", s.Name)
		}
		if t.Direction == DirectionDown && t.EndValue == nil {
			zero := 0
			t.EndValue = &zero
		}
		for i, ctl := range t.ControlEvents {
			if ctl.Event == "" {
				return errors.Validationf("mode %s: timer %s control_events[%d] has no event", s.Name, name, i).
					WithMeta("mode", s.Name)
			}
			switch ctl.Action {
			case TimerActionAdd, TimerActionSubtract, TimerActionJump, TimerActionStart,
				TimerActionStop, TimerActionReset, TimerActionRestart, TimerActionPause:
			default:
				return errors.Validationf("mode %s: timer %s has invalid control action %q", s.Name, name, ctl.Action).
					WithMeta("mode", s.Name)
			}
		}
		c.Timers[name] = t
	}

	return nil
}
