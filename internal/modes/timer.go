package modes

import (
	"fmt"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/events"
)

// Timer counts ticks up or down for a mode. Ticks are driven by the mode's
// delay manager, so a timer cannot outlive its mode.
type Timer struct {
	name     string
	mode     *Mode
	cfg      TimerConfig
	ticks    int
	running  bool
	interval time.Duration
}

func (m *Mode) createTimers() {
	m.timers = make(map[string]*Timer, len(m.config.Timers))

	for _, name := range m.config.TimerNames() {
		cfg := m.config.Timers[name]
		t := &Timer{
			name:     name,
			mode:     m,
			cfg:      cfg,
			ticks:    cfg.StartValue,
			interval: time.Duration(cfg.TickInterval) * time.Millisecond,
		}
		m.timers[name] = t

		for _, ctl := range cfg.ControlEvents {
			m.AddEventHandler(ctl.Event, t.controlHandler(ctl), 0, nil)
		}
	}
}

func (m *Mode) stopTimers() error {
	for _, name := range m.config.TimerNames() {
		t, ok := m.timers[name]
		if !ok || !t.running {
			continue
		}
		if err := t.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the timer name
func (t *Timer) Name() string {
	return t.name
}

// Ticks returns the current value
func (t *Timer) Ticks() int {
	return t.ticks
}

// Running reports whether the timer is counting
func (t *Timer) Running() bool {
	return t.running
}

// TicksRemaining returns the distance to the end value, or zero when the
// timer has no end value
func (t *Timer) TicksRemaining() int {
	if t.cfg.EndValue == nil {
		return 0
	}
	remaining := *t.cfg.EndValue - t.ticks
	if remaining < 0 {
		return -remaining
	}
	return remaining
}

// Start begins counting from the current value
func (t *Timer) Start() error {
	if t.mode.state != StateActive {
		return nil
	}
	if done, err := t.checkDone(); done || err != nil {
		return err
	}

	t.running = true
	t.mode.delays.Remove(t.delayName("pause"))
	t.schedule()
	return t.post("started", nil)
}

// Stop halts the timer and posts timer_<name>_stopped
func (t *Timer) Stop() error {
	t.running = false
	t.mode.delays.Remove(t.delayName("pause"))
	t.mode.delays.Remove(t.delayName("tick"))
	return t.post("stopped", nil)
}

// Pause stops counting and, if d is positive, starts again after d
func (t *Timer) Pause(d time.Duration) error {
	t.running = false
	t.mode.delays.Remove(t.delayName("tick"))
	if err := t.post("paused", nil); err != nil {
		return err
	}
	if d > 0 {
		t.mode.delays.Add(d, func(events.Params) error { return t.Start() }, t.delayName("pause"), nil)
	}
	return nil
}

// Reset sets the value back to start_value without starting or stopping
func (t *Timer) Reset() {
	t.Jump(t.cfg.StartValue)
}

// Restart resets and starts the timer
func (t *Timer) Restart() error {
	t.Reset()
	return t.Start()
}

// Jump sets the current value, capped at max_value
func (t *Timer) Jump(value int) {
	t.ticks = t.capped(value)
}

// AddTime adds ticks, capped at max_value
func (t *Timer) AddTime(ticks int) error {
	before := t.ticks
	t.ticks = t.capped(t.ticks + ticks)
	if err := t.post("time_added", events.Params{"ticks_added": t.ticks - before}); err != nil {
		return err
	}
	_, err := t.checkDone()
	return err
}

// SubtractTime removes ticks
func (t *Timer) SubtractTime(ticks int) error {
	t.ticks -= ticks
	if err := t.post("time_subtracted", events.Params{"ticks_subtracted": ticks}); err != nil {
		return err
	}
	_, err := t.checkDone()
	return err
}

func (t *Timer) capped(value int) int {
	if t.cfg.MaxValue != nil && value > *t.cfg.MaxValue {
		return *t.cfg.MaxValue
	}
	return value
}

func (t *Timer) schedule() {
	t.mode.delays.Reset(t.interval, t.tick, t.delayName("tick"), nil)
}

func (t *Timer) tick(events.Params) error {
	if !t.running {
		return nil
	}

	if t.cfg.Direction == DirectionDown {
		t.ticks--
	} else {
		t.ticks++
	}

	done, err := t.checkDone()
	if done || err != nil {
		return err
	}

	t.schedule()
	return t.post("tick", nil)
}

// checkDone completes the timer once it reaches its end value
func (t *Timer) checkDone() (bool, error) {
	if t.cfg.EndValue == nil {
		return false, nil
	}

	end := *t.cfg.EndValue
	reached := (t.cfg.Direction == DirectionDown && t.ticks <= end) ||
		(t.cfg.Direction != DirectionDown && t.ticks >= end)
	if !reached {
		return false, nil
	}

	return true, t.complete()
}

func (t *Timer) complete() error {
	if err := t.Stop(); err != nil {
		return err
	}
	if err := t.post("complete", nil); err != nil {
		return err
	}
	// a timer that starts at its end value would complete forever
	if t.cfg.RestartOnComplete && t.cfg.StartValue != *t.cfg.EndValue {
		t.Reset()
		return t.Start()
	}
	return nil
}

func (t *Timer) controlHandler(ctl TimerControl) events.Handler {
	id := fmt.Sprintf("mode.%s.timer.%s.%s", t.mode.name, t.name, ctl.Action)
	return events.HandlerFunc(id, func(*events.Event) (events.Result, error) {
		switch ctl.Action {
		case TimerActionAdd:
			return events.Continue(), t.AddTime(ctl.Value)
		case TimerActionSubtract:
			return events.Continue(), t.SubtractTime(ctl.Value)
		case TimerActionJump:
			t.Jump(ctl.Value)
		case TimerActionStart:
			return events.Continue(), t.Start()
		case TimerActionStop:
			return events.Continue(), t.Stop()
		case TimerActionReset:
			t.Reset()
		case TimerActionRestart:
			return events.Continue(), t.Restart()
		case TimerActionPause:
			return events.Continue(), t.Pause(time.Duration(ctl.Value) * time.Millisecond)
		}
		return events.Continue(), nil
	})
}

func (t *Timer) delayName(kind string) string {
	return "timer." + t.name + "." + kind
}

func (t *Timer) post(suffix string, extra events.Params) error {
	params := events.Params{
		"ticks":           t.ticks,
		"ticks_remaining": t.TicksRemaining(),
	}.With(extra)
	return t.mode.bus.Post(fmt.Sprintf("timer_%s_%s", t.name, suffix), nil, params)
}
