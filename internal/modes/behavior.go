package modes

import "github.com/KirkDiggler/pinball-core/internal/events"

// Behavior is the game code of a mode. The controller calls it at fixed points
// of the mode's lifecycle; all calls happen on the loop goroutine.
type Behavior interface {
	// ModeInit runs once, after load hooks, when the mode is created
	ModeInit(m *Mode) error

	// ModeWillStart runs before devices and start hooks are set up
	ModeWillStart(m *Mode, params events.Params) error

	// ModeStart runs after mode_<name>_started has been handled
	ModeStart(m *Mode, params events.Params) error

	// ModeStop runs after mode_<name>_stopped has been handled and the mode's
	// handlers and devices are gone
	ModeStop(m *Mode, params events.Params) error
}

// BaseBehavior implements Behavior with no-ops. Embed it and override what you need.
type BaseBehavior struct{}

// ModeInit does nothing
func (BaseBehavior) ModeInit(*Mode) error { return nil }

// ModeWillStart does nothing
func (BaseBehavior) ModeWillStart(*Mode, events.Params) error { return nil }

// ModeStart does nothing
func (BaseBehavior) ModeStart(*Mode, events.Params) error { return nil }

// ModeStop does nothing
func (BaseBehavior) ModeStop(*Mode, events.Params) error { return nil }

// Device is something a mode brings to life while it runs
type Device interface {
	Name() string
	AddedToMode(m *Mode) error
	RemovedFromMode(m *Mode) error
}

// DeviceFactory builds a device from one entry of a mode config section
type DeviceFactory func(name string, settings any) (Device, error)

// StopFunc is returned by a start hook and run once when the mode stops
type StopFunc func() error

// LoadHook runs once per mode when the mode is created. section is the mode's
// config section for the hook, or the whole *Config when the hook names none.
type LoadHook func(m *Mode, section any, bound events.Params) error

// StartHook runs every time a mode starts and may return a StopFunc
type StartHook func(m *Mode, section any, priority int, bound events.Params) (StopFunc, error)
