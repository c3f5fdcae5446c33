package modes

import (
	"fmt"
	"log"
	"sort"

	"github.com/KirkDiggler/pinball-core/internal/delays"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/switches"
)

// State is where a mode is in its lifecycle
type State int

const (
	StateInactive State = iota
	StateStarting
	StateActive
	StateStopping
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type startOptions struct {
	priority *int
	params   events.Params
	queue    *events.QueueToken
	callback func() error
}

// StartOption customises a single Start call
type StartOption func(*startOptions)

// WithPriority overrides the configured priority for this run
func WithPriority(priority int) StartOption {
	return func(o *startOptions) { o.priority = &priority }
}

// WithStartParams passes params to the start events and to Behavior.ModeStart
func WithStartParams(params events.Params) StartOption {
	return func(o *startOptions) { o.params = params }
}

// WithQueue hands the mode an in-flight queue event. Modes configured with
// use_wait_queue hold it until they stop.
func WithQueue(token *events.QueueToken) StartOption {
	return func(o *startOptions) { o.queue = token }
}

// WithStartCallback runs fn once the mode has fully started
func WithStartCallback(fn func() error) StartOption {
	return func(o *startOptions) { o.callback = fn }
}

type stopOptions struct {
	params   events.Params
	callback func() error
}

// StopOption customises a single Stop call
type StopOption func(*stopOptions)

// WithStopParams passes params to Behavior.ModeStop
func WithStopParams(params events.Params) StopOption {
	return func(o *stopOptions) { o.params = params }
}

// WithStopCallback runs fn once the mode has fully stopped
func WithStopCallback(fn func() error) StopOption {
	return func(o *stopOptions) { o.callback = fn }
}

// Mode is a priority-ranked unit of game logic. Everything a mode registers
// while running (event handlers, switch handlers, delays, timers, devices) is
// torn down when it stops.
type Mode struct {
	name       string
	config     *Config
	behavior   Behavior
	controller *Controller
	bus        *events.Bus
	delays     *delays.Manager

	state    State
	priority int

	startParams   events.Params
	stopParams    events.Params
	startCallback func() error
	stopCallbacks []func() error
	stopFuncs     []StopFunc

	handlerKeys []events.HandlerKey
	switchKeys  []switches.Key
	devices     []Device
	timers      map[string]*Timer
	waitQueue   *events.QueueToken
}

func newMode(c *Controller, cfg *Config, behavior Behavior) *Mode {
	if behavior == nil {
		behavior = BaseBehavior{}
	}

	return &Mode{
		name:       cfg.Mode.Name,
		config:     cfg,
		behavior:   behavior,
		controller: c,
		bus:        c.bus,
		delays:     c.scheduler.NewManager("mode." + cfg.Mode.Name),
	}
}

// registerStartEvents makes the mode's start events start it. These handlers
// live as long as the mode exists.
func (m *Mode) registerStartEvents() {
	startHandler := events.HandlerFunc("mode."+m.name+".start", m.handleStartEvent)
	for _, ev := range m.config.Mode.StartEvents {
		m.bus.AddHandler(ev, startHandler, m.config.Mode.Priority+m.config.Mode.StartPriority, nil)
	}
}

// Name returns the mode name
func (m *Mode) Name() string {
	return m.name
}

// Config returns the mode's configuration
func (m *Mode) Config() *Config {
	return m.config
}

// Behavior returns the mode's game code
func (m *Mode) Behavior() Behavior {
	return m.behavior
}

// Priority returns the runtime priority. It is zero while the mode is inactive.
func (m *Mode) Priority() int {
	return m.priority
}

// State returns the lifecycle state
func (m *Mode) State() State {
	return m.state
}

// IsActive reports whether the mode is running. A stopping mode still counts
// as active until its stopping queue event resolves.
func (m *Mode) IsActive() bool {
	return m.state == StateActive || m.state == StateStopping
}

// Delays returns the mode's delay manager. Its delays are cleared when the mode stops.
func (m *Mode) Delays() *delays.Manager {
	return m.delays
}

// Timer returns a running mode timer by name
func (m *Mode) Timer(name string) (*Timer, bool) {
	t, ok := m.timers[name]
	return t, ok
}

// Devices returns the devices created for the current run
func (m *Mode) Devices() []Device {
	return append([]Device(nil), m.devices...)
}

// HandlerKeys returns the keys of handlers this mode will remove when it stops
func (m *Mode) HandlerKeys() []events.HandlerKey {
	return append([]events.HandlerKey(nil), m.handlerKeys...)
}

// AddEventHandler registers a handler at the mode's priority plus priority.
// It is removed automatically when the mode stops.
func (m *Mode) AddEventHandler(event string, handler events.Handler, priority int, bound events.Params) events.HandlerKey {
	key := m.bus.AddHandler(event, handler, m.priority+priority, bound)
	m.handlerKeys = append(m.handlerKeys, key)
	return key
}

// AddSwitchHandler registers a switch handler that is removed as soon as the
// mode begins to stop
func (m *Mode) AddSwitchHandler(name string, active bool, handler switches.Handler) (switches.Key, error) {
	if m.controller.switches == nil {
		return switches.Key{}, errors.FailedPreconditionf("mode %s: no switch controller configured", m.name)
	}

	key := m.controller.switches.AddSwitchHandler(name, active, handler)
	m.switchKeys = append(m.switchKeys, key)
	return key, nil
}

func (m *Mode) handleStartEvent(ev *events.Event) (events.Result, error) {
	return events.Continue(), m.Start(WithStartParams(ev.Params), WithQueue(ev.Queue))
}

func (m *Mode) handleStopEvent(ev *events.Event) (events.Result, error) {
	if ev.Queue == nil || !m.IsActive() {
		return events.Continue(), m.Stop(WithStopParams(ev.Params))
	}

	// hold a queue stop event until the mode is fully down
	token := ev.Queue
	if err := token.Wait(); err != nil {
		return events.Continue(), err
	}
	return events.Continue(), m.Stop(WithStopParams(ev.Params), WithStopCallback(func() error {
		if token.Done() {
			return nil
		}
		return token.Clear()
	}))
}

// Start brings the mode up. It is a no-op unless the mode is inactive.
func (m *Mode) Start(opts ...StartOption) error {
	o := &startOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if m.state != StateInactive {
		m.debugf("Start ignored, mode is %s", m.state)
		return nil
	}
	m.state = StateStarting

	params := o.params.Clone()
	if err := m.bus.Post(fmt.Sprintf("mode_%s_will_start", m.name), nil, params); err != nil {
		return m.abortStart(err)
	}

	if m.config.Mode.UseWaitQueue && o.queue != nil && !o.queue.Done() {
		if err := o.queue.Wait(); err != nil {
			return m.abortStart(err)
		}
		m.waitQueue = o.queue
	}

	m.priority = m.config.Mode.Priority
	if o.priority != nil {
		m.priority = *o.priority
	}
	m.startParams = params

	if err := m.behavior.ModeWillStart(m, params); err != nil {
		return m.abortStart(errors.Wrapf(err, "mode %s will-start failed", m.name))
	}

	if err := m.addDevices(); err != nil {
		return m.abortStart(err)
	}

	stopHandler := events.HandlerFunc("mode."+m.name+".stop", m.handleStopEvent)
	for _, ev := range m.config.Mode.StopEvents {
		m.AddEventHandler(ev, stopHandler, m.config.Mode.StopPriority+1, nil)
	}

	m.startCallback = o.callback

	for _, h := range m.controller.startHooks {
		if h.section != "" && !m.config.HasSection(h.section) {
			continue
		}
		stop, err := h.start(m, m.sectionFor(h.section), m.priority, h.bound.Clone())
		if err != nil {
			return m.abortStart(errors.Wrapf(err, "start hook %d failed for mode %s", h.key, m.name).WithMeta("mode", m.name))
		}
		if stop != nil {
			m.stopFuncs = append(m.stopFuncs, stop)
		}
	}

	m.createTimers()

	return m.bus.PostQueue(fmt.Sprintf("mode_%s_starting", m.name), m.started, params)
}

// abortStart undoes a Start that failed before the mode went active, so the
// mode can be started again. The original error is returned; rollback errors
// are only logged.
func (m *Mode) abortStart(err error) error {
	m.bus.RemoveHandlersByKeys(m.handlerKeys)
	m.handlerKeys = nil

	stops := m.stopFuncs
	m.stopFuncs = nil
	for _, stop := range stops {
		if stopErr := stop(); stopErr != nil {
			log.Printf("Mode: %s stop hook failed during start rollback: %v", m.name, stopErr)
		}
	}

	devices := m.devices
	m.devices = nil
	for _, d := range devices {
		if devErr := d.RemovedFromMode(m); devErr != nil {
			log.Printf("Mode: %s device %s failed to leave during start rollback: %v", m.name, d.Name(), devErr)
		}
	}

	if m.waitQueue != nil {
		token := m.waitQueue
		m.waitQueue = nil
		if !token.Done() {
			if clearErr := token.Clear(); clearErr != nil {
				log.Printf("Mode: %s failed to release queue event during start rollback: %v", m.name, clearErr)
			}
		}
	}

	m.startParams = nil
	m.startCallback = nil
	m.priority = 0
	m.state = StateInactive
	log.Printf("Mode: %s failed to start: %v", m.name, err)

	return err
}

func (m *Mode) started(events.Params) error {
	m.state = StateActive
	log.Printf("Mode: %s started at priority %d", m.name, m.priority)

	if err := m.controller.ActiveChange(m, true); err != nil {
		return err
	}

	for _, name := range m.config.TimerNames() {
		t := m.timers[name]
		if t.cfg.StartRunning {
			if err := t.Start(); err != nil {
				return err
			}
		}
	}

	for _, ev := range m.config.Mode.EventsWhenStarted {
		if err := m.bus.Post(ev, nil, nil); err != nil {
			return err
		}
	}

	return m.bus.Post(fmt.Sprintf("mode_%s_started", m.name), m.modeStarted, m.startParams)
}

func (m *Mode) modeStarted(events.Params) error {
	params := m.startParams
	m.startParams = nil
	if err := m.behavior.ModeStart(m, params); err != nil {
		return errors.Wrapf(err, "mode %s start failed", m.name).WithMeta("mode", m.name)
	}

	cb := m.startCallback
	m.startCallback = nil
	if cb != nil {
		return cb()
	}
	return nil
}

// Stop tears the mode down. It is a no-op while the mode is inactive or still
// starting. A stop requested while already stopping only adds its callback.
func (m *Mode) Stop(opts ...StopOption) error {
	o := &stopOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if !m.IsActive() {
		m.debugf("Stop ignored, mode is %s", m.state)
		return nil
	}
	if o.callback != nil {
		m.stopCallbacks = append(m.stopCallbacks, o.callback)
	}
	if m.state == StateStopping {
		return nil
	}

	m.state = StateStopping
	m.stopParams = o.params.Clone()

	if err := m.bus.Post(fmt.Sprintf("mode_%s_will_stop", m.name), nil, nil); err != nil {
		return err
	}

	for _, key := range m.switchKeys {
		m.controller.switches.RemoveSwitchHandler(key)
	}
	m.switchKeys = nil
	m.delays.Clear()

	if err := m.stopTimers(); err != nil {
		return err
	}

	return m.bus.PostQueue(fmt.Sprintf("mode_%s_stopping", m.name), m.stopped, nil)
}

func (m *Mode) stopped(events.Params) error {
	m.priority = 0
	m.state = StateInactive
	log.Printf("Mode: %s stopped", m.name)

	if err := m.controller.ActiveChange(m, false); err != nil {
		return err
	}

	stops := m.stopFuncs
	m.stopFuncs = nil
	for _, stop := range stops {
		if err := stop(); err != nil {
			return errors.Wrapf(err, "stop hook failed for mode %s", m.name).WithMeta("mode", m.name)
		}
	}

	for _, ev := range m.config.Mode.EventsWhenStopped {
		if err := m.bus.Post(ev, nil, nil); err != nil {
			return err
		}
	}

	// a restart triggered by mode_<name>_stopped handlers registers fresh
	// keys and devices; only tear down what belonged to this run
	keys := m.handlerKeys
	m.handlerKeys = nil
	devices := m.devices
	m.devices = nil
	params := m.stopParams
	m.stopParams = nil
	callbacks := m.stopCallbacks
	m.stopCallbacks = nil

	err := m.bus.Post(fmt.Sprintf("mode_%s_stopped", m.name), func(events.Params) error {
		return m.modeStopped(keys, devices, params, callbacks)
	}, nil)
	if err != nil {
		return err
	}

	if err := m.bus.Post(events.ClearConfig, nil, events.Params{"key": m.name}); err != nil {
		return err
	}

	if m.waitQueue != nil {
		token := m.waitQueue
		m.waitQueue = nil
		if !token.Done() {
			return token.Clear()
		}
	}
	return nil
}

func (m *Mode) modeStopped(keys []events.HandlerKey, devices []Device, params events.Params, callbacks []func() error) error {
	m.bus.RemoveHandlersByKeys(keys)

	for _, d := range devices {
		if err := d.RemovedFromMode(m); err != nil {
			return errors.Wrapf(err, "device %s failed to leave mode %s", d.Name(), m.name)
		}
	}

	if err := m.behavior.ModeStop(m, params); err != nil {
		return errors.Wrapf(err, "mode %s stop failed", m.name).WithMeta("mode", m.name)
	}

	for _, cb := range callbacks {
		if err := cb(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mode) sectionFor(section string) any {
	if section == "" {
		return m.config
	}
	return m.config.Section(section)
}

func (m *Mode) addDevices() error {
	sections := make([]string, 0, len(m.controller.deviceTypes))
	for section := range m.controller.deviceTypes {
		if m.config.HasSection(section) {
			sections = append(sections, section)
		}
	}
	sort.Strings(sections)

	for _, section := range sections {
		entries, ok := m.config.Section(section).(map[string]any)
		if !ok {
			return errors.Validationf("mode %s: section %s must map device names to settings", m.name, section).
				WithMeta("mode", m.name)
		}

		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)

		factory := m.controller.deviceTypes[section]
		for _, name := range names {
			device, err := factory(name, entries[name])
			if err != nil {
				return errors.Wrapf(err, "mode %s: failed to create %s device %s", m.name, section, name)
			}
			if err := device.AddedToMode(m); err != nil {
				return errors.Wrapf(err, "mode %s: device %s failed to join", m.name, name)
			}
			m.devices = append(m.devices, device)
		}
	}

	return nil
}

func (m *Mode) debugf(format string, args ...any) {
	if m.controller.debug {
		log.Printf("Mode: %s: "+format, append([]any{m.name}, args...)...)
	}
}
