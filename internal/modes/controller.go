package modes

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/KirkDiggler/pinball-core/internal/delays"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/switches"
)

// HookKey identifies a registered load or start hook
type HookKey uint64

type hook struct {
	key      HookKey
	section  string
	priority int
	bound    events.Params
	load     LoadHook
	start    StartHook
}

// ActiveEntry describes one mode on the active stack
type ActiveEntry struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// ActiveModesParam is the modes_active_modes_changed parameter holding the
// stack as []ActiveEntry, highest priority first
const ActiveModesParam = "active_modes"

// ControllerConfig configures a Controller
type ControllerConfig struct {
	Bus       *events.Bus
	Scheduler *delays.Scheduler

	// Switches is optional; without it modes cannot add switch handlers
	Switches *switches.Controller

	Debug bool
}

// Controller owns every mode, the active stack and the collaborator hooks
type Controller struct {
	bus       *events.Bus
	scheduler *delays.Scheduler
	switches  *switches.Controller
	debug     bool

	modes  map[string]*Mode
	order  []*Mode
	active []*Mode

	loadHooks   []*hook
	startHooks  []*hook
	nextHook    HookKey
	deviceTypes map[string]DeviceFactory

	ballEnding      *events.QueueToken
	stopCount       int
	restartNextBall []*Mode
}

// NewController creates a mode controller and registers its ball handlers
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if cfg == nil || cfg.Bus == nil {
		return nil, errors.InvalidArgumentf("mode controller requires a bus")
	}
	if cfg.Scheduler == nil {
		return nil, errors.InvalidArgumentf("mode controller requires a delay scheduler")
	}

	c := &Controller{
		bus:         cfg.Bus,
		scheduler:   cfg.Scheduler,
		switches:    cfg.Switches,
		debug:       cfg.Debug,
		modes:       make(map[string]*Mode),
		deviceTypes: make(map[string]DeviceFactory),
	}

	c.bus.AddHandler(events.BallEnding, events.HandlerFunc("modes.controller.ball_ending", c.handleBallEnding), 0, nil)
	c.bus.AddHandler(events.BallStarting, events.HandlerFunc("modes.controller.ball_starting", c.handleBallStarting), 0, nil)

	return c, nil
}

// RegisterLoadHook registers fn to run once for every mode created afterwards
// whose config has a non-empty section (or for every mode when section is "").
// Hooks run highest priority first.
func (c *Controller) RegisterLoadHook(fn LoadHook, section string, priority int, bound events.Params) HookKey {
	if fn == nil {
		panic("modes: nil load hook")
	}
	c.nextHook++
	h := &hook{key: c.nextHook, section: section, priority: priority, bound: bound.Clone(), load: fn}
	c.loadHooks = insertHook(c.loadHooks, h)
	return h.key
}

// RegisterStartHook registers fn to run every time a mode whose config has
// section (or any mode when section is "") starts. Hooks run highest priority
// first; a returned StopFunc runs once when that mode stops.
func (c *Controller) RegisterStartHook(fn StartHook, section string, priority int, bound events.Params) HookKey {
	if fn == nil {
		panic("modes: nil start hook")
	}
	c.nextHook++
	h := &hook{key: c.nextHook, section: section, priority: priority, bound: bound.Clone(), start: fn}
	c.startHooks = insertHook(c.startHooks, h)

	if c.debug {
		log.Printf("ModeController: Registered start hook %d for section %q at priority %d", h.key, section, priority)
	}
	return h.key
}

// RemoveStartHook unregisters a start hook. Modes already running keep their
// StopFuncs.
func (c *Controller) RemoveStartHook(key HookKey) {
	kept := c.startHooks[:0:0]
	for _, h := range c.startHooks {
		if h.key != key {
			kept = append(kept, h)
		}
	}
	c.startHooks = kept
}

// insertHook keeps hooks sorted descending by priority, ties in registration order
func insertHook(list []*hook, h *hook) []*hook {
	idx := len(list)
	for i, existing := range list {
		if existing.priority < h.priority {
			idx = i
			break
		}
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = h
	return list
}

// RegisterDeviceType makes modes create a device through factory for every
// entry of section in their config
func (c *Controller) RegisterDeviceType(section string, factory DeviceFactory) {
	c.deviceTypes[section] = factory
}

// CreateMode validates cfg, builds the mode, runs load hooks and the
// behavior's ModeInit
func (c *Controller) CreateMode(cfg *Config, behavior Behavior) (*Mode, error) {
	if cfg == nil {
		return nil, errors.InvalidArgumentf("mode config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, exists := c.modes[cfg.Mode.Name]; exists {
		return nil, errors.AlreadyExistsf("mode %s already exists", cfg.Mode.Name).WithMeta("mode", cfg.Mode.Name)
	}

	m := newMode(c, cfg, behavior)

	for _, h := range c.loadHooks {
		if h.section == "" {
			if err := h.load(m, cfg, h.bound.Clone()); err != nil {
				return nil, errors.Wrapf(err, "load hook %d failed for mode %s", h.key, m.name)
			}
			continue
		}
		section := cfg.Section(h.section)
		if !cfg.HasSection(h.section) || isEmpty(section) {
			continue
		}
		if err := h.load(m, section, h.bound.Clone()); err != nil {
			return nil, errors.Wrapf(err, "load hook %d failed for mode %s", h.key, m.name)
		}
	}

	if err := m.behavior.ModeInit(m); err != nil {
		return nil, errors.Wrapf(err, "mode %s init failed", m.name).WithMeta("mode", m.name)
	}

	m.registerStartEvents()
	c.modes[m.name] = m
	c.order = append(c.order, m)

	log.Printf("ModeController: Created mode %s (priority %d)", m.name, cfg.Mode.Priority)
	return m, nil
}

func isEmpty(section any) bool {
	switch v := section.(type) {
	case nil:
		return true
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]TimerConfig:
		return len(v) == 0
	}
	return false
}

// Mode returns a mode by name
func (c *Controller) Mode(name string) (*Mode, error) {
	m, ok := c.modes[name]
	if !ok {
		return nil, errors.NotFoundf("mode %s not found", name).WithMeta("mode", name)
	}
	return m, nil
}

// Modes returns every mode in creation order
func (c *Controller) Modes() []*Mode {
	return append([]*Mode(nil), c.order...)
}

// ActiveModes returns the active stack, highest priority first
func (c *Controller) ActiveModes() []*Mode {
	return append([]*Mode(nil), c.active...)
}

// IsActive reports whether the named mode is on the active stack
func (c *Controller) IsActive(name string) bool {
	for _, m := range c.active {
		if m.name == name {
			return true
		}
	}
	return false
}

// ActiveChange adds or removes m from the active stack, re-sorts it and posts
// modes_active_modes_changed
func (c *Controller) ActiveChange(m *Mode, active bool) error {
	if active {
		if c.indexOf(m) >= 0 {
			return nil
		}
		c.active = append(c.active, m)
	} else {
		idx := c.indexOf(m)
		if idx < 0 {
			return nil
		}
		c.active = append(c.active[:idx:idx], c.active[idx+1:]...)
	}

	// stable: equal priorities stay in activation order
	sort.SliceStable(c.active, func(i, j int) bool {
		return c.active[i].priority > c.active[j].priority
	})

	if c.debug {
		c.Dump()
	}

	return c.bus.Post(events.ModesActiveModesChanged, nil, events.Params{ActiveModesParam: c.snapshot()})
}

func (c *Controller) indexOf(m *Mode) int {
	for i, existing := range c.active {
		if existing == m {
			return i
		}
	}
	return -1
}

func (c *Controller) snapshot() []ActiveEntry {
	out := make([]ActiveEntry, len(c.active))
	for i, m := range c.active {
		out[i] = ActiveEntry{Name: m.name, Priority: m.priority}
	}
	return out
}

// Dump logs the active stack
func (c *Controller) Dump() {
	var b strings.Builder
	b.WriteString("ModeController: Active modes:")
	if len(c.active) == 0 {
		b.WriteString(" none")
	}
	for _, m := range c.active {
		fmt.Fprintf(&b, " %s(%d)", m.name, m.priority)
	}
	log.Print(b.String())
}

func (c *Controller) handleBallEnding(ev *events.Event) (events.Result, error) {
	if len(c.active) == 0 {
		return events.Continue(), nil
	}

	token := ev.Queue
	if token != nil {
		if err := token.Wait(); err != nil {
			return events.Continue(), err
		}
	}
	c.ballEnding = token
	c.stopCount = 0

	for _, m := range c.ActiveModes() {
		if m.config.Mode.RestartOnNextBall {
			c.restartNextBall = append(c.restartNextBall, m)
		}
		if !m.config.Mode.StopOnBallEnd {
			continue
		}

		if c.debug {
			log.Printf("ModeController: Stopping %s for ball end", m.name)
		}
		c.stopCount++
		if err := m.Stop(WithStopCallback(c.ballEndingModeStopped)); err != nil {
			return events.Continue(), err
		}
	}

	if c.stopCount == 0 {
		return events.Continue(), c.releaseBallEnding()
	}
	return events.Continue(), nil
}

func (c *Controller) ballEndingModeStopped() error {
	c.stopCount--
	if c.stopCount > 0 {
		return nil
	}
	return c.releaseBallEnding()
}

func (c *Controller) releaseBallEnding() error {
	token := c.ballEnding
	c.ballEnding = nil
	if token == nil || token.Done() {
		return nil
	}
	return token.Clear()
}

func (c *Controller) handleBallStarting(*events.Event) (events.Result, error) {
	restart := c.restartNextBall
	c.restartNextBall = nil

	for _, m := range restart {
		log.Printf("ModeController: Restarting %s on next ball", m.name)
		if err := m.Start(); err != nil {
			return events.Continue(), err
		}
	}
	return events.Continue(), nil
}
