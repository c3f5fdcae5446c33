// Package switches moves switch state changes from hardware goroutines onto the
// machine loop and turns them into bus events.
package switches

import (
	"fmt"
	"log"
	"sync"

	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/uuid"
)

// TickPriority runs switch changes before delays and ordinary tick handlers
const TickPriority = 2000

// Config describes one switch
type Config struct {
	Name string
	Tags []string
}

// Handler is called on the loop goroutine when a switch reaches the state it
// was registered for
type Handler func(name string, active bool) error

// Key identifies one switch handler registration
type Key struct {
	Switch string
	ID     string
}

type registration struct {
	key     Key
	active  bool
	handler Handler
}

type report struct {
	name   string
	active bool
}

// ControllerConfig configures a Controller
type ControllerConfig struct {
	Bus         *events.Bus
	IDGenerator uuid.Generator
	Switches    []Config
}

// Controller buffers reports from any goroutine and applies them on timer_tick
type Controller struct {
	mu      sync.Mutex
	reports []report

	bus      *events.Bus
	ids      uuid.Generator
	states   map[string]bool
	tags     map[string][]string
	handlers map[string][]*registration
}

// NewController creates a switch controller and hooks it to timer_tick
func NewController(cfg *ControllerConfig) (*Controller, error) {
	if cfg == nil || cfg.Bus == nil {
		return nil, errors.InvalidArgumentf("switch controller requires a bus")
	}

	c := &Controller{
		bus:      cfg.Bus,
		ids:      cfg.IDGenerator,
		states:   make(map[string]bool),
		tags:     make(map[string][]string),
		handlers: make(map[string][]*registration),
	}
	if c.ids == nil {
		c.ids = uuid.NewGoogleUUIDGenerator()
	}

	for _, sw := range cfg.Switches {
		if sw.Name == "" {
			return nil, errors.Validation("switch name is required")
		}
		c.states[sw.Name] = false
		c.tags[sw.Name] = append([]string(nil), sw.Tags...)
	}

	cfg.Bus.AddHandler(events.TimerTick, events.HandlerFunc("switches.controller", c.handleTick), TickPriority, nil)

	return c, nil
}

// Report records a switch change. Safe to call from any goroutine; the change
// takes effect on the next tick.
func (c *Controller) Report(name string, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reports = append(c.reports, report{name: name, active: active})
}

// IsActive returns the last applied state of a switch
func (c *Controller) IsActive(name string) bool {
	return c.states[name]
}

// AddSwitchHandler calls handler every time the switch reaches the given state
func (c *Controller) AddSwitchHandler(name string, active bool, handler Handler) Key {
	key := Key{Switch: name, ID: c.ids.New()}
	c.handlers[name] = append(c.handlers[name], &registration{
		key:     key,
		active:  active,
		handler: handler,
	})
	return key
}

// RemoveSwitchHandler removes a registration. Unknown keys are ignored.
func (c *Controller) RemoveSwitchHandler(key Key) {
	list := c.handlers[key.Switch]
	kept := make([]*registration, 0, len(list))
	for _, r := range list {
		if r.key != key {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(c.handlers, key.Switch)
		return
	}
	c.handlers[key.Switch] = kept
}

// HandlerCount returns the number of handlers registered for a switch
func (c *Controller) HandlerCount(name string) int {
	return len(c.handlers[name])
}

func (c *Controller) handleTick(*events.Event) (events.Result, error) {
	c.mu.Lock()
	pending := c.reports
	c.reports = nil
	c.mu.Unlock()

	for _, r := range pending {
		if err := c.apply(r); err != nil {
			return events.Continue(), err
		}
	}
	return events.Continue(), nil
}

func (c *Controller) apply(r report) error {
	if prev, known := c.states[r.name]; known && prev == r.active {
		return nil
	}
	c.states[r.name] = r.active

	snapshot := append([]*registration(nil), c.handlers[r.name]...)
	for _, reg := range snapshot {
		if reg.active != r.active {
			continue
		}
		if err := reg.handler(r.name, r.active); err != nil {
			return errors.Wrapf(err, "switch handler for %s failed", r.name).WithMeta("switch", r.name)
		}
	}

	state := "inactive"
	if r.active {
		state = "active"
	}
	log.Printf("Switches: %s %s", r.name, state)

	params := events.Params{"switch": r.name, "state": r.active}
	if err := c.bus.Post(fmt.Sprintf("switch_%s_%s", r.name, state), nil, params); err != nil {
		return err
	}

	if !r.active {
		return nil
	}
	for _, tag := range c.tags[r.name] {
		if err := c.bus.Post("sw_"+tag, nil, params); err != nil {
			return err
		}
	}

	return nil
}
