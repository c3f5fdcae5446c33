// Package delays runs time-based callbacks on the machine tick.
//
// A single Scheduler is driven by timer_tick. Components own a Manager, which
// names their delays so they can be replaced, checked, run early, or cleared
// in one call when the owner goes away (a mode stopping, for instance).
package delays

import (
	"log"
	"sort"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/clock"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/uuid"
)

// TickPriority is the timer_tick priority of the scheduler. Delays fire before
// ordinary tick handlers.
const TickPriority = 1000

// Callback is run when a delay expires
type Callback func(params events.Params) error

type scheduled struct {
	seq       uint64
	due       time.Time
	callback  func() error
	cancelled bool
}

// SchedulerConfig configures a Scheduler
type SchedulerConfig struct {
	// Bus is optional. When set, the scheduler runs due delays on every timer_tick.
	Bus *events.Bus

	// TimeProvider defaults to the wall clock
	TimeProvider clock.TimeProvider

	// IDGenerator names unnamed delays. Defaults to random UUIDs.
	IDGenerator uuid.Generator
}

// Scheduler keeps every pending delay ordered by due time
type Scheduler struct {
	clock   clock.TimeProvider
	ids     uuid.Generator
	pending []*scheduled
	seq     uint64
	tickKey events.HandlerKey
}

// NewScheduler creates a scheduler and, if a bus is configured, hooks it to timer_tick
func NewScheduler(cfg *SchedulerConfig) *Scheduler {
	if cfg == nil {
		cfg = &SchedulerConfig{}
	}

	s := &Scheduler{
		clock: cfg.TimeProvider,
		ids:   cfg.IDGenerator,
	}
	if s.clock == nil {
		s.clock = clock.SystemTime{}
	}
	if s.ids == nil {
		s.ids = uuid.NewGoogleUUIDGenerator()
	}

	if cfg.Bus != nil {
		s.tickKey = cfg.Bus.AddHandler(events.TimerTick, s, TickPriority, nil)
	}

	return s
}

// ID identifies the scheduler on the bus
func (s *Scheduler) ID() string {
	return "delays.scheduler"
}

// HandleEvent runs due delays on timer_tick
func (s *Scheduler) HandleEvent(*events.Event) (events.Result, error) {
	return events.Continue(), s.RunDue()
}

// NewManager creates a Manager whose delays run on this scheduler
func (s *Scheduler) NewManager(owner string) *Manager {
	return &Manager{
		owner:     owner,
		scheduler: s,
		delays:    make(map[string]*scheduled),
	}
}

// Len returns the number of delays waiting to fire
func (s *Scheduler) Len() int {
	n := 0
	for _, d := range s.pending {
		if !d.cancelled {
			n++
		}
	}
	return n
}

// RunDue fires every delay due at the current time, earliest first. Delays
// added by a firing callback wait for the next call even when already due.
// The first callback error stops the run; remaining due delays fire next time.
// Cancelled delays are dropped on every call.
func (s *Scheduler) RunDue() error {
	now := s.clock.Now()

	var due []*scheduled
	dropped := false
	rest := s.pending[:0:0]
	for _, d := range s.pending {
		switch {
		case d.cancelled:
			dropped = true
		case !d.due.After(now):
			due = append(due, d)
		default:
			rest = append(rest, d)
		}
	}
	if len(due) == 0 && !dropped {
		return nil
	}
	s.pending = rest
	if len(due) == 0 {
		return nil
	}

	for i, d := range due {
		if d.cancelled {
			continue
		}
		d.cancelled = true

		if err := d.callback(); err != nil {
			// put back whatever did not get a chance to run
			for _, left := range due[i+1:] {
				if !left.cancelled {
					s.insert(left)
				}
			}
			return err
		}
	}

	return nil
}

func (s *Scheduler) schedule(after time.Duration, fn func() error) *scheduled {
	s.seq++
	d := &scheduled{
		seq:      s.seq,
		due:      s.clock.Now().Add(after),
		callback: fn,
	}
	s.insert(d)
	return d
}

func (s *Scheduler) insert(d *scheduled) {
	idx := sort.Search(len(s.pending), func(i int) bool {
		p := s.pending[i]
		if p.due.Equal(d.due) {
			return p.seq > d.seq
		}
		return p.due.After(d.due)
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = d
}

// Manager owns a set of named delays for one component
type Manager struct {
	owner     string
	scheduler *Scheduler
	delays    map[string]*scheduled
}

// Owner returns the name the manager was created with
func (m *Manager) Owner() string {
	return m.owner
}

// Add schedules callback to run after d with params. An empty name gets a
// generated one; an existing delay with the same name is replaced. Returns the
// delay's name.
func (m *Manager) Add(d time.Duration, callback Callback, name string, params events.Params) string {
	if name == "" {
		name = m.scheduler.ids.New()
	}

	if existing, ok := m.delays[name]; ok {
		existing.cancelled = true
		delete(m.delays, name)
	}

	params = params.Clone()
	var entry *scheduled
	entry = m.scheduler.schedule(d, func() error {
		if m.delays[name] == entry {
			delete(m.delays, name)
		}
		if err := callback(params); err != nil {
			return errors.Wrapf(err, "delay %s of %s failed", name, m.owner).
				WithMeta("delay", name)
		}
		return nil
	})
	m.delays[name] = entry

	return name
}

// AddIfDoesntExist adds the delay only when no delay with that name is pending
func (m *Manager) AddIfDoesntExist(d time.Duration, callback Callback, name string, params events.Params) string {
	if m.Check(name) {
		return name
	}
	return m.Add(d, callback, name, params)
}

// Reset replaces any pending delay with that name
func (m *Manager) Reset(d time.Duration, callback Callback, name string, params events.Params) string {
	m.Remove(name)
	return m.Add(d, callback, name, params)
}

// Check reports whether a delay with that name is pending
func (m *Manager) Check(name string) bool {
	_, ok := m.delays[name]
	return ok
}

// Remove cancels a pending delay. Unknown names are ignored.
func (m *Manager) Remove(name string) {
	if d, ok := m.delays[name]; ok {
		d.cancelled = true
		delete(m.delays, name)
	}
}

// RunNow cancels the pending delay and runs its callback immediately
func (m *Manager) RunNow(name string) error {
	d, ok := m.delays[name]
	if !ok {
		return nil
	}
	d.cancelled = true
	return d.callback()
}

// Clear cancels every pending delay of this manager
func (m *Manager) Clear() {
	if len(m.delays) > 0 {
		log.Printf("Delays: Clearing %d delays of %s", len(m.delays), m.owner)
	}
	for name, d := range m.delays {
		d.cancelled = true
		delete(m.delays, name)
	}
}

// Len returns the number of pending delays of this manager
func (m *Manager) Len() int {
	return len(m.delays)
}
