// Package machine runs the bus on a single goroutine. Everything that touches
// the bus, the delay scheduler or the modes runs inside Tick.
package machine

import (
	"context"
	"log"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/clock"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
)

const (
	DefaultTickHz         = 30
	DefaultStallWarnAfter = 10 * time.Second
	DefaultInboxSize      = 1024
)

// Tick params posted with every timer_tick
const (
	TickParam = "tick"
	TimeParam = "time"
)

// LoopConfig configures a Loop
type LoopConfig struct {
	Bus *events.Bus

	TickHz         int
	StallWarnAfter time.Duration
	InboxSize      int
	TimeProvider   clock.TimeProvider
}

// Loop drives the machine: each tick drains the hand-off inbox, posts
// timer_tick and checks for stalled queue events
type Loop struct {
	bus        *events.Bus
	interval   time.Duration
	stallAfter time.Duration
	clock      clock.TimeProvider
	inbox      chan func() error

	ticks  uint64
	warned map[uint64]bool
}

// NewLoop creates a Loop
func NewLoop(cfg *LoopConfig) (*Loop, error) {
	if cfg == nil || cfg.Bus == nil {
		return nil, errors.InvalidArgumentf("machine loop requires a bus")
	}

	hz := cfg.TickHz
	if hz <= 0 {
		hz = DefaultTickHz
	}
	stallAfter := cfg.StallWarnAfter
	if stallAfter <= 0 {
		stallAfter = DefaultStallWarnAfter
	}
	size := cfg.InboxSize
	if size <= 0 {
		size = DefaultInboxSize
	}
	timeProvider := cfg.TimeProvider
	if timeProvider == nil {
		timeProvider = clock.SystemTime{}
	}

	return &Loop{
		bus:        cfg.Bus,
		interval:   time.Second / time.Duration(hz),
		stallAfter: stallAfter,
		clock:      timeProvider,
		inbox:      make(chan func() error, size),
		warned:     make(map[uint64]bool),
	}, nil
}

// Interval returns the time between ticks
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Ticks returns how many ticks have run. Loop goroutine only.
func (l *Loop) Ticks() uint64 {
	return l.ticks
}

// Enqueue hands fn to the loop goroutine; it runs at the start of the next
// tick. Safe to call from any goroutine.
func (l *Loop) Enqueue(fn func() error) error {
	if fn == nil {
		return errors.InvalidArgumentf("nil function")
	}
	select {
	case l.inbox <- fn:
		return nil
	default:
		return errors.Newf(errors.CodeUnavailable, "machine inbox is full (%d)", cap(l.inbox))
	}
}

// Run ticks until ctx is done or a tick fails
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("Machine: Running at %v per tick", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Machine: Stopped after %d ticks", l.ticks)
			return nil
		case <-ticker.C:
			if err := l.Tick(); err != nil {
				log.Printf("Machine: Tick %d failed: %v", l.ticks, err)
				return err
			}
		}
	}
}

// Tick runs one iteration of the loop on the calling goroutine
func (l *Loop) Tick() error {
	if err := l.drain(); err != nil {
		return err
	}

	l.ticks++
	now := l.clock.Now()
	if err := l.bus.Post(events.TimerTick, nil, events.Params{TickParam: l.ticks, TimeParam: now}); err != nil {
		return errors.Wrapf(err, "timer tick %d failed", l.ticks)
	}

	l.checkStalls(now)
	return nil
}

func (l *Loop) drain() error {
	for {
		select {
		case fn := <-l.inbox:
			if err := fn(); err != nil {
				return errors.Wrapf(err, "hand-off failed")
			}
		default:
			return nil
		}
	}
}

// checkStalls logs queue events nobody cleared. They are never forced.
func (l *Loop) checkStalls(now time.Time) {
	pending := l.bus.Pending()
	live := make(map[uint64]bool, len(pending))

	for _, p := range pending {
		live[p.ID] = true
		if l.warned[p.ID] {
			continue
		}
		if age := now.Sub(p.PostedAt); age >= l.stallAfter {
			log.Printf("Machine: Queue event %s still waiting on %d clears after %v", p.Event, p.Waits, age.Round(time.Millisecond))
			l.warned[p.ID] = true
		}
	}

	for id := range l.warned {
		if !live[id] {
			delete(l.warned, id)
		}
	}
}

// Stalled returns how many pending queue events have been reported as stalled
func (l *Loop) Stalled() int {
	return len(l.warned)
}
