// Package forwarding mirrors bus traffic to the outside world. Handlers on the
// loop goroutine turn events into Messages and hand them to a buffered outbox;
// Run drains the outbox on its own goroutine and publishes to every Sink.
package forwarding

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KirkDiggler/pinball-core/internal/clock"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

//go:generate mockgen -destination=mock/mock_sink.go -package=mockforwarding -source=forwarder.go

// DefaultBufferSize is the outbox capacity when none is configured
const DefaultBufferSize = 256

// Priority of the forwarder's handlers. They run after game logic.
const Priority = -1000

// MessageType tells sinks what a Message carries
type MessageType string

const (
	MessageTypeEvent       MessageType = "event"
	MessageTypeActiveModes MessageType = "active_modes"
)

// Message is one forwarded item
type Message struct {
	Type   MessageType         `json:"type"`
	Event  string              `json:"event,omitempty"`
	Params events.Params       `json:"params,omitempty"`
	Modes  []modes.ActiveEntry `json:"modes,omitempty"`
	Time   time.Time           `json:"time"`
}

// Sink publishes forwarded messages. Send is called from the forwarder's Run
// goroutine, one message at a time per sink.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// ForwarderConfig configures a Forwarder
type ForwarderConfig struct {
	Bus   *events.Bus
	Sinks []Sink

	// Events are forwarded when posted. The active stack is always forwarded.
	Events []string

	// MonitorAll forwards every posted event instead of Events
	MonitorAll bool

	BufferSize   int
	TimeProvider clock.TimeProvider
}

// Forwarder is a pure consumer of the bus
type Forwarder struct {
	bus    *events.Bus
	sinks  []Sink
	clock  clock.TimeProvider
	outbox chan *Message

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// NewForwarder creates a forwarder and registers its handlers on the bus
func NewForwarder(cfg *ForwarderConfig) (*Forwarder, error) {
	if cfg == nil || cfg.Bus == nil {
		return nil, errors.InvalidArgumentf("forwarder requires a bus")
	}

	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	timeProvider := cfg.TimeProvider
	if timeProvider == nil {
		timeProvider = clock.SystemTime{}
	}

	f := &Forwarder{
		bus:    cfg.Bus,
		sinks:  cfg.Sinks,
		clock:  timeProvider,
		outbox: make(chan *Message, size),
	}

	if cfg.MonitorAll {
		f.bus.AddMonitor(f.monitor)
		return f, nil
	}

	f.bus.AddHandler(events.ModesActiveModesChanged, events.HandlerFunc("forwarding.active_modes", f.handleActiveModes), Priority, nil)
	seen := map[string]bool{events.ModesActiveModesChanged: true}
	for _, name := range cfg.Events {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		f.bus.AddHandler(name, events.HandlerFunc("forwarding.event", f.handleEvent), Priority, nil)
	}

	return f, nil
}

func (f *Forwarder) monitor(p events.PostedEvent) {
	if p.Name == events.TimerTick {
		return
	}
	if p.Name == events.ModesActiveModesChanged {
		f.enqueue(f.activeModesMessage(p.Params))
		return
	}
	f.enqueue(&Message{Type: MessageTypeEvent, Event: p.Name, Params: p.Params.Clone(), Time: f.clock.Now()})
}

func (f *Forwarder) handleEvent(ev *events.Event) (events.Result, error) {
	f.enqueue(&Message{Type: MessageTypeEvent, Event: ev.Name, Params: ev.Params.Clone(), Time: f.clock.Now()})
	return events.Continue(), nil
}

func (f *Forwarder) handleActiveModes(ev *events.Event) (events.Result, error) {
	f.enqueue(f.activeModesMessage(ev.Params))
	return events.Continue(), nil
}

func (f *Forwarder) activeModesMessage(params events.Params) *Message {
	stack, _ := params[modes.ActiveModesParam].([]modes.ActiveEntry)
	return &Message{
		Type:  MessageTypeActiveModes,
		Event: events.ModesActiveModesChanged,
		Modes: append([]modes.ActiveEntry{}, stack...),
		Time:  f.clock.Now(),
	}
}

// enqueue never blocks the loop goroutine; a full outbox drops the message
func (f *Forwarder) enqueue(msg *Message) {
	select {
	case f.outbox <- msg:
	default:
		if f.dropped.Add(1) == 1 {
			log.Printf("Forwarder: Outbox full, dropping %s", msg.Event)
		}
	}
}

// Run publishes queued messages until ctx is done
func (f *Forwarder) Run(ctx context.Context) error {
	log.Printf("Forwarder: Publishing to %d sinks", len(f.sinks))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-f.outbox:
			f.publish(ctx, msg)
		}
	}
}

// publish fans msg out to every sink. Sink failures are logged, they never
// reach the machine.
func (f *Forwarder) publish(ctx context.Context, msg *Message) {
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range f.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Send(gctx, msg); err != nil {
				log.Printf("Forwarder: Sink %s failed to send %s: %v", sink.Name(), msg.Event, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	f.sent.Add(1)
}

// Pending returns the number of messages waiting in the outbox
func (f *Forwarder) Pending() int {
	return len(f.outbox)
}

// Dropped returns how many messages were lost to a full outbox
func (f *Forwarder) Dropped() uint64 {
	return f.dropped.Load()
}

// Sent returns how many messages were published
func (f *Forwarder) Sent() uint64 {
	return f.sent.Load()
}
