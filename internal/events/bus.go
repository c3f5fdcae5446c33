package events

import (
	"log"
	"sort"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/clock"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/uuid"
)

type entry struct {
	handler  Handler
	priority int
	bound    Params
	key      HandlerKey
}

type posted struct {
	name     string
	kind     Kind
	callback Callback
	params   Params
}

// BusConfig holds the optional collaborators of a Bus
type BusConfig struct {
	// IDGenerator creates handler keys. Defaults to random UUIDs.
	IDGenerator uuid.Generator

	// TimeProvider stamps queue tokens. Defaults to the wall clock.
	TimeProvider clock.TimeProvider

	// Debug logs every post and handler invocation
	Debug bool
}

// Bus registers prioritized handlers per event name and dispatches posted
// events one at a time. A post made while another event is dispatching is
// appended to a FIFO and runs after the current event and its callback.
//
// Bus is not safe for concurrent use. Everything touching it must run on the
// machine loop goroutine.
type Bus struct {
	handlers    map[string][]*entry
	queue       []*posted
	dispatching bool
	monitors    []Monitor

	pending   map[uint64]*QueueToken
	nextToken uint64

	ids   uuid.Generator
	clock clock.TimeProvider
	debug bool
}

// NewBus creates a new event bus
func NewBus(cfg *BusConfig) *Bus {
	if cfg == nil {
		cfg = &BusConfig{}
	}

	b := &Bus{
		handlers: make(map[string][]*entry),
		pending:  make(map[uint64]*QueueToken),
		ids:      cfg.IDGenerator,
		clock:    cfg.TimeProvider,
		debug:    cfg.Debug,
	}
	if b.ids == nil {
		b.ids = uuid.NewGoogleUUIDGenerator()
	}
	if b.clock == nil {
		b.clock = clock.SystemTime{}
	}

	return b
}

// AddHandler registers handler for event and returns a key for later removal.
// Handlers run highest priority first; equal priorities run in registration
// order. Registering the same handler twice creates two registrations.
func (b *Bus) AddHandler(event string, handler Handler, priority int, bound Params) HandlerKey {
	if handler == nil {
		panic("events: nil handler for event " + event)
	}

	event = normalize(event)
	key := HandlerKey{Event: event, ID: b.ids.New()}
	e := &entry{
		handler:  handler,
		priority: priority,
		bound:    bound.Clone(),
		key:      key,
	}

	// insert after every entry with priority >= the new one
	list := b.handlers[event]
	idx := len(list)
	for i, existing := range list {
		if existing.priority < priority {
			idx = i
			break
		}
	}
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = e
	b.handlers[event] = list

	if b.debug {
		log.Printf("EventBus: Registered handler %s for event %s with priority %d", handler.ID(), event, priority)
	}

	return key
}

// ReplaceHandler removes every registration of handler for event, then adds it
// again with the new priority and bound params
func (b *Bus) ReplaceHandler(event string, handler Handler, priority int, bound Params) HandlerKey {
	b.RemoveHandlerByEvent(event, handler)
	return b.AddHandler(event, handler, priority, bound)
}

// RemoveHandler removes every registration of handler across all events
func (b *Bus) RemoveHandler(handler Handler) {
	for event := range b.handlers {
		b.removeFromEvent(event, func(e *entry) bool {
			return e.handler.ID() == handler.ID()
		})
	}
}

// RemoveHandlerByEvent removes handler from a single event, whatever its bound params
func (b *Bus) RemoveHandlerByEvent(event string, handler Handler) {
	b.removeFromEvent(normalize(event), func(e *entry) bool {
		return e.handler.ID() == handler.ID()
	})
}

// RemoveHandlerByKey removes the registration identified by key
func (b *Bus) RemoveHandlerByKey(key HandlerKey) {
	b.removeFromEvent(key.Event, func(e *entry) bool {
		return e.key == key
	})
}

// RemoveHandlersByKeys removes several registrations
func (b *Bus) RemoveHandlersByKeys(keys []HandlerKey) {
	for _, key := range keys {
		b.RemoveHandlerByKey(key)
	}
}

// removeFromEvent builds a fresh slice so in-flight dispatch snapshots stay intact
func (b *Bus) removeFromEvent(event string, match func(*entry) bool) {
	list, ok := b.handlers[event]
	if !ok {
		return
	}

	kept := make([]*entry, 0, len(list))
	for _, e := range list {
		if match(e) {
			if b.debug {
				log.Printf("EventBus: Removing handler %s from event %s", e.handler.ID(), event)
			}
			continue
		}
		kept = append(kept, e)
	}

	if len(kept) == 0 {
		delete(b.handlers, event)
		return
	}
	b.handlers[event] = kept
}

// HasHandlers reports whether anything is registered for event
func (b *Bus) HasHandlers(event string) bool {
	_, ok := b.handlers[normalize(event)]
	return ok
}

// HandlerCount returns the number of registrations for event
func (b *Bus) HandlerCount(event string) int {
	return len(b.handlers[normalize(event)])
}

// TotalHandlerCount returns the number of registrations across all events
func (b *Bus) TotalHandlerCount() int {
	total := 0
	for _, list := range b.handlers {
		total += len(list)
	}
	return total
}

// Clear removes all handlers
func (b *Bus) Clear() {
	b.handlers = make(map[string][]*entry)
	log.Printf("EventBus: Cleared all handlers")
}

// AddMonitor registers an observer that sees every post
func (b *Bus) AddMonitor(m Monitor) {
	b.monitors = append(b.monitors, m)
}

// Dispatching reports whether an event is currently being dispatched
func (b *Bus) Dispatching() bool {
	return b.dispatching
}

// QueueLen returns the number of posted events waiting for dispatch
func (b *Bus) QueueLen() int {
	return len(b.queue)
}

// Post posts a standard event: every handler runs, then callback receives the
// payload plus the last handler's result under ResultKey, if it reported one
func (b *Bus) Post(event string, callback Callback, params Params) error {
	return b.post(event, KindStandard, callback, params)
}

// PostBoolean posts a boolean event: the first handler returning Stop halts
// dispatch and callback receives ResultKey=false
func (b *Bus) PostBoolean(event string, callback Callback, params Params) error {
	return b.post(event, KindBoolean, callback, params)
}

// PostQueue posts a queue event: handlers may Wait on ev.Queue and Clear later;
// callback runs exactly once when no waits remain
func (b *Bus) PostQueue(event string, callback Callback, params Params) error {
	return b.post(event, KindQueue, callback, params)
}

// PostRelay posts a relay event: Relay values returned by a handler are merged
// into the payload for later handlers and the callback
func (b *Bus) PostRelay(event string, callback Callback, params Params) error {
	return b.post(event, KindRelay, callback, params)
}

func (b *Bus) post(event string, kind Kind, callback Callback, params Params) error {
	p := &posted{
		name:     normalize(event),
		kind:     kind,
		callback: callback,
		params:   params.Clone(),
	}

	for _, m := range b.monitors {
		m(PostedEvent{Name: p.name, Kind: kind, Params: p.params.Clone()})
	}

	b.queue = append(b.queue, p)

	if b.dispatching {
		if b.debug {
			log.Printf("EventBus: Deferred %s event %s (queue length %d)", kind, p.name, len(b.queue))
		}
		return nil
	}

	return b.processQueue()
}

// processQueue drains the FIFO. A handler error stops draining and leaves
// later events queued; they run with the next top-level post.
func (b *Bus) processQueue() error {
	b.dispatching = true
	defer func() { b.dispatching = false }()

	for len(b.queue) > 0 {
		p := b.queue[0]
		b.queue[0] = nil
		b.queue = b.queue[1:]

		if err := b.dispatch(p); err != nil {
			return err
		}
	}

	return nil
}

func (b *Bus) dispatch(p *posted) error {
	if b.debug && p.name != TimerTick {
		log.Printf("EventBus: Dispatching %s event %s with %d handlers, params %v",
			p.kind, p.name, len(b.handlers[p.name]), p.params)
	}

	if p.kind == KindQueue {
		token := b.newToken(p)
		if _, err := b.runHandlers(p, token); err != nil {
			// a failed queue event never runs its callback
			token.Kill()
			return err
		}
		return token.handlersDone()
	}

	last, err := b.runHandlers(p, nil)
	if err != nil {
		return err
	}

	if p.callback == nil {
		return nil
	}
	if v, ok := last.reported(); ok {
		p.params[ResultKey] = v
	}
	if err := p.callback(p.params); err != nil {
		return errors.Wrapf(err, "callback for event %s failed", p.name)
	}
	return nil
}

func (b *Bus) runHandlers(p *posted, token *QueueToken) (Result, error) {
	var last Result

	// snapshot: registrations made or removed while dispatching do not affect this event
	snapshot := make([]*entry, len(b.handlers[p.name]))
	copy(snapshot, b.handlers[p.name])

	for _, e := range snapshot {
		ev := &Event{
			Name:   p.name,
			Kind:   p.kind,
			Params: e.bound.With(p.params),
			Queue:  token,
		}

		result, err := e.handler.HandleEvent(ev)
		if err != nil {
			return last, errors.Wrapf(err, "handler %s failed on event %s", e.handler.ID(), p.name).
				WithMeta("event", p.name)
		}
		last = result

		if result.IsStop() && (p.kind == KindBoolean || p.kind == KindQueue) {
			p.params[ResultKey] = false
			if b.debug {
				log.Printf("EventBus: Handler %s halted event %s", e.handler.ID(), p.name)
			}
			return last, nil
		}

		if p.kind == KindRelay && result.action == actionRelay {
			for k, v := range result.values {
				p.params[k] = v
			}
		}
	}

	return last, nil
}

func (b *Bus) newToken(p *posted) *QueueToken {
	b.nextToken++
	token := &QueueToken{
		bus:      b,
		id:       b.nextToken,
		event:    p.name,
		callback: p.callback,
		params:   p.params,
		postedAt: b.clock.Now(),
	}
	b.pending[token.id] = token
	return token
}

// PendingQueue describes a queue event whose callback has not run yet
type PendingQueue struct {
	ID       uint64
	Event    string
	Waits    int
	PostedAt time.Time
}

// Pending returns unresolved queue events in post order
func (b *Bus) Pending() []PendingQueue {
	tokens := make([]*QueueToken, 0, len(b.pending))
	for _, t := range b.pending {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].id < tokens[j].id
	})

	out := make([]PendingQueue, len(tokens))
	for i, t := range tokens {
		out[i] = PendingQueue{ID: t.id, Event: t.event, Waits: t.waits, PostedAt: t.postedAt}
	}
	return out
}
