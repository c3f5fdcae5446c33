package events

import (
	"reflect"
	"strings"
)

// Kind selects how a posted event treats handler results
type Kind int

const (
	// KindStandard runs every handler; results are informational only
	KindStandard Kind = iota

	// KindBoolean stops at the first handler returning Stop
	KindBoolean

	// KindQueue behaves like KindBoolean and hands handlers a QueueToken so
	// completion can be deferred
	KindQueue

	// KindRelay merges each handler's Relay values into the payload
	KindRelay
)

// String returns the string representation of the event kind
func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindBoolean:
		return "boolean"
	case KindQueue:
		return "queue"
	case KindRelay:
		return "relay"
	default:
		return "unknown"
	}
}

// Params is the named-parameter payload carried by an event
type Params map[string]any

// Clone returns a shallow copy; never nil
func (p Params) Clone() Params {
	cloned := make(Params, len(p))
	for k, v := range p {
		cloned[k] = v
	}
	return cloned
}

// With returns a copy of p overlaid with other. Keys in other win.
func (p Params) With(other Params) Params {
	merged := make(Params, len(p)+len(other))
	for k, v := range p {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// GetInt retrieves an int value from the payload
func (p Params) GetInt(key string) (int, bool) {
	val, exists := p[key]
	if !exists {
		return 0, false
	}
	intVal, ok := val.(int)
	return intVal, ok
}

// GetString retrieves a string value from the payload
func (p Params) GetString(key string) (string, bool) {
	val, exists := p[key]
	if !exists {
		return "", false
	}
	strVal, ok := val.(string)
	return strVal, ok
}

// GetBool retrieves a bool value from the payload
func (p Params) GetBool(key string) (value, exists bool) {
	val, exists := p[key]
	if !exists {
		return false, false
	}
	boolVal, ok := val.(bool)
	return boolVal, ok
}

type action int

const (
	actionContinue action = iota
	actionStop
	actionRelay
)

// Result is what a handler hands back to the bus
type Result struct {
	action action
	values Params
	value  any
}

// Continue lets dispatch proceed to the next handler
func Continue() Result {
	return Result{action: actionContinue}
}

// Stop halts boolean and queue events. Standard and relay events ignore it.
func Stop() Result {
	return Result{action: actionStop}
}

// Relay continues dispatch and, for relay events, merges values into the
// payload seen by later handlers and the callback
func Relay(values Params) Result {
	return Result{action: actionRelay, values: values}
}

// Value continues dispatch and reports v to the callback under ResultKey
// when this is the last handler to run
func Value(v any) Result {
	return Result{action: actionContinue, value: v}
}

// IsStop reports whether the handler asked to halt dispatch
func (r Result) IsStop() bool {
	return r.action == actionStop
}

// Values returns the relay values, if any
func (r Result) Values() Params {
	return r.values
}

// reported returns what a callback sees under ResultKey
func (r Result) reported() (any, bool) {
	switch r.action {
	case actionRelay:
		if len(r.values) > 0 {
			return r.values, true
		}
	case actionContinue:
		if !isEmpty(r.value) {
			return r.value, true
		}
	}
	return nil, false
}

// Event is what a handler receives
type Event struct {
	Name string
	Kind Kind

	// Params is the handler's bound params overlaid with the posted payload
	Params Params

	// Queue is set for queue events only
	Queue *QueueToken
}

// Handler reacts to events. ID identifies the handler for RemoveHandler and
// RemoveHandlerByEvent, so it must be stable for the handler's lifetime.
type Handler interface {
	ID() string
	HandleEvent(ev *Event) (Result, error)
}

type funcHandler struct {
	id string
	fn func(ev *Event) (Result, error)
}

func (h *funcHandler) ID() string { return h.id }

func (h *funcHandler) HandleEvent(ev *Event) (Result, error) { return h.fn(ev) }

// HandlerFunc adapts a function to the Handler interface under the given id
func HandlerFunc(id string, fn func(ev *Event) (Result, error)) Handler {
	return &funcHandler{id: id, fn: fn}
}

// Callback runs once an event has been fully handled
type Callback func(params Params) error

// HandlerKey identifies one registration returned by AddHandler
type HandlerKey struct {
	Event string
	ID    string
}

// IsZero reports whether the key was never assigned
func (k HandlerKey) IsZero() bool {
	return k.ID == ""
}

// PostedEvent describes an event at the moment it was posted
type PostedEvent struct {
	Name   string
	Kind   Kind
	Params Params
}

// Monitor observes every posted event before it is dispatched
type Monitor func(posted PostedEvent)

func normalize(name string) string {
	return strings.ToLower(name)
}

// isEmpty reports whether v is nil, a zero value or an empty collection
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}
