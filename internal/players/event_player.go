// Package players holds config players: collaborators that read a section of
// a mode file and act on it while the mode runs.
package players

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

// EventPlayerSection is the mode file section read by the EventPlayer
const EventPlayerSection = "event_player"

// Entry is one event posted when a trigger fires
type Entry struct {
	Event  string
	Params events.Params
}

// EventPlayerConfig configures an EventPlayer
type EventPlayerConfig struct {
	Bus        *events.Bus
	Controller *modes.Controller

	// HookPriority orders the player among other start hooks
	HookPriority int
}

// EventPlayer posts events in reaction to other events while a mode runs.
//
//	event_player:
//	  ball_started: light_shoot_again
//	  ramp_made:
//	    - award_jackpot
//	    - flash_ramp
//	  target_hit:
//	    add_score: {points: 500}
type EventPlayer struct {
	bus    *events.Bus
	parsed map[string]map[string][]Entry
	active map[string][]events.HandlerKey
}

// NewEventPlayer creates an EventPlayer and registers it with the mode controller
func NewEventPlayer(cfg *EventPlayerConfig) (*EventPlayer, error) {
	if cfg == nil || cfg.Bus == nil || cfg.Controller == nil {
		return nil, errors.InvalidArgumentf("event player requires a bus and a mode controller")
	}

	p := &EventPlayer{
		bus:    cfg.Bus,
		parsed: make(map[string]map[string][]Entry),
		active: make(map[string][]events.HandlerKey),
	}

	cfg.Controller.RegisterLoadHook(p.load, EventPlayerSection, cfg.HookPriority, nil)
	cfg.Controller.RegisterStartHook(p.start, EventPlayerSection, cfg.HookPriority, nil)

	return p, nil
}

// Triggers returns the parsed triggers of a mode, sorted by name
func (p *EventPlayer) Triggers(mode string) []string {
	triggers := make([]string, 0, len(p.parsed[mode]))
	for t := range p.parsed[mode] {
		triggers = append(triggers, t)
	}
	sort.Strings(triggers)
	return triggers
}

// Entries returns what a trigger posts for a mode
func (p *EventPlayer) Entries(mode, trigger string) []Entry {
	return p.parsed[mode][trigger]
}

func (p *EventPlayer) load(m *modes.Mode, section any, _ events.Params) error {
	raw, ok := section.(map[string]any)
	if !ok {
		return errors.Validationf("mode %s: %s must map trigger events to events", m.Name(), EventPlayerSection).
			WithMeta("mode", m.Name())
	}

	parsed := make(map[string][]Entry, len(raw))
	for trigger, value := range raw {
		entries, err := parseEntries(value)
		if err != nil {
			return errors.Wrapf(err, "mode %s: %s.%s", m.Name(), EventPlayerSection, trigger).
				WithMeta("mode", m.Name())
		}
		parsed[strings.ToLower(trigger)] = entries
	}
	p.parsed[m.Name()] = parsed
	return nil
}

func parseEntries(value any) ([]Entry, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, errors.Validation("empty event name")
		}
		return []Entry{{Event: v}}, nil
	case []any:
		entries := make([]Entry, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok || name == "" {
				return nil, errors.Validationf("list entries must be event names, got %v", item)
			}
			entries = append(entries, Entry{Event: name})
		}
		return entries, nil
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)

		entries := make([]Entry, 0, len(v))
		for _, name := range names {
			entry := Entry{Event: name}
			switch params := v[name].(type) {
			case nil:
			case map[string]any:
				entry.Params = events.Params(params)
			default:
				return nil, errors.Validationf("params for %s must be a mapping", name)
			}
			entries = append(entries, entry)
		}
		return entries, nil
	default:
		return nil, errors.Validationf("unsupported value %v", value)
	}
}

func (p *EventPlayer) start(m *modes.Mode, _ any, priority int, _ events.Params) (modes.StopFunc, error) {
	parsed, ok := p.parsed[m.Name()]
	if !ok || len(parsed) == 0 {
		return nil, nil
	}

	keys := make([]events.HandlerKey, 0, len(parsed))
	for _, trigger := range p.Triggers(m.Name()) {
		entries := parsed[trigger]
		id := fmt.Sprintf("event_player.%s.%s", m.Name(), trigger)
		keys = append(keys, p.bus.AddHandler(trigger, events.HandlerFunc(id, func(*events.Event) (events.Result, error) {
			return events.Continue(), p.play(entries)
		}), priority, nil))
	}
	p.active[m.Name()] = keys
	log.Printf("EventPlayer: Registered %d triggers for %s", len(keys), m.Name())

	name := m.Name()
	return func() error {
		p.bus.RemoveHandlersByKeys(p.active[name])
		delete(p.active, name)
		return nil
	}, nil
}

func (p *EventPlayer) play(entries []Entry) error {
	for _, e := range entries {
		if err := p.bus.Post(e.Event, nil, e.Params); err != nil {
			return err
		}
	}
	return nil
}

// ActiveModes returns the modes whose triggers are currently registered
func (p *EventPlayer) ActiveModes() []string {
	names := make([]string, 0, len(p.active))
	for name := range p.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
