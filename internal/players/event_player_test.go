package players_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/pinball-core/internal/delays"
	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/modes"
	"github.com/KirkDiggler/pinball-core/internal/players"
)

type EventPlayerSuite struct {
	suite.Suite
	bus        *events.Bus
	controller *modes.Controller
	player     *players.EventPlayer
	posted     []events.PostedEvent
}

func TestEventPlayerSuite(t *testing.T) {
	suite.Run(t, new(EventPlayerSuite))
}

func (s *EventPlayerSuite) SetupTest() {
	s.bus = events.NewBus(nil)

	var err error
	s.controller, err = modes.NewController(&modes.ControllerConfig{
		Bus:       s.bus,
		Scheduler: delays.NewScheduler(&delays.SchedulerConfig{Bus: s.bus}),
	})
	s.Require().NoError(err)

	s.player, err = players.NewEventPlayer(&players.EventPlayerConfig{
		Bus:        s.bus,
		Controller: s.controller,
	})
	s.Require().NoError(err)

	s.posted = nil
	s.bus.AddMonitor(func(p events.PostedEvent) {
		s.posted = append(s.posted, p)
	})
}

func (s *EventPlayerSuite) createMode(name string, section any) (*modes.Mode, error) {
	cfg := modes.NewConfig(name)
	cfg.Sections = map[string]any{players.EventPlayerSection: section}
	return s.controller.CreateMode(cfg, nil)
}

func (s *EventPlayerSuite) postedNames() []string {
	var names []string
	for _, p := range s.posted {
		names = append(names, p.Name)
	}
	return names
}

func (s *EventPlayerSuite) TestRequiresCollaborators() {
	_, err := players.NewEventPlayer(&players.EventPlayerConfig{Bus: s.bus})
	s.True(errors.Is(err, errors.CodeInvalidArgument))
}

func (s *EventPlayerSuite) TestParsesAllForms() {
	_, err := s.createMode("ramps", map[string]any{
		"Ball_Started": "light_shoot_again",
		"ramp_made":    []any{"award_jackpot", "flash_ramp"},
		"target_hit": map[string]any{
			"add_score":  map[string]any{"points": 500},
			"flash_lamp": nil,
		},
	})
	s.Require().NoError(err)

	s.Equal([]string{"ball_started", "ramp_made", "target_hit"}, s.player.Triggers("ramps"))
	s.Equal([]players.Entry{{Event: "award_jackpot"}, {Event: "flash_ramp"}}, s.player.Entries("ramps", "ramp_made"))
	s.Equal([]players.Entry{
		{Event: "add_score", Params: events.Params{"points": 500}},
		{Event: "flash_lamp"},
	}, s.player.Entries("ramps", "target_hit"))
}

func (s *EventPlayerSuite) TestRejectsMalformedSection() {
	_, err := s.createMode("bad_list", []any{"not", "a", "map"})
	s.True(errors.IsValidation(err))

	_, err = s.createMode("bad_entry", map[string]any{"ramp_made": 7})
	s.True(errors.IsValidation(err))

	_, err = s.createMode("bad_params", map[string]any{"ramp_made": map[string]any{"award": "x"}})
	s.True(errors.IsValidation(err))
}

func (s *EventPlayerSuite) TestPlaysOnlyWhileModeRuns() {
	m, err := s.createMode("ramps", map[string]any{
		"target_hit": map[string]any{"add_score": map[string]any{"points": 500}},
	})
	s.Require().NoError(err)

	s.Require().NoError(s.bus.Post("target_hit", nil, nil))
	s.NotContains(s.postedNames(), "add_score")

	s.Require().NoError(m.Start())
	s.Equal([]string{"ramps"}, s.player.ActiveModes())

	s.posted = nil
	s.Require().NoError(s.bus.Post("target_hit", nil, nil))
	s.Require().Len(s.posted, 2)
	s.Equal("add_score", s.posted[1].Name)
	s.Equal(500, s.posted[1].Params["points"])

	s.Require().NoError(m.Stop())
	s.Empty(s.player.ActiveModes())
	s.False(s.bus.HasHandlers("target_hit"))
}

func (s *EventPlayerSuite) TestHandlersUseModePriority() {
	m, err := s.createMode("ramps", map[string]any{"target_hit": "from_mode"})
	s.Require().NoError(err)
	s.Require().NoError(m.Start())

	blocker := events.HandlerFunc("blocker", func(*events.Event) (events.Result, error) {
		return events.Stop(), nil
	})

	key := s.bus.AddHandler("target_hit", blocker, 50, nil)
	s.posted = nil
	s.Require().NoError(s.bus.PostBoolean("target_hit", nil, nil))
	s.Contains(s.postedNames(), "from_mode")

	s.bus.RemoveHandlerByKey(key)
	s.bus.AddHandler("target_hit", blocker, 200, nil)
	s.posted = nil
	s.Require().NoError(s.bus.PostBoolean("target_hit", nil, nil))
	s.NotContains(s.postedNames(), "from_mode")
}

func (s *EventPlayerSuite) TestEmptySectionIsIgnored() {
	m, err := s.createMode("quiet", map[string]any{})
	s.Require().NoError(err)

	s.Require().NoError(m.Start())
	s.Empty(s.player.ActiveModes())
}
