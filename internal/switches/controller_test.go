package switches_test

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/switches"
)

type ControllerSuite struct {
	suite.Suite
	bus        *events.Bus
	controller *switches.Controller
	posted     []string
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.bus = events.NewBus(nil)

	var err error
	s.controller, err = switches.NewController(&switches.ControllerConfig{
		Bus: s.bus,
		Switches: []switches.Config{
			{Name: "s_left_slingshot", Tags: []string{"slingshot", "playfield_active"}},
			{Name: "s_trough_1"},
		},
	})
	s.Require().NoError(err)

	s.posted = nil
	s.bus.AddMonitor(func(p events.PostedEvent) {
		if p.Name != events.TimerTick {
			s.posted = append(s.posted, p.Name)
		}
	})
}

func (s *ControllerSuite) tick() {
	s.Require().NoError(s.bus.Post(events.TimerTick, nil, nil))
}

func (s *ControllerSuite) TestRequiresBus() {
	_, err := switches.NewController(&switches.ControllerConfig{})
	s.True(errors.Is(err, errors.CodeInvalidArgument))
}

func (s *ControllerSuite) TestRejectsUnnamedSwitch() {
	_, err := switches.NewController(&switches.ControllerConfig{
		Bus:      s.bus,
		Switches: []switches.Config{{}},
	})
	s.True(errors.IsValidation(err))
}

func (s *ControllerSuite) TestReportAppliedOnTick() {
	s.controller.Report("s_left_slingshot", true)
	s.Empty(s.posted)
	s.False(s.controller.IsActive("s_left_slingshot"))

	s.tick()

	s.True(s.controller.IsActive("s_left_slingshot"))
	s.Equal([]string{
		"switch_s_left_slingshot_active",
		"sw_slingshot",
		"sw_playfield_active",
	}, s.posted)
}

func (s *ControllerSuite) TestInactiveDoesNotPostTags() {
	s.controller.Report("s_left_slingshot", true)
	s.controller.Report("s_left_slingshot", false)
	s.tick()

	s.Equal([]string{
		"switch_s_left_slingshot_active",
		"sw_slingshot",
		"sw_playfield_active",
		"switch_s_left_slingshot_inactive",
	}, s.posted)
}

func (s *ControllerSuite) TestRepeatedStateIgnored() {
	s.controller.Report("s_trough_1", true)
	s.controller.Report("s_trough_1", true)
	s.tick()

	s.Equal([]string{"switch_s_trough_1_active"}, s.posted)
}

func (s *ControllerSuite) TestHandlersMatchState() {
	var got []bool
	handler := func(name string, active bool) error {
		got = append(got, active)
		return nil
	}
	s.controller.AddSwitchHandler("s_trough_1", true, handler)
	key := s.controller.AddSwitchHandler("s_trough_1", false, handler)

	s.controller.Report("s_trough_1", true)
	s.controller.Report("s_trough_1", false)
	s.tick()
	s.Equal([]bool{true, false}, got)

	s.controller.RemoveSwitchHandler(key)
	s.Equal(1, s.controller.HandlerCount("s_trough_1"))
}

func (s *ControllerSuite) TestHandlerErrorPropagates() {
	boom := stderrors.New("coil fault")
	s.controller.AddSwitchHandler("s_trough_1", true, func(string, bool) error { return boom })

	s.controller.Report("s_trough_1", true)
	err := s.bus.Post(events.TimerTick, nil, nil)

	s.ErrorIs(err, boom)
	s.Equal("s_trough_1", errors.GetMeta(err)["switch"])
}

func (s *ControllerSuite) TestReportFromManyGoroutines() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.controller.Report("s_spinner", i%2 == 0)
		}(i)
	}
	wg.Wait()

	s.tick()

	s.NotEmpty(s.posted)
}
