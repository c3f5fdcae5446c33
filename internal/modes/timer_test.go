package modes_test

import (
	"time"

	"github.com/KirkDiggler/pinball-core/internal/modes"
)

func intPtr(v int) *int { return &v }

func (s *ModeSuite) countPosted(name string) int {
	n := 0
	for _, p := range s.posted {
		if p == name {
			n++
		}
	}
	return n
}

func (s *ModeSuite) TestCountdownTimer() {
	m := s.createMode("hurry_up", 300, func(cfg *modes.Config) {
		cfg.Timers = map[string]modes.TimerConfig{
			"hurry": {
				StartValue:   3,
				Direction:    modes.DirectionDown,
				TickInterval: 100,
				StartRunning: true,
			},
		}
	})
	s.Require().NoError(m.Start())

	timer, ok := m.Timer("hurry")
	s.Require().True(ok)
	s.True(timer.Running())
	s.Equal(3, timer.TicksRemaining())
	s.Equal(1, s.countPosted("timer_hurry_started"))

	s.tick(100 * time.Millisecond)
	s.Equal(2, timer.Ticks())
	s.tick(100 * time.Millisecond)
	s.tick(100 * time.Millisecond)

	s.Equal(0, timer.Ticks())
	s.False(timer.Running())
	s.Equal(2, s.countPosted("timer_hurry_tick"))
	s.Equal(1, s.countPosted("timer_hurry_complete"))
	s.Equal(1, s.countPosted("timer_hurry_stopped"))
}

func (s *ModeSuite) TestTimerStopsWithMode() {
	m := s.createMode("hurry_up", 300, func(cfg *modes.Config) {
		cfg.Timers = map[string]modes.TimerConfig{
			"clock": {TickInterval: 100, StartRunning: true},
		}
	})
	s.Require().NoError(m.Start())
	s.tick(100 * time.Millisecond)

	s.Require().NoError(m.Stop())
	s.tick(time.Second)

	s.Equal(1, s.countPosted("timer_clock_tick"))
	s.Equal(1, s.countPosted("timer_clock_stopped"))
}

func (s *ModeSuite) TestTimerControlEvents() {
	m := s.createMode("hurry_up", 300, func(cfg *modes.Config) {
		cfg.Timers = map[string]modes.TimerConfig{
			"hurry": {
				StartValue:   10,
				EndValue:     intPtr(20),
				MaxValue:     intPtr(15),
				TickInterval: 1000,
				ControlEvents: []modes.TimerControl{
					{Event: "hurry_go", Action: modes.TimerActionStart},
					{Event: "bonus_target", Action: modes.TimerActionAdd, Value: 10},
					{Event: "hurry_reset", Action: modes.TimerActionReset},
				},
			},
		}
	})
	s.Require().NoError(m.Start())
	timer, _ := m.Timer("hurry")
	s.False(timer.Running())

	s.Require().NoError(s.bus.Post("hurry_go", nil, nil))
	s.True(timer.Running())

	s.Require().NoError(s.bus.Post("bonus_target", nil, nil))
	s.Equal(15, timer.Ticks())

	s.Require().NoError(s.bus.Post("hurry_reset", nil, nil))
	s.Equal(10, timer.Ticks())

	s.Require().NoError(m.Stop())
	s.False(s.bus.HasHandlers("hurry_go"))
}

func (s *ModeSuite) TestTimerRestartOnComplete() {
	m := s.createMode("spinner", 300, func(cfg *modes.Config) {
		cfg.Timers = map[string]modes.TimerConfig{
			"lap": {
				StartValue:        0,
				EndValue:          intPtr(2),
				TickInterval:      100,
				StartRunning:      true,
				RestartOnComplete: true,
			},
		}
	})
	s.Require().NoError(m.Start())
	timer, _ := m.Timer("lap")

	s.tick(100 * time.Millisecond)
	s.tick(100 * time.Millisecond)

	s.Equal(1, s.countPosted("timer_lap_complete"))
	s.True(timer.Running())
	s.Equal(0, timer.Ticks())
}

func (s *ModeSuite) TestTimerPauseResumes() {
	m := s.createMode("hurry_up", 300, func(cfg *modes.Config) {
		cfg.Timers = map[string]modes.TimerConfig{
			"clock": {TickInterval: 100, StartRunning: true},
		}
	})
	s.Require().NoError(m.Start())
	timer, _ := m.Timer("clock")

	s.Require().NoError(timer.Pause(250 * time.Millisecond))
	s.False(timer.Running())

	s.tick(200 * time.Millisecond)
	s.False(timer.Running())
	s.Equal(0, timer.Ticks())

	s.tick(100 * time.Millisecond)
	s.True(timer.Running())
	s.Equal(1, s.countPosted("timer_clock_paused"))
}
