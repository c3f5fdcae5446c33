package delays_test

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/pinball-core/internal/clock"
	mockclock "github.com/KirkDiggler/pinball-core/internal/clock/mock"
	"github.com/KirkDiggler/pinball-core/internal/delays"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/uuid"
)

type SchedulerSuite struct {
	suite.Suite
	clock     *clock.Manual
	bus       *events.Bus
	scheduler *delays.Scheduler
	manager   *delays.Manager
	fired     []string
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.clock = clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.bus = events.NewBus(&events.BusConfig{TimeProvider: s.clock})
	s.scheduler = delays.NewScheduler(&delays.SchedulerConfig{
		Bus:          s.bus,
		TimeProvider: s.clock,
		IDGenerator:  uuid.NewSequentialGenerator("delay-"),
	})
	s.manager = s.scheduler.NewManager("base")
	s.fired = nil
}

func (s *SchedulerSuite) record(name string) delays.Callback {
	return func(events.Params) error {
		s.fired = append(s.fired, name)
		return nil
	}
}

func (s *SchedulerSuite) tick(d time.Duration) {
	s.clock.Advance(d)
	s.Require().NoError(s.bus.Post(events.TimerTick, nil, nil))
}

func (s *SchedulerSuite) TestFiresOnTickWhenDue() {
	s.manager.Add(100*time.Millisecond, s.record("a"), "a", nil)

	s.tick(50 * time.Millisecond)
	s.Empty(s.fired)
	s.True(s.manager.Check("a"))

	s.tick(50 * time.Millisecond)
	s.Equal([]string{"a"}, s.fired)
	s.False(s.manager.Check("a"))
	s.Equal(0, s.scheduler.Len())
}

func (s *SchedulerSuite) TestFiresInDueOrder() {
	s.manager.Add(300*time.Millisecond, s.record("late"), "", nil)
	s.manager.Add(100*time.Millisecond, s.record("early"), "", nil)
	s.manager.Add(100*time.Millisecond, s.record("early-second"), "", nil)

	s.tick(time.Second)

	s.Equal([]string{"early", "early-second", "late"}, s.fired)
}

func (s *SchedulerSuite) TestUnnamedDelaysGetGeneratedNames() {
	first := s.manager.Add(time.Second, s.record("a"), "", nil)
	second := s.manager.Add(time.Second, s.record("b"), "", nil)

	s.Equal("delay-1", first)
	s.Equal("delay-2", second)
	s.Equal(2, s.manager.Len())
}

func (s *SchedulerSuite) TestAddReplacesSameName() {
	s.manager.Add(100*time.Millisecond, s.record("old"), "x", nil)
	s.manager.Add(200*time.Millisecond, s.record("new"), "x", nil)

	s.tick(time.Second)

	s.Equal([]string{"new"}, s.fired)
}

func (s *SchedulerSuite) TestAddIfDoesntExist() {
	s.manager.Add(100*time.Millisecond, s.record("first"), "x", nil)
	s.manager.AddIfDoesntExist(50*time.Millisecond, s.record("second"), "x", nil)

	s.tick(time.Second)

	s.Equal([]string{"first"}, s.fired)
}

func (s *SchedulerSuite) TestReset() {
	s.manager.Add(100*time.Millisecond, s.record("a"), "x", nil)
	s.tick(90 * time.Millisecond)

	s.manager.Reset(100*time.Millisecond, s.record("a"), "x", nil)
	s.tick(20 * time.Millisecond)
	s.Empty(s.fired)

	s.tick(80 * time.Millisecond)
	s.Equal([]string{"a"}, s.fired)
}

func (s *SchedulerSuite) TestRemove() {
	s.manager.Add(100*time.Millisecond, s.record("a"), "x", nil)
	s.manager.Remove("x")
	s.manager.Remove("unknown")

	s.tick(time.Second)

	s.Empty(s.fired)
}

func (s *SchedulerSuite) TestRunNow() {
	var got events.Params
	s.manager.Add(time.Minute, func(params events.Params) error {
		got = params
		return nil
	}, "x", events.Params{"ball": 2})

	s.NoError(s.manager.RunNow("x"))
	s.NoError(s.manager.RunNow("x"))

	s.Equal(2, got["ball"])
	s.False(s.manager.Check("x"))
	s.Equal(0, s.scheduler.Len())
}

func (s *SchedulerSuite) TestClearOnlyAffectsOwnDelays() {
	other := s.scheduler.NewManager("bonus")
	s.manager.Add(100*time.Millisecond, s.record("base"), "", nil)
	other.Add(100*time.Millisecond, s.record("bonus"), "", nil)

	s.manager.Clear()
	s.tick(time.Second)

	s.Equal([]string{"bonus"}, s.fired)
	s.Equal("bonus", other.Owner())
}

func (s *SchedulerSuite) TestDelayAddedByCallbackWaitsForNextTick() {
	s.manager.Add(0, func(events.Params) error {
		s.fired = append(s.fired, "outer")
		s.manager.Add(0, s.record("inner"), "inner", nil)
		return nil
	}, "outer", nil)

	s.tick(time.Millisecond)
	s.Equal([]string{"outer"}, s.fired)

	s.tick(time.Millisecond)
	s.Equal([]string{"outer", "inner"}, s.fired)
}

func (s *SchedulerSuite) TestCallbackCanCancelLaterDelay() {
	s.manager.Add(10*time.Millisecond, func(events.Params) error {
		s.manager.Remove("victim")
		return nil
	}, "killer", nil)
	s.manager.Add(20*time.Millisecond, s.record("victim"), "victim", nil)

	s.tick(time.Second)

	s.Empty(s.fired)
}

func (s *SchedulerSuite) TestCallbackErrorStopsRun() {
	boom := stderrors.New("boom")
	s.manager.Add(10*time.Millisecond, func(events.Params) error { return boom }, "bad", nil)
	s.manager.Add(20*time.Millisecond, s.record("after"), "after", nil)

	s.clock.Advance(time.Second)
	err := s.bus.Post(events.TimerTick, nil, nil)
	s.ErrorIs(err, boom)
	s.Empty(s.fired)

	s.tick(0)
	s.Equal([]string{"after"}, s.fired)
}

func TestSchedulerUsesTimeProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tp := mockclock.NewMockTimeProvider(ctrl)
	gomock.InOrder(
		tp.EXPECT().Now().Return(start),
		tp.EXPECT().Now().Return(start.Add(time.Second)),
	)

	scheduler := delays.NewScheduler(&delays.SchedulerConfig{TimeProvider: tp})
	manager := scheduler.NewManager("attract")

	fired := false
	manager.Add(500*time.Millisecond, func(events.Params) error {
		fired = true
		return nil
	}, "flash", nil)

	if err := scheduler.RunDue(); err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if !fired {
		t.Fatal("expected delay to fire")
	}
}
