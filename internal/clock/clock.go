package clock

import "time"

//go:generate mockgen -destination=mock/mock_time_provider.go -package=mockclock -source=clock.go

// TimeProvider supplies the current time to the bus and the delay scheduler
type TimeProvider interface {
	Now() time.Time
}

// SystemTime reads the wall clock
type SystemTime struct{}

// Now returns time.Now
func (SystemTime) Now() time.Time {
	return time.Now()
}

// Manual is a TimeProvider that only moves when told to
type Manual struct {
	now time.Time
}

// NewManual creates a Manual clock starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	return m.now
}

// Advance moves the clock forward by d
func (m *Manual) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}
