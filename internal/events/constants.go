package events

// Event names the core posts or reacts to
const (
	// TimerTick is posted once per machine cycle by the tick loop
	TimerTick = "timer_tick"

	// BallStarting is the queue event posted when a new ball begins
	BallStarting = "ball_starting"

	// BallEnding is the queue event posted when a ball drains; the mode
	// controller holds it until every auto-stopping mode has unwound
	BallEnding = "ball_ending"

	// ModesActiveModesChanged is posted whenever the active-mode stack changes
	ModesActiveModesChanged = "modes_active_modes_changed"

	// ResetComplete is posted on the first tick once the machine is wired
	ResetComplete = "reset_complete"

	// ClearConfig asks config players to clear whatever they run under a key
	ClearConfig = "clear"
)

// ResultKey is the payload entry a callback receives with the last handler's
// result, or false when a boolean or queue event was halted
const ResultKey = "ev_result"

// DefaultPriority is the priority handlers get when the caller has no opinion
const DefaultPriority = 1
