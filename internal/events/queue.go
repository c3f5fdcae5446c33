package events

import (
	"log"
	"time"

	"github.com/KirkDiggler/pinball-core/internal/errors"
)

// QueueToken tracks outstanding waits for one posted queue event. A handler
// that needs to finish asynchronously calls Wait during dispatch and Clear
// once its work is done. The event's callback runs exactly once, when the
// handler loop has finished and no waits remain.
type QueueToken struct {
	bus      *Bus
	id       uint64
	event    string
	callback Callback
	params   Params
	postedAt time.Time

	waits    int
	loopDone bool
	done     bool
}

// Event returns the name of the queue event this token belongs to
func (q *QueueToken) Event() string {
	return q.event
}

// Waits returns the number of outstanding waits
func (q *QueueToken) Waits() int {
	return q.waits
}

// IsEmpty reports whether no waits are outstanding
func (q *QueueToken) IsEmpty() bool {
	return q.waits == 0
}

// Done reports whether the token has completed or been killed
func (q *QueueToken) Done() bool {
	return q.done
}

// PostedAt returns when the queue event was dispatched
func (q *QueueToken) PostedAt() time.Time {
	return q.postedAt
}

// Wait registers one outstanding wait
func (q *QueueToken) Wait() error {
	if q.done {
		return errors.FailedPreconditionf("queue event %s already completed", q.event).
			WithMeta("event", q.event)
	}

	q.waits++
	if q.bus.debug {
		log.Printf("EventBus: Queue event %s waiting (%d outstanding)", q.event, q.waits)
	}
	return nil
}

// Clear releases one outstanding wait. When the last wait clears after the
// handler loop has finished, the event's callback runs.
func (q *QueueToken) Clear() error {
	if q.done {
		return errors.FailedPreconditionf("queue event %s already completed", q.event).
			WithMeta("event", q.event)
	}
	if q.waits == 0 {
		return errors.FailedPreconditionf("queue event %s cleared without a wait", q.event).
			WithMeta("event", q.event)
	}

	q.waits--
	if q.bus.debug {
		log.Printf("EventBus: Queue event %s cleared (%d outstanding)", q.event, q.waits)
	}

	if q.waits == 0 && q.loopDone {
		return q.complete()
	}
	return nil
}

// Kill completes the token without running the callback
func (q *QueueToken) Kill() {
	if q.done {
		return
	}

	log.Printf("EventBus: Queue event %s killed with %d outstanding waits", q.event, q.waits)
	q.waits = 0
	q.done = true
	delete(q.bus.pending, q.id)
}

// handlersDone marks the end of the handler loop
func (q *QueueToken) handlersDone() error {
	q.loopDone = true
	if q.waits == 0 && !q.done {
		return q.complete()
	}
	return nil
}

func (q *QueueToken) complete() error {
	q.done = true
	delete(q.bus.pending, q.id)

	if q.callback == nil {
		return nil
	}
	if err := q.callback(q.params); err != nil {
		return errors.Wrapf(err, "callback for queue event %s failed", q.event)
	}
	return nil
}
