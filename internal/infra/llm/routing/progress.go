package routing

import (
	"sync"
	"time"

	"github.com/vietddude/verdict/internal/core/domain"
)

// EventKind classifies a progress event.
type EventKind int

const (
	EventAttempt     EventKind = iota // about to call a backend
	EventCooling                      // skipped, backend is cooling down
	EventRateLimited                  // backend answered with a quota rejection
	EventUnavailable                  // backend model missing or forbidden
	EventTransient                    // any other backend failure
	EventBackoff                      // whole pass failed, sleeping before the next one
	EventTick                         // countdown update during the sleep
	EventRetry                        // sleep over, starting a new pass
)

// Event is one human-readable progress update from the executor.
type Event struct {
	Kind        EventKind
	Message     string
	Backend     domain.BackendIdentity
	Remaining   time.Duration
	RateLimited bool
}

func (e Event) String() string {
	return e.Message
}

// ProgressFunc observes executor progress. It runs on its own goroutine and
// may be slow; the executor never waits for it.
type ProgressFunc func(Event)

// dispatcher decouples the executor from its progress sink. Events are
// delivered in order and emit never blocks. State changes are always
// delivered; consecutive countdown ticks collapse into the latest one, so a
// lagging sink sees fewer ticks but every transition.
type dispatcher struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
}

func newDispatcher(fn ProgressFunc) *dispatcher {
	if fn == nil {
		return nil
	}
	d := &dispatcher{wake: make(chan struct{}, 1)}
	go d.run(fn)
	return d
}

func (d *dispatcher) run(fn ProgressFunc) {
	for {
		<-d.wake
		for {
			d.mu.Lock()
			batch, closed := d.queue, d.closed
			d.queue = nil
			d.mu.Unlock()

			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
			for _, ev := range batch {
				fn(ev)
			}
		}
	}
}

func (d *dispatcher) emit(ev Event) {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if n := len(d.queue); ev.Kind == EventTick && n > 0 && d.queue[n-1].Kind == EventTick {
		d.queue[n-1] = ev
	} else {
		d.queue = append(d.queue, ev)
	}
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// close stops accepting events. Queued events are still delivered.
func (d *dispatcher) close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}
