package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
)

// Transition is one lifecycle state change.
type Transition struct {
	Identity shared.Identity `json:"identity"`
	From     State           `json:"from"`
	To       State           `json:"to"`
	At       time.Time       `json:"at"`
	Err      error           `json:"-"`
	RunID    string          `json:"run_id,omitempty"`
}

type subscriber struct {
	ch      chan Transition
	dropped atomic.Uint64
}

// Subscribe returns a stream of lifecycle transitions and a function that
// ends the subscription and closes the stream. Delivery never blocks the
// orchestrator: when the buffer is full the transition is dropped and a
// warning logged. A buffer of 0 or less uses the configured default.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = max(o.config.EventBuffer, 1)
	}

	sub := &subscriber{ch: make(chan Transition, buffer)}

	o.subsMu.Lock()
	defer o.subsMu.Unlock()

	if o.disposed.Load() {
		close(sub.ch)

		return sub.ch, func() {}
	}

	o.subs[sub] = struct{}{}

	return sub.ch, func() {
		o.subsMu.Lock()
		defer o.subsMu.Unlock()

		if _, ok := o.subs[sub]; ok {
			delete(o.subs, sub)
			close(sub.ch)
		}
	}
}

func (o *Orchestrator) publish(t Transition) {
	o.subsMu.RLock()
	defer o.subsMu.RUnlock()

	for sub := range o.subs {
		select {
		case sub.ch <- t:
		default:
			n := sub.dropped.Add(1)
			o.metrics.Counter("transitions_dropped_total").Inc()
			o.logger.Warn("lifecycle transition dropped",
				logger.ServiceID(string(t.Identity)),
				logger.Stringer("to", t.To),
				logger.Uint64("dropped", n),
			)
		}
	}
}

func (o *Orchestrator) closeSubscribers() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()

	for sub := range o.subs {
		close(sub.ch)
		delete(o.subs, sub)
	}
}
