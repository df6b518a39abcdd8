package mocks

import (
	stdsync "sync"

	"github.com/dl-alexandre/gosync/internal/events"
)

// Recorder is an events.Observer that keeps every event
type Recorder struct {
	mu     stdsync.Mutex
	events []events.Event
}

func (r *Recorder) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Count returns how many events of kind were recorded
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind, or nil
func (r *Recorder) Last(kind string) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind() == kind {
			return r.events[i]
		}
	}
	return nil
}
