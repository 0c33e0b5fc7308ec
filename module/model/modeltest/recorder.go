// Package modeltest records broadcasts for assertions.
package modeltest

import (
	"sync"
	"time"

	"LinkHub/module/model"
)

type Record struct {
	Session string
	Event   string
	Payload any
}

// Recorder is a model.Broadcaster that keeps every call in order.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	notify  chan struct{}
}

var _ model.Broadcaster = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Broadcast(sessionID, event string, payload any) {
	r.mu.Lock()
	r.records = append(r.records, Record{Session: sessionID, Event: event, Payload: payload})
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// Events lists event names sent to one session.
func (r *Recorder) Events(sessionID string) []string {
	var out []string
	for _, rec := range r.Records() {
		if rec.Session == sessionID {
			out = append(out, rec.Event)
		}
	}
	return out
}

// Payloads lists payloads of one event name sent to one session.
func (r *Recorder) Payloads(sessionID, event string) []any {
	var out []any
	for _, rec := range r.Records() {
		if rec.Session == sessionID && rec.Event == event {
			out = append(out, rec.Payload)
		}
	}
	return out
}

// WaitFor blocks until the session received event or d passes.
func (r *Recorder) WaitFor(sessionID, event string, d time.Duration) bool {
	deadline := time.After(d)
	for {
		if len(r.Payloads(sessionID, event)) > 0 {
			return true
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return false
		}
	}
}

// Emitter records direct emits to a single viewer.
type Emitter struct {
	mu      sync.Mutex
	records []Record
}

var _ model.Emitter = (*Emitter)(nil)

func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, Record{Event: event, Payload: payload})
}

func (e *Emitter) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Record(nil), e.records...)
}
