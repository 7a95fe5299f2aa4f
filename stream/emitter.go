package stream

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Emitter receives run events.
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// Func adapts a function to Emitter.
type Func func(ctx context.Context, e Event) error

// Emit implements Emitter.
func (f Func) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(context.Context, Event) error { return nil }

// Recorder collects events in memory; useful for tests and batch callers.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Filter returns the recorded events of the given kind.
func (r *Recorder) Filter(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Sequencer stamps events with the run id, a per-run sequence number and a
// timestamp before forwarding them.
type Sequencer struct {
	next  Emitter
	runID string
	seq   int
	now   func() time.Time
}

// NewSequencer wraps next for one run. A nil next discards events.
func NewSequencer(next Emitter, runID string) *Sequencer {
	if next == nil {
		next = Nop{}
	}
	return &Sequencer{next: next, runID: runID, now: time.Now}
}

// Emit implements Emitter. Sequencer is owned by one run and not safe for
// concurrent use.
func (s *Sequencer) Emit(ctx context.Context, e Event) error {
	s.seq++
	e.Seq = s.seq
	e.RunID = s.runID
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	return s.next.Emit(ctx, e)
}
