// Package eventsink implements spec.md §6's passive event sink: a fan-out
// publisher for the fixed taxonomy of lifecycle events (stage.started,
// stage.completed, stage.blocked, task.created, task.completed,
// skill.invoked, skill.completed, checkpoint.created, gate.failed,
// agent.message) that internal/orchestrator, internal/workflow, and
// internal/invoker each emit through their own local one-method EventSink
// interface.
//
// Grounded on core/events/activity_bus.go's ActivityEventBus: a buffered
// channel plus a single dispatch goroutine decouples a caller's Emit from
// subscriber work, and a full buffer drops the event rather than blocking
// the caller (spec.md's event sink is advisory, never load-bearing for
// control flow). Simplified from ActivityEventBus's structured
// *ActivityEvent + debouncer + per-type subscriber routing down to the
// flatter (name string, data map[string]any) shape spec.md §6 describes,
// since the taxonomy here is ten fixed names rather than an open struct
// hierarchy.
package eventsink

import (
	"sync"
	"time"
)

// Event is one taxonomy event, timestamped on arrival at the Sink.
type Event struct {
	Name      string
	Data      map[string]any
	Timestamp time.Time
}

// Handler receives delivered events. It must not block; a slow handler
// delays every other subscriber's delivery of the same event, since
// dispatch is single-goroutine (matching the teacher's dispatch loop).
type Handler func(Event)

// Sink is a buffered, fan-out event publisher. The zero value is not
// usable; construct with New. Emit satisfies every package-local
// EventSink/ProgressSink interface in this module (they are all the
// single method `Emit(event string, data map[string]any)`), so one Sink
// can be wired into internal/orchestrator, internal/workflow, and
// internal/invoker.NewLLM simultaneously.
type Sink struct {
	buffer chan Event

	mu          sync.RWMutex
	subscribers map[string][]Handler // keyed by event name; "" is wildcard

	journalMu sync.Mutex
	journal   []Event
	journaled bool

	dispatchMu sync.Mutex
	closed     bool
	done       chan struct{}
	wg         sync.WaitGroup
}

// Option configures a Sink.
type Option func(*Sink)

// WithJournal enables an in-memory record of every delivered event,
// retrievable via Journal. Intended for tests and debugging, not
// production durability — internal/checkpoint owns durable state.
func WithJournal() Option {
	return func(s *Sink) { s.journaled = true }
}

// New creates a Sink with the given buffer size (events emitted beyond
// capacity while dispatch is behind are dropped, never blocked) and
// starts its dispatch goroutine. bufferSize <= 0 defaults to 1000.
func New(bufferSize int, opts ...Option) *Sink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &Sink{
		buffer:      make(chan Event, bufferSize),
		subscribers: make(map[string][]Handler),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wg.Add(1)
	go s.dispatch()
	return s
}

// Emit publishes an event. Non-blocking: if the buffer is full the event
// is dropped rather than stalling the caller, since nothing in spec.md's
// control flow depends on an event sink actually receiving an event.
func (s *Sink) Emit(name string, data map[string]any) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	event := Event{Name: name, Data: data, Timestamp: time.Now()}
	select {
	case s.buffer <- event:
	default:
	}
}

// Subscribe registers handler for name; an empty name subscribes to every
// event (wildcard).
func (s *Sink) Subscribe(name string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.subscribers[name] = append(s.subscribers[name], handler)
}

func (s *Sink) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.buffer:
			s.deliver(event)
		case <-s.done:
			return
		}
	}
}

func (s *Sink) deliver(event Event) {
	if s.journaled {
		s.journalMu.Lock()
		s.journal = append(s.journal, event)
		s.journalMu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.subscribers[""] {
		h(event)
	}
	for _, h := range s.subscribers[event.Name] {
		h(event)
	}
}

// Journal returns a copy of every event delivered so far, if the Sink was
// built WithJournal; nil otherwise.
func (s *Sink) Journal() []Event {
	if !s.journaled {
		return nil
	}
	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	out := make([]Event, len(s.journal))
	copy(out, s.journal)
	return out
}

// Close stops the dispatch goroutine and drains no further events.
// Pending buffered events are discarded.
func (s *Sink) Close() {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}
