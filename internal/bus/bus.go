// Package bus implements per-agent mailboxes, broadcast, and a shared
// last-writer-wins context map for in-process multi-agent coordination.
// See spec.md §4.F. Grounded on agents/guide/bus.go's Message envelope
// and publish/subscribe contract, narrowed to the mailbox + shared
// context shape the spec describes.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the AgentMessage kind.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
	KindContextShare Kind = "context_share"
)

// Message is an AgentMessage: the envelope exchanged between agents.
type Message struct {
	ID            string
	From          string
	To            string // empty means broadcast
	Kind          Kind
	Payload       any
	Timestamp     time.Time
	CorrelationID string
}

// Broadcast is the sentinel recipient for a broadcast message.
const Broadcast = ""

type contextEntry struct {
	value     any
	owner     string
	timestamp time.Time
}

// Bus is an in-process message and shared-context coordinator. One Bus
// instance is shared by every Agent in a workflow run.
//
// Ordering guarantee: messages from one sender to one recipient are
// delivered in send order (spec.md §8 invariant 6). There is no global
// total order across senders.
type Bus struct {
	mu        sync.Mutex
	mailboxes map[string][]Message
	known     map[string]bool // agent ids seen via Register, Subscribe, Peek, or as a Publish recipient
	shared    map[string]contextEntry

	journal       []Message
	journalActive bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithJournal enables the optional durable journal (every publish is also
// appended to an in-memory journal that can be replayed on recovery).
func WithJournal() Option {
	return func(b *Bus) { b.journalActive = true }
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		mailboxes: make(map[string][]Message),
		known:     make(map[string]bool),
		shared:    make(map[string]contextEntry),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register declares an agent id as known, so Broadcast reaches it even
// before its first Subscribe/Peek call.
func (b *Bus) Register(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.known[agentID] = true
}

// Publish appends msg to its recipient's mailbox (or every known agent's
// mailbox, for a broadcast message). If msg.ID is empty one is assigned.
func (b *Bus) Publish(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.journalActive {
		b.journal = append(b.journal, msg)
	}

	if msg.To == Broadcast {
		for agentID := range b.known {
			if agentID == msg.From {
				continue
			}
			b.mailboxes[agentID] = append(b.mailboxes[agentID], msg)
		}
		return msg
	}

	b.known[msg.To] = true
	b.mailboxes[msg.To] = append(b.mailboxes[msg.To], msg)
	return msg
}

// Broadcast delivers msg to every known agent except msg.From.
func (b *Bus) Broadcast(msg Message) Message {
	msg.To = Broadcast
	return b.Publish(msg)
}

// Subscribe drains and returns all pending messages for agentID, removing
// them from the mailbox.
func (b *Bus) Subscribe(agentID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.known[agentID] = true
	msgs := b.mailboxes[agentID]
	b.mailboxes[agentID] = nil
	return msgs
}

// Peek reads pending messages for agentID without removing them.
func (b *Bus) Peek(agentID string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.known[agentID] = true
	msgs := make([]Message, len(b.mailboxes[agentID]))
	copy(msgs, b.mailboxes[agentID])
	return msgs
}

// ShareContext publishes a value under key, globally visible to every
// agent via GetContext. Conflicts resolve last-writer-wins by timestamp;
// callers SHOULD call ShareContext before publishing a message that
// depends on it.
func (b *Bus) ShareContext(from, key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	existing, ok := b.shared[key]
	if ok && !now.After(existing.timestamp) {
		now = existing.timestamp.Add(time.Nanosecond)
	}
	b.shared[key] = contextEntry{value: value, owner: from, timestamp: now}
}

// GetContext returns the current value for key and whether it was set.
// Readers always see a consistent snapshot at the moment of read.
func (b *Bus) GetContext(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.shared[key]
	return entry.value, ok
}

// Snapshot returns a copy of the entire shared-context map, for
// checkpointing (spec.md §4.K).
func (b *Bus) Snapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, len(b.shared))
	for k, v := range b.shared {
		out[k] = v.value
	}
	return out
}

// Restore replaces the shared-context map wholesale, for checkpoint restore.
func (b *Bus) Restore(snapshot map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shared = make(map[string]contextEntry, len(snapshot))
	now := time.Now()
	for k, v := range snapshot {
		b.shared[k] = contextEntry{value: v, timestamp: now}
	}
}

// Journal returns a copy of the durable journal tail, if journaling is
// enabled; nil otherwise.
func (b *Bus) Journal() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.journalActive {
		return nil
	}
	out := make([]Message, len(b.journal))
	copy(out, b.journal)
	return out
}
