package bus_test

import (
	"testing"

	"github.com/loomwork/loom/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe_FIFOPerRecipient(t *testing.T) {
	b := bus.New()
	b.Publish(bus.Message{From: "a", To: "b", Payload: 1})
	b.Publish(bus.Message{From: "a", To: "b", Payload: 2})

	msgs := b.Subscribe("b")
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, msgs[0].Payload)
	assert.Equal(t, 2, msgs[1].Payload)

	// draining removed them
	assert.Empty(t, b.Subscribe("b"))
}

func TestPeek_DoesNotRemove(t *testing.T) {
	b := bus.New()
	b.Publish(bus.Message{From: "a", To: "b", Payload: "x"})

	assert.Len(t, b.Peek("b"), 1)
	assert.Len(t, b.Peek("b"), 1) // still there
	assert.Len(t, b.Subscribe("b"), 1)
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	b := bus.New()
	b.Register("a")
	b.Register("b")
	b.Register("c")

	b.Broadcast(bus.Message{From: "a", Payload: "hi"})

	assert.Empty(t, b.Subscribe("a"))
	assert.Len(t, b.Subscribe("b"), 1)
	assert.Len(t, b.Subscribe("c"), 1)
}

func TestShareContext_LastWriterWins(t *testing.T) {
	b := bus.New()
	b.ShareContext("agent1", "k", "first")
	b.ShareContext("agent2", "k", "second")

	v, ok := b.GetContext("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	b := bus.New()
	b.ShareContext("a", "x", 42)

	snap := b.Snapshot()

	b2 := bus.New()
	b2.Restore(snap)

	v, ok := b2.GetContext("x")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestJournal_RecordsWhenEnabled(t *testing.T) {
	b := bus.New(bus.WithJournal())
	b.Publish(bus.Message{From: "a", To: "b"})
	assert.Len(t, b.Journal(), 1)

	noJournal := bus.New()
	noJournal.Publish(bus.Message{From: "a", To: "b"})
	assert.Nil(t, noJournal.Journal())
}
