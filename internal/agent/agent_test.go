package agent_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/loomwork/loom/internal/agent"
	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_EmitsSingleIntentInOrder(t *testing.T) {
	b := bus.New()
	role := &registry.Role{ID: "r1"}
	a := agent.New("agent1", role, b)

	ctx := agent.NewContext(role, nil, b)
	intents := a.Prepare("build the widget", ctx)

	require.Len(t, intents, 1)
	assert.Equal(t, "build the widget", intents[0].Description)
}

func TestPrepare_EmptyGoalYieldsNoIntents(t *testing.T) {
	b := bus.New()
	role := &registry.Role{ID: "r1"}
	a := agent.New("agent1", role, b)

	ctx := agent.NewContext(role, nil, b)
	assert.Empty(t, a.Prepare("", ctx))
}

func TestMessaging_RoundTrip(t *testing.T) {
	b := bus.New()
	role := &registry.Role{ID: "r1"}
	alice := agent.New("alice", role, b)
	bob := agent.New("bob", role, b)

	alice.SendMessage("bob", bus.KindNotification, "hello")

	assert.True(t, bob.CheckMessages())
	msgs := bob.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Payload)
}

func TestShareContext_VisibleToOtherAgents(t *testing.T) {
	b := bus.New()
	role := &registry.Role{ID: "r1"}
	alice := agent.New("alice", role, b)

	alice.ShareContext("artifact.X", "value")

	v, ok := b.GetContext("artifact.X")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

// TestAgentPackage_NeverImportsInvoker is a structural test enforcing
// spec.md §4.G's invariant that the Agent layer must not own a reference
// to any Invoker. It parses this package's own source rather than relying
// on convention.
func TestAgentPackage_NeverImportsInvoker(t *testing.T) {
	fset := token.NewFileSet()
	dir := "."
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".go" {
			continue
		}
		if entry.Name() == filepath.Base(currentFile()) {
			continue // this test file itself is allowed to mention "invoker" in prose
		}
		path := filepath.Join(dir, entry.Name())
		f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			assert.NotContains(t, imp.Path.Value, "internal/invoker",
				"%s must not import internal/invoker", path)
		}
	}
}

func currentFile() string {
	return "agent_test.go"
}
