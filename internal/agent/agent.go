// Package agent is the reasoning layer: it builds context and emits
// intents, but never invokes a skill directly. See spec.md §4.G.
//
// Structural invariant: this package MUST NOT import internal/invoker or
// reference any invoker-shaped interface. Violating that collapses the
// three-layer (reasoning / selection / execution) contract the spec
// calls a fatal implementation error (spec.md §7 InternalError).
package agent

import (
	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/registry"
)

// Context is the AgentContext: what an Agent knows when it reasons about
// a goal — its role, a snapshot of project and shared context, the
// artifacts it has already produced, and references into execution
// history.
type Context struct {
	Role           *registry.Role
	ProjectContext map[string]any
	SharedContext  map[string]any // copy-on-read snapshot from the Bus
	Outputs        map[string]any
	History        []string // SkillExecution ids
}

// NewContext builds an AgentContext, copying the Bus's shared context at
// this instant (spec.md §3 "shared_context (copy-on-read from Bus)").
func NewContext(role *registry.Role, projectContext map[string]any, b *bus.Bus) Context {
	return Context{
		Role:           role,
		ProjectContext: projectContext,
		SharedContext:  b.Snapshot(),
		Outputs:        make(map[string]any),
	}
}

// Intent is a task description an Agent wishes to achieve. The
// Orchestrator turns each Intent into a Selector→Invoker call; the Agent
// itself never touches an Invoker.
type Intent struct {
	Description string
	Mode        string // optional hint; the Orchestrator does not read it (mode fit uses the stage's ExecutionMode)
}

// Review is the result of an Agent reasoning over another agent's output.
type Review struct {
	Approved           bool
	Comments           string
	SuggestedRevisions []string
}

// Agent is a reasoning actor bound to a Role.
type Agent struct {
	ID   string
	bus  *bus.Bus
	role *registry.Role
}

// New creates an Agent bound to a role and wired into the Bus.
func New(id string, role *registry.Role, b *bus.Bus) *Agent {
	b.Register(id)
	return &Agent{ID: id, bus: b, role: role}
}

// Prepare builds an AgentContext for goal and returns an ordered list of
// intents. The order is meaningful: within one stage executed by a
// single Agent, intents execute strictly in emission order (spec.md §5).
//
// This default implementation is a single-intent mapping from the goal
// text; richer reasoning (LLM-backed intent planning) plugs in by
// wrapping Agent or by decorating Prepare's result before handing it to
// the Orchestrator — see internal/decomposer for the multi-task case.
func (a *Agent) Prepare(goal string, ctx Context) []Intent {
	if goal == "" {
		return nil
	}
	return []Intent{{Description: goal}}
}

// ReviewOutput reasons over another agent's artifact and returns a
// verdict. The default policy approves unconditionally; callers that need
// LLM-backed review supply their own Agent wrapper.
func (a *Agent) ReviewOutput(otherAgent string, output any) Review {
	return Review{Approved: true}
}

// RequestFeedback asks another agent to review an artifact, via the Bus.
func (a *Agent) RequestFeedback(otherAgent string, artifact any) {
	a.bus.Publish(bus.Message{
		From:    a.ID,
		To:      otherAgent,
		Kind:    bus.KindRequest,
		Payload: artifact,
	})
}

// SendMessage is a thin wrapper over Bus.Publish.
func (a *Agent) SendMessage(to string, kind bus.Kind, payload any) {
	a.bus.Publish(bus.Message{From: a.ID, To: to, Kind: kind, Payload: payload})
}

// CheckMessages reports whether any messages are waiting, without
// draining them.
func (a *Agent) CheckMessages() bool {
	return len(a.bus.Peek(a.ID)) > 0
}

// GetMessages drains and returns this agent's mailbox.
func (a *Agent) GetMessages() []bus.Message {
	return a.bus.Subscribe(a.ID)
}

// ShareContext publishes a shared-context value via the Bus.
func (a *Agent) ShareContext(key string, value any) {
	a.bus.ShareContext(a.ID, key, value)
}

// Role returns the role this agent is bound to.
func (a *Agent) Role() *registry.Role {
	return a.role
}
