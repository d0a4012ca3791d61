// Package orchestrator is the central scheduler: it drives Agents through
// the Selector→Invoker pipeline, records history in the Tracker, and
// coordinates inter-agent messaging over the Bus. See spec.md §4.I.
// Grounded on core/orchestrator/orchestrator.go's subscribe-and-drive
// skeleton and core/dag/executor.go's semaphore-bounded parallel layer
// execution, adapted from DAG nodes to workflow Stages and decomposition
// groups.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/loomwork/loom/internal/agent"
	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/decomposer"
	"github.com/loomwork/loom/internal/invoker"
	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/selector"
	"github.com/loomwork/loom/internal/tracker"
)

// ErrNoSkillAvailable is surfaced when the Selector finds nothing for an
// intent; the caller (Workflow Executor) decides whether to escalate or
// mark the task failed (spec.md §4.I step 2).
var ErrNoSkillAvailable = errors.New("orchestrator: no skill available for intent")

// ErrBlockedByDependency marks a stage or task that was never attempted
// because a dependency in the same partition failed.
var ErrBlockedByDependency = errors.New("orchestrator: blocked by failed dependency")

const defaultConcurrency = 8

// EventSink receives the structured events spec.md §6 names
// (stage.started, skill.invoked, ...). Implements the same one-way shape
// as internal/invoker.ProgressSink; Orchestrator only emits, never reads.
type EventSink interface {
	Emit(event string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// StageResult is the outcome of ExecuteStage: the final AgentContext, or
// an error if a fatal error aborted the stage before all intents ran.
type StageResult struct {
	StageID string
	Context agent.Context
	Err     error
}

// TaskOutcome is the outcome of one task inside a decomposition group.
type TaskOutcome struct {
	TaskID  string
	Status  decomposer.Status
	Outputs map[string]any
	Err     error
}

// Orchestrator is the central scheduler bound to one workflow run's
// shared collaborators.
type Orchestrator struct {
	reg    *registry.Registry
	tr     *tracker.Tracker
	sel    *selector.Selector
	inv    invoker.Invoker
	bus    *bus.Bus
	decomp *decomposer.Decomposer
	sink   EventSink

	concurrency int

	cacheMu sync.RWMutex
	cache   map[string]map[string]any // "skillID|inputDigest" -> output, deterministic-skill reuse
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many Agents may run simultaneously within
// one parallel partition or decomposition group (default 8).
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithEventSink wires an EventSink; absent, events are discarded.
func WithEventSink(sink EventSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithDecomposer wires a Decomposer for ExecuteWithCollaboration. Absent,
// that entry point returns an error.
func WithDecomposer(d *decomposer.Decomposer) Option {
	return func(o *Orchestrator) { o.decomp = d }
}

// New creates an Orchestrator bound to a Registry, Tracker, Selector,
// Invoker, and Bus — the collaborators every execution entry point needs.
func New(reg *registry.Registry, tr *tracker.Tracker, sel *selector.Selector, inv invoker.Invoker, b *bus.Bus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		reg:         reg,
		tr:          tr,
		sel:         sel,
		inv:         inv,
		bus:         b,
		sink:        noopSink{},
		concurrency: defaultConcurrency,
		cache:       make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// executeIntents is the hot loop of the engine (spec.md §4.I steps 1-5),
// run once per Agent against an ordered list of intents. Intents execute
// strictly in order; a fatal error on any intent aborts the remainder.
func (o *Orchestrator) executeIntents(ctx context.Context, role *registry.Role, actx agent.Context, intents []agent.Intent, mode, stageID, taskID string) (agent.Context, error) {
	for _, intent := range intents {
		skill, err := o.sel.Select(intent.Description, role, selector.Context{StageExecutionMode: mode})
		if err != nil {
			if errors.Is(err, selector.ErrNoSkillAvailable) {
				return actx, fmt.Errorf("%w: %q", ErrNoSkillAvailable, intent.Description)
			}
			return actx, fmt.Errorf("orchestrator: select: %w", err)
		}

		input := buildInput(intent, actx)
		inputDigest := digest(input)

		output, reused, err := o.resolve(ctx, skill, input, actx.SharedContext, inputDigest, stageID, taskID)
		if err != nil {
			return actx, err
		}
		if !reused {
			o.cachePut(skill.ID, inputDigest, output)
		}

		for k, v := range output {
			actx.Outputs[k] = v
		}
		actx.History = append(actx.History, uuid.New().String())
	}
	return actx, nil
}

// resolve implements hot-loop steps 3-4: reuse a prior deterministic,
// side-effect-free skill's output for the same (skill, input_digest) pair
// if an earlier invocation succeeded (kept in the Orchestrator's output
// cache), otherwise invoke. Either way the execution is recorded.
func (o *Orchestrator) resolve(ctx context.Context, skill *registry.Skill, input, shared map[string]any, inputDigest, stageID, taskID string) (map[string]any, bool, error) {
	if skill.Deterministic && !skill.HasSideEffects() {
		if cached, ok := o.cacheGet(skill.ID, inputDigest); ok {
			o.tr.Record(tracker.Execution{
				ID:           uuid.New().String(),
				SkillID:      skill.ID,
				TaskID:       taskID,
				StageID:      stageID,
				Status:       tracker.StatusSuccess,
				Score:        scoreFor(tracker.StatusSuccess),
				InputDigest:  inputDigest,
				OutputDigest: digest(cached),
			})
			return cached, true, nil
		}
	}

	o.sink.Emit("skill.invoked", map[string]any{"skill_id": skill.ID, "stage_id": stageID, "task_id": taskID})

	res, invErr := o.inv.Invoke(ctx, skill, input, shared)
	status, errorKind := classify(invErr)

	o.tr.Record(tracker.Execution{
		ID:           uuid.New().String(),
		SkillID:      skill.ID,
		TaskID:       taskID,
		StageID:      stageID,
		RoleID:       "",
		Status:       status,
		ErrorKind:    errorKind,
		Score:        scoreFor(status),
		InputDigest:  inputDigest,
		OutputDigest: res.OutputDigest,
	})

	if invErr != nil {
		o.sink.Emit("skill.completed", map[string]any{"skill_id": skill.ID, "status": string(status), "error": invErr.Error()})
		return nil, false, fmt.Errorf("orchestrator: skill %s: %w", skill.ID, invErr)
	}

	o.sink.Emit("skill.completed", map[string]any{"skill_id": skill.ID, "status": string(status)})
	return res.Output, false, nil
}

func (o *Orchestrator) cacheGet(skillID, inputDigest string) (map[string]any, bool) {
	o.cacheMu.RLock()
	defer o.cacheMu.RUnlock()
	v, ok := o.cache[cacheKey(skillID, inputDigest)]
	return v, ok
}

func (o *Orchestrator) cachePut(skillID, inputDigest string, output map[string]any) {
	o.cacheMu.Lock()
	defer o.cacheMu.Unlock()
	o.cache[cacheKey(skillID, inputDigest)] = output
}

func cacheKey(skillID, inputDigest string) string {
	return skillID + "|" + inputDigest
}

// ExecuteStage spawns a single Agent for stage, drains its intents
// through the hot loop, and publishes declared outputs to the Bus shared
// context (spec.md §4.I execute_stage, §3 "shared artifacts declared by
// the stage contract").
func (o *Orchestrator) ExecuteStage(ctx context.Context, stage *registry.Stage, role *registry.Role, projectContext map[string]any) StageResult {
	agentID := "stage-agent-" + stage.ID
	ag := agent.New(agentID, role, o.bus)
	actx := agent.NewContext(role, projectContext, o.bus)

	o.sink.Emit("stage.started", map[string]any{"stage_id": stage.ID})

	intents := ag.Prepare(stage.Name, actx)
	finalCtx, err := o.executeIntents(ctx, role, actx, intents, stage.ExecutionMode, stage.ID, "")
	if err != nil {
		o.sink.Emit("stage.completed", map[string]any{"stage_id": stage.ID, "error": err.Error()})
		return StageResult{StageID: stage.ID, Context: finalCtx, Err: err}
	}

	o.publishDeclaredOutputs(agentID, stage.Outputs, finalCtx.Outputs)
	o.sink.Emit("stage.completed", map[string]any{"stage_id": stage.ID})
	return StageResult{StageID: stage.ID, Context: finalCtx}
}

// publishDeclaredOutputs shares only the outputs a stage's contract names
// (stage.Outputs), not every key an Agent happened to accumulate.
func (o *Orchestrator) publishDeclaredOutputs(agentID string, declared []string, outputs map[string]any) {
	for _, name := range declared {
		if v, ok := outputs[name]; ok {
			o.bus.ShareContext(agentID, name, v)
		}
	}
}

// buildInput assembles the map passed to Invoker.Invoke: the intent's own
// description plus every output accumulated so far in this AgentContext,
// so a skill can see the work prior intents in the same stage produced.
func buildInput(intent agent.Intent, actx agent.Context) map[string]any {
	input := make(map[string]any, len(actx.Outputs)+1)
	for k, v := range actx.Outputs {
		input[k] = v
	}
	input["goal"] = intent.Description
	return input
}

// digest mirrors internal/invoker's content hash exactly (sha256 of
// json.Marshal) so the Orchestrator's pre-invoke reuse check agrees with
// the digest an Invoker computes and returns. Duplicated rather than
// exported from internal/invoker: the Orchestrator must be able to
// compute a candidate digest before an Invoke call exists to return one.
func digest(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(fmt.Sprintf("%v", v))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// classify turns an Invoke error into a tracker Status and ErrorKind.
func classify(err error) (tracker.Status, string) {
	if err == nil {
		return tracker.StatusSuccess, ""
	}
	var ie *invoker.Error
	if errors.As(err, &ie) {
		if ie.Kind == invoker.ErrorKindTimeout {
			return tracker.StatusTimeout, string(ie.Kind)
		}
		return tracker.StatusFailure, string(ie.Kind)
	}
	return tracker.StatusFailure, string(invoker.ErrorKindExecution)
}

func scoreFor(status tracker.Status) float64 {
	if status == tracker.StatusSuccess {
		return 1.0
	}
	return 0.0
}
