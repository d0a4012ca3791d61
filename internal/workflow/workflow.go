// Package workflow drives a Registry's workflow DAG through its stage
// state machine, delegating each stage's body to the Orchestrator and its
// completion gate to the Quality Gate Evaluator. See spec.md §4.J.
// Grounded on core/dag/types.go's typed-enum state style (NodeState:
// pending → queued → running → succeeded/failed/blocked) applied to
// Stages instead of DAG nodes, and
// _examples/original_source/.../workflow_executor.py's operation names
// (start_stage/complete_stage/get_stage_status) and preconditions
// (prerequisites all completed, sequential stage order).
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/gate"
	"github.com/loomwork/loom/internal/orchestrator"
	"github.com/loomwork/loom/internal/registry"
)

// Status is a Stage's lifecycle state (spec.md §4.J: Pending → InProgress
// → {Completed | Blocked}; Blocked → InProgress via retry).
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// IsTerminal reports whether the stage can never transition again. Only
// Completed is terminal; a Blocked stage returns to InProgress on Retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

var (
	// ErrStageNotFound names a stage id absent from the loaded workflow.
	ErrStageNotFound = errors.New("workflow: stage not found")
	// ErrPreconditionFailed names a start() call whose preconditions
	// (Pending status, satisfied dependencies) do not hold.
	ErrPreconditionFailed = errors.New("workflow: precondition failed")
	// ErrNotBlocked is returned by retry() on a stage that isn't Blocked.
	ErrNotBlocked = errors.New("workflow: stage is not blocked")
	// ErrNotStarted is returned by complete() on a stage with no
	// in-flight Orchestrator result to evaluate.
	ErrNotStarted = errors.New("workflow: stage has no pending execution")
)

// EventSink receives stage-lifecycle events (spec.md §6:
// stage.started/completed/blocked).
type EventSink interface {
	Emit(event string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// ExecutionState is the serializable state the Checkpoint Manager
// snapshots (spec.md §3 ExecutionState, §4.K).
type ExecutionState struct {
	CurrentStageID  string                   `json:"current_stage_id"`
	CurrentRoleID   string                   `json:"current_role_id"`
	CompletedStages []string                 `json:"completed_stages"`
	StageStatus     map[string]Status        `json:"stage_status"`
	Findings        map[string][]gate.Result `json:"findings"`
}

// Executor is the Workflow Executor: the single writer of stage state
// (spec.md §5 "ExecutionState is single-writer").
type Executor struct {
	mu sync.RWMutex

	reg   *registry.Registry
	orch  *orchestrator.Orchestrator
	gates *gate.Evaluator
	b     *bus.Bus
	sink  EventSink

	projectContext map[string]any

	state   ExecutionState
	pending map[string]orchestrator.StageResult // stageID -> last ExecuteStage result awaiting complete()
}

// Option configures an Executor.
type Option func(*Executor)

// WithEventSink wires an EventSink; absent, events are discarded.
func WithEventSink(sink EventSink) Option {
	return func(e *Executor) { e.sink = sink }
}

// WithProjectContext sets the static project context every stage's Agent
// is built with.
func WithProjectContext(pc map[string]any) Option {
	return func(e *Executor) { e.projectContext = pc }
}

// New creates an Executor bound to a Registry's loaded workflow and its
// collaborators. gates may be nil, in which case every stage completes
// unconditionally (no gates declared is the common case this also
// covers).
func New(reg *registry.Registry, orch *orchestrator.Orchestrator, gates *gate.Evaluator, b *bus.Bus, opts ...Option) *Executor {
	if gates == nil {
		gates = gate.NewEvaluator()
	}
	e := &Executor{
		reg:     reg,
		orch:    orch,
		gates:   gates,
		b:       b,
		sink:    noopSink{},
		state:   ExecutionState{StageStatus: make(map[string]Status), Findings: make(map[string][]gate.Result)},
		pending: make(map[string]orchestrator.StageResult),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns a copy of the current ExecutionState, for the Checkpoint
// Manager to serialize.
func (e *Executor) State() ExecutionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneState(e.state)
}

// Restore replaces the live ExecutionState wholesale (spec.md §4.K
// "Restore fully replaces the live state").
func (e *Executor) Restore(state ExecutionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = cloneState(state)
	e.pending = make(map[string]orchestrator.StageResult)
}

func cloneState(s ExecutionState) ExecutionState {
	out := ExecutionState{
		CurrentStageID:  s.CurrentStageID,
		CurrentRoleID:   s.CurrentRoleID,
		CompletedStages: append([]string(nil), s.CompletedStages...),
		StageStatus:     make(map[string]Status, len(s.StageStatus)),
		Findings:        make(map[string][]gate.Result, len(s.Findings)),
	}
	for k, v := range s.StageStatus {
		out.StageStatus[k] = v
	}
	for k, v := range s.Findings {
		out.Findings[k] = append([]gate.Result(nil), v...)
	}
	return out
}

func (e *Executor) statusOf(stageID string) Status {
	if s, ok := e.state.StageStatus[stageID]; ok {
		return s
	}
	return StatusPending
}

func (e *Executor) depsSatisfied(stage *registry.Stage) bool {
	for _, dep := range stage.DependsOn {
		if e.statusOf(dep) != StatusCompleted {
			return false
		}
	}
	return true
}

// Start begins a stage: preconditions are that every dependency is
// Completed and the stage itself is Pending. roleID, if non-empty,
// overrides the stage's default role and inference (spec.md §4.J
// "explicit > stage default > inference").
func (e *Executor) Start(ctx context.Context, stageID, roleID string) error {
	e.mu.Lock()
	stage, ok := e.reg.Stage(stageID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}
	if e.statusOf(stageID) != StatusPending {
		e.mu.Unlock()
		return fmt.Errorf("%w: stage %s is not pending", ErrPreconditionFailed, stageID)
	}
	if !e.depsSatisfied(stage) {
		e.mu.Unlock()
		return fmt.Errorf("%w: stage %s has incomplete dependencies", ErrPreconditionFailed, stageID)
	}

	role, err := e.resolveRole(stage, roleID)
	if err != nil {
		e.mu.Unlock()
		return err
	}

	e.state.CurrentStageID = stageID
	e.state.CurrentRoleID = role.ID
	e.state.StageStatus[stageID] = StatusInProgress
	e.mu.Unlock()

	e.sink.Emit("stage.started", map[string]any{"stage_id": stageID, "role_id": role.ID})

	result := e.orch.ExecuteStage(ctx, stage, role, e.projectContext)

	e.mu.Lock()
	e.pending[stageID] = result
	e.mu.Unlock()

	return nil
}

// resolveRole implements spec.md §4.J's precedence: explicit roleID >
// stage.RoleID > inference from required_skills overlap.
func (e *Executor) resolveRole(stage *registry.Stage, roleID string) (*registry.Role, error) {
	if roleID != "" {
		return e.reg.GetRole(roleID)
	}
	if stage.RoleID != "" {
		return e.reg.GetRole(stage.RoleID)
	}
	return inferRole(stage, e.reg.Roles())
}

// inferRole picks the role whose required_skills maximize overlap with
// the stage's required_skills, tie-breaking by role id (spec.md §4.J).
func inferRole(stage *registry.Stage, roles []*registry.Role) (*registry.Role, error) {
	stageSkills := make(map[string]bool, len(stage.RequiredSkills))
	for _, req := range stage.RequiredSkills {
		stageSkills[req.SkillID] = true
	}

	var best *registry.Role
	bestOverlap := -1
	for _, role := range roles {
		overlap := 0
		for _, req := range role.RequiredSkills {
			if stageSkills[req.SkillID] {
				overlap++
			}
		}
		if overlap > bestOverlap || (overlap == bestOverlap && best != nil && role.ID < best.ID) {
			bestOverlap = overlap
			best = role
		}
	}
	if best == nil {
		return nil, fmt.Errorf("workflow: no role could be inferred for stage %s", stage.ID)
	}
	return best, nil
}

// Complete runs the Quality Gate Evaluator over a started stage's
// produced outputs; all blocking gates passing marks it Completed,
// otherwise Blocked with the full findings list (spec.md §4.J).
func (e *Executor) Complete(stageID string) error {
	e.mu.Lock()
	result, ok := e.pending[stageID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotStarted, stageID)
	}
	stage, _ := e.reg.Stage(stageID)
	e.mu.Unlock()

	if result.Err != nil {
		e.mu.Lock()
		e.state.StageStatus[stageID] = StatusBlocked
		e.state.Findings[stageID] = []gate.Result{{GateID: "execution", Kind: "execution_error", Blocking: true, Pass: false, Finding: result.Err.Error()}}
		e.mu.Unlock()
		e.sink.Emit("stage.blocked", map[string]any{"stage_id": stageID, "error": result.Err.Error()})
		return nil
	}

	gateCtx := gate.Context{Outputs: result.Context.Outputs, Shared: e.b.Snapshot()}
	findings, blockingFailed := e.gates.EvaluateStage(stage.QualityGates, gateCtx)

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, stageID)

	if blockingFailed {
		e.state.StageStatus[stageID] = StatusBlocked
		e.state.Findings[stageID] = findings
		e.sink.Emit("stage.blocked", map[string]any{"stage_id": stageID, "findings": findings})
		return nil
	}

	e.state.StageStatus[stageID] = StatusCompleted
	e.state.CompletedStages = append(e.state.CompletedStages, stageID)
	delete(e.state.Findings, stageID)
	if e.state.CurrentStageID == stageID {
		e.state.CurrentStageID = ""
		e.state.CurrentRoleID = ""
	}
	e.sink.Emit("stage.completed", map[string]any{"stage_id": stageID})
	return nil
}

// Retry transitions a Blocked stage back to InProgress, clearing its
// findings, and re-delegates the stage body to the Orchestrator — a
// fresh Complete call is expected to follow (spec.md §4.J).
func (e *Executor) Retry(ctx context.Context, stageID string) error {
	e.mu.Lock()
	stage, ok := e.reg.Stage(stageID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStageNotFound, stageID)
	}
	if e.statusOf(stageID) != StatusBlocked {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotBlocked, stageID)
	}
	roleID := e.state.CurrentRoleID
	if e.state.CurrentStageID != stageID {
		roleID = "" // a retry on a stage that's no longer "current" re-infers its role
	}
	delete(e.state.Findings, stageID)
	e.state.StageStatus[stageID] = StatusInProgress
	e.state.CurrentStageID = stageID
	e.mu.Unlock()

	role, err := e.resolveRole(stage, roleID)
	if err != nil {
		return err
	}
	e.state.CurrentRoleID = role.ID

	result := e.orch.ExecuteStage(ctx, stage, role, e.projectContext)
	e.mu.Lock()
	e.pending[stageID] = result
	e.mu.Unlock()
	return nil
}

// startableStages returns every Pending stage whose dependencies are all
// Completed, sorted by id for determinism.
func (e *Executor) startableStages() []*registry.Stage {
	wf := e.reg.Workflow()
	var out []*registry.Stage
	for i := range wf.Stages {
		stage := &wf.Stages[i]
		if e.statusOf(stage.ID) == StatusPending && e.depsSatisfied(stage) {
			out = append(out, stage)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// allCompleted reports whether every stage in the workflow is Completed.
func (e *Executor) allCompleted() bool {
	for _, s := range e.reg.Workflow().Stages {
		if e.statusOf(s.ID) != StatusCompleted {
			return false
		}
	}
	return true
}

// WfAuto repeatedly starts and completes every startable stage, running
// mutually-independent parallelizable stages concurrently via
// execute_parallel_stages, until every stage is Completed or a
// non-recoverable Blocked stage halts progress (spec.md §4.J).
func (e *Executor) WfAuto(ctx context.Context) error {
	for {
		e.mu.RLock()
		done := e.allCompleted()
		e.mu.RUnlock()
		if done {
			return nil
		}

		ready := e.startableStages()
		if len(ready) == 0 {
			return e.firstBlockedError()
		}

		parallel, sequential := partitionByParallelizable(ready)

		if len(parallel) > 0 {
			if err := e.runParallel(ctx, parallel); err != nil {
				return err
			}
		}
		for _, stage := range sequential {
			if err := e.runSequential(ctx, stage); err != nil {
				return err
			}
		}
	}
}

func partitionByParallelizable(stages []*registry.Stage) (parallel, sequential []*registry.Stage) {
	for _, s := range stages {
		if s.Parallelizable {
			parallel = append(parallel, s)
		} else {
			sequential = append(sequential, s)
		}
	}
	return parallel, sequential
}

func (e *Executor) runSequential(ctx context.Context, stage *registry.Stage) error {
	if err := e.Start(ctx, stage.ID, ""); err != nil {
		return err
	}
	return e.Complete(stage.ID)
}

func (e *Executor) runParallel(ctx context.Context, stages []*registry.Stage) error {
	roles := make(map[string]*registry.Role, len(stages))
	for _, stage := range stages {
		role, err := e.resolveRole(stage, "")
		if err != nil {
			return err
		}
		roles[stage.ID] = role

		e.mu.Lock()
		e.state.StageStatus[stage.ID] = StatusInProgress
		e.mu.Unlock()
		e.sink.Emit("stage.started", map[string]any{"stage_id": stage.ID, "role_id": role.ID})
	}

	results := e.orch.ExecuteParallelStages(ctx, stages, roles, e.projectContext)

	e.mu.Lock()
	for _, res := range results {
		e.pending[res.StageID] = res
	}
	e.mu.Unlock()

	for _, stage := range stages {
		if err := e.Complete(stage.ID); err != nil {
			return err
		}
	}
	return nil
}

// firstBlockedError reports the first Blocked stage found, in stage
// declaration order, as the reason wfauto stopped before completing
// every stage.
func (e *Executor) firstBlockedError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.reg.Workflow().Stages {
		if e.statusOf(s.ID) == StatusBlocked {
			return fmt.Errorf("workflow: stopped: stage %s is blocked: %v", s.ID, e.state.Findings[s.ID])
		}
	}
	return fmt.Errorf("workflow: stopped: no startable stage and not all stages completed")
}
