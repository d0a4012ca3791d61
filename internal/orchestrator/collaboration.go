package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loomwork/loom/internal/agent"
	"github.com/loomwork/loom/internal/decomposer"
	"github.com/loomwork/loom/internal/registry"
)

// ErrNoDecomposer is returned by ExecuteWithCollaboration when the
// Orchestrator was built without WithDecomposer.
var ErrNoDecomposer = errors.New("orchestrator: no decomposer configured")

// CollaborationResult is the outcome of ExecuteWithCollaboration: the
// Decomposer's dependency-graphed breakdown, plus each task's terminal
// outcome.
type CollaborationResult struct {
	Decomposition decomposer.Decomposition
	Outcomes      map[string]TaskOutcome
}

// ExecuteWithCollaboration decomposes goal, then runs each
// execution_order group with one Agent per task, wired into the shared
// Bus so tasks may exchange messages mid-execution; a group completes
// when every task in it reaches a terminal status (spec.md §4.I
// execute_with_collaboration).
func (o *Orchestrator) ExecuteWithCollaboration(ctx context.Context, goal string, roles []*registry.Role, projectContext map[string]any) (CollaborationResult, error) {
	if o.decomp == nil {
		return CollaborationResult{}, ErrNoDecomposer
	}

	decomposition, err := o.decomp.Decompose(ctx, goal, roles, nil)
	if err != nil {
		return CollaborationResult{}, fmt.Errorf("orchestrator: collaboration: %w", err)
	}

	roleByID := make(map[string]*registry.Role, len(roles))
	for _, r := range roles {
		roleByID[r.ID] = r
	}

	tasksByID := make(map[string]decomposer.Task, len(decomposition.Tasks))
	for _, t := range decomposition.Tasks {
		tasksByID[t.ID] = t
	}

	outcomes := make(map[string]TaskOutcome, len(decomposition.Tasks))
	var outcomesMu sync.Mutex

	for _, group := range decomposition.ExecutionOrder {
		sem := make(chan struct{}, o.concurrency)
		var wg sync.WaitGroup

		for _, taskID := range group {
			task := tasksByID[taskID]
			role, ok := roleByID[task.RoleID]
			if !ok {
				outcomesMu.Lock()
				outcomes[taskID] = TaskOutcome{TaskID: taskID, Status: decomposer.StatusFailed, Err: fmt.Errorf("orchestrator: task %s assigned unknown role %q", taskID, task.RoleID)}
				outcomesMu.Unlock()
				continue
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(task decomposer.Task, role *registry.Role) {
				defer wg.Done()
				defer func() { <-sem }()

				outcome := o.runCollaborationTask(ctx, task, role, projectContext)
				outcomesMu.Lock()
				outcomes[task.ID] = outcome
				outcomesMu.Unlock()
			}(task, role)
		}

		wg.Wait()
	}

	return CollaborationResult{Decomposition: decomposition, Outcomes: outcomes}, nil
}

func (o *Orchestrator) runCollaborationTask(ctx context.Context, task decomposer.Task, role *registry.Role, projectContext map[string]any) TaskOutcome {
	ag := agent.New("task-agent-"+task.ID, role, o.bus)
	actx := agent.NewContext(role, projectContext, o.bus)

	o.sink.Emit("task.created", map[string]any{"task_id": task.ID, "role_id": role.ID})

	intents := ag.Prepare(task.Description, actx)
	finalCtx, err := o.executeIntents(ctx, role, actx, intents, "", "", task.ID)
	if err != nil {
		o.sink.Emit("task.completed", map[string]any{"task_id": task.ID, "status": string(decomposer.StatusFailed), "error": err.Error()})
		return TaskOutcome{TaskID: task.ID, Status: decomposer.StatusFailed, Outputs: finalCtx.Outputs, Err: err}
	}

	o.sink.Emit("task.completed", map[string]any{"task_id": task.ID, "status": string(decomposer.StatusCompleted)})
	return TaskOutcome{TaskID: task.ID, Status: decomposer.StatusCompleted, Outputs: finalCtx.Outputs}
}
