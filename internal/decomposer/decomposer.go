// Package decomposer turns a high-level goal into a dependency-graphed
// set of Tasks, each assigned to a Role. See spec.md §4.H. Grounded on
// _examples/original_source/.../task_decomposer.py's two-strategy shape
// (LLM first, rule-based fallback) and its Kahn's-algorithm execution
// ordering, generalized to spec.md's "topologically sorted groups of
// mutually independent tasks" contract (the original returns a flat
// order; loom groups it, reusing the DFS-cycle-detection style
// internal/registry.detectWorkflowCycle already established).
package decomposer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/loomwork/loom/internal/registry"
)

// Status is a Task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Task is a unit of work produced by decomposition.
type Task struct {
	ID          string
	Description string
	RoleID      string
	DependsOn   []string
	Status      Status
	Inputs      map[string]any
	Outputs     map[string]any
	Error       string
}

// Decomposition is the full result of decomposing one goal.
type Decomposition struct {
	Tasks          []Task
	ExecutionOrder [][]string // groups of mutually independent task ids, in dependency order
	DependencyGraph map[string][]string
}

// ErrCyclicDecomposition is returned when post-processing finds a cycle
// in a strategy's task dependency graph.
var ErrCyclicDecomposition = errors.New("decomposer: cyclic task decomposition")

// Strategy produces a raw task list for a goal. Role assignment,
// dependency-graph construction, cycle rejection, and execution-order
// grouping are applied identically to every strategy's output by
// Decomposer.Decompose, so a Strategy only needs to get the task
// breakdown and each task's DependsOn (the ids of other tasks in the
// same list) right.
type Strategy interface {
	Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) ([]Task, error)
}

// Decomposer drives decomposition: try the LLM strategy if one is
// configured, falling back to the rule-based strategy on any error —
// the engine must remain operational with no LLM client configured
// (spec.md §6).
type Decomposer struct {
	llm         Strategy // nil disables LLM decomposition
	rule        Strategy
	defaultRole string // used when no role matches a task and no better default exists
}

// New creates a Decomposer. llm may be nil.
func New(llm Strategy, defaultRole string) *Decomposer {
	return &Decomposer{llm: llm, rule: NewRuleBased(defaultRole), defaultRole: defaultRole}
}

// Decompose turns goal into a Decomposition, preferring the LLM strategy
// when configured and falling back to the rule-based strategy if it
// errors.
func (d *Decomposer) Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) (Decomposition, error) {
	var (
		tasks []Task
		err   error
	)

	if d.llm != nil {
		tasks, err = d.llm.Decompose(ctx, goal, roles, hints)
		if err != nil {
			tasks, err = d.rule.Decompose(ctx, goal, roles, hints)
		}
	} else {
		tasks, err = d.rule.Decompose(ctx, goal, roles, hints)
	}
	if err != nil {
		return Decomposition{}, fmt.Errorf("decomposer: %w", err)
	}

	tasks = assignRoles(tasks, roles, d.defaultRole)
	return postProcess(tasks)
}

// postProcess builds the dependency graph, rejects cycles, and groups
// tasks into topologically-sorted execution layers.
func postProcess(tasks []Task) (Decomposition, error) {
	graph := make(map[string][]string, len(tasks))
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		graph[t.ID] = append([]string(nil), t.DependsOn...)
		byID[t.ID] = t
	}

	if err := detectCycle(graph); err != nil {
		return Decomposition{}, err
	}

	order := layeredTopoSort(graph)
	return Decomposition{Tasks: tasks, ExecutionOrder: order, DependencyGraph: graph}, nil
}

func detectCycle(graph map[string][]string) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(graph))

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: at task %s", ErrCyclicDecomposition, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range graph[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// layeredTopoSort groups task ids into Kahn's-algorithm layers: layer 0
// has no dependencies, layer 1 depends only on layer 0, and so on — the
// "groups of mutually independent tasks" spec.md §3 describes for
// TaskDecomposition.execution_order.
func layeredTopoSort(graph map[string][]string) [][]string {
	remaining := make(map[string][]string, len(graph))
	for id, deps := range graph {
		remaining[id] = deps
	}

	var order [][]string
	for len(remaining) > 0 {
		var layer []string
		for id, deps := range remaining {
			if allSatisfied(deps, remaining) {
				layer = append(layer, id)
			}
		}
		sort.Strings(layer)
		for _, id := range layer {
			delete(remaining, id)
		}
		order = append(order, layer)
	}
	return order
}

func allSatisfied(deps []string, remaining map[string][]string) bool {
	for _, d := range deps {
		if _, stillRemaining := remaining[d]; stillRemaining {
			return false
		}
	}
	return true
}

// assignRoles fills in RoleID for any task a strategy left unassigned,
// matching the task description against each role's required-skill set
// (spec.md §4.H), falling back to defaultRole.
func assignRoles(tasks []Task, roles []*registry.Role, defaultRole string) []Task {
	for i, t := range tasks {
		if t.RoleID != "" {
			continue
		}
		if best := bestRoleFor(t.Description, roles); best != "" {
			tasks[i].RoleID = best
		} else {
			tasks[i].RoleID = defaultRole
		}
	}
	return tasks
}

func bestRoleFor(description string, roles []*registry.Role) string {
	descTokens := tokenize(description)
	bestRole := ""
	bestScore := 0
	for _, role := range roles {
		roleText := role.ID + " " + role.Name + " " + role.Description
		for _, req := range role.RequiredSkills {
			roleText += " " + req.SkillID
		}
		score := overlapCount(descTokens, tokenize(roleText))
		if score > bestScore {
			bestScore = score
			bestRole = role.ID
		}
	}
	return bestRole
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,:;!?()[]{}\"'")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

func newTaskID() string {
	return "task_" + uuid.New().String()[:8]
}
