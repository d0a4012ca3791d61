package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomwork/loom/internal/registry"
)

// ExecuteParallelStages partitions stages by dependency-readiness within
// the given set, then runs each ready partition's stages concurrently,
// bounded by the Orchestrator's concurrency limit — the semaphore-bounded
// layer pattern core/dag/executor.go uses for DAG nodes, adapted to
// workflow Stages (spec.md §4.I execute_parallel_stages).
//
// A stage whose same-partition dependency failed is recorded as
// ErrBlockedByDependency and never dispatched; every other stage in its
// partition still runs. The Orchestrator never cancels siblings on a
// single stage's failure — partial success is collected and returned for
// the Workflow Executor to interpret.
func (o *Orchestrator) ExecuteParallelStages(ctx context.Context, stages []*registry.Stage, roles map[string]*registry.Role, projectContext map[string]any) []StageResult {
	byID := make(map[string]*registry.Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}

	graph := make(map[string][]string, len(stages))
	for _, s := range stages {
		var deps []string
		for _, d := range s.DependsOn {
			if _, inSet := byID[d]; inSet {
				deps = append(deps, d)
			}
		}
		graph[s.ID] = deps
	}

	partitions := layeredStageOrder(graph)
	results := make(map[string]StageResult, len(stages))
	var resultsMu sync.Mutex

	for _, partition := range partitions {
		sem := make(chan struct{}, o.concurrency)
		var wg sync.WaitGroup

		for _, stageID := range partition {
			stage := byID[stageID]

			if blocker, blocked := firstFailedDependency(stage.DependsOn, results); blocked {
				results[stageID] = StageResult{StageID: stageID, Err: fmt.Errorf("%w: %s", ErrBlockedByDependency, blocker)}
				continue
			}

			role := roles[stageID]
			sem <- struct{}{}
			wg.Add(1)
			go func(stage *registry.Stage, role *registry.Role) {
				defer wg.Done()
				defer func() { <-sem }()
				res := o.ExecuteStage(ctx, stage, role, projectContext)
				resultsMu.Lock()
				results[stage.ID] = res
				resultsMu.Unlock()
			}(stage, role)
		}

		wg.Wait()
	}

	out := make([]StageResult, 0, len(stages))
	for _, s := range stages {
		out = append(out, results[s.ID])
	}
	return out
}

func firstFailedDependency(dependsOn []string, results map[string]StageResult) (string, bool) {
	for _, dep := range dependsOn {
		if res, ok := results[dep]; ok && res.Err != nil {
			return dep, true
		}
	}
	return "", false
}

// layeredStageOrder groups stage ids into dependency-satisfied layers,
// the same peeling approach internal/decomposer.layeredTopoSort uses for
// tasks — duplicated rather than shared, since that function is
// unexported and keyed to Task ids rather than Stage ids.
func layeredStageOrder(graph map[string][]string) [][]string {
	remaining := make(map[string][]string, len(graph))
	for id, deps := range graph {
		remaining[id] = deps
	}

	var order [][]string
	for len(remaining) > 0 {
		var layer []string
		for id, deps := range remaining {
			if allDepsResolved(deps, remaining) {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			// cycle within the given set: break deterministically rather
			// than loop forever; the Registry already rejects cycles in
			// the full workflow DAG at load time, so this only guards a
			// caller-assembled subset.
			for id := range remaining {
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

func allDepsResolved(deps []string, remaining map[string][]string) bool {
	for _, d := range deps {
		if _, stillRemaining := remaining[d]; stillRemaining {
			return false
		}
	}
	return true
}
