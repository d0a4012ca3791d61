package orchestrator_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/invoker"
	"github.com/loomwork/loom/internal/orchestrator"
	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/selector"
	"github.com/loomwork/loom/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Collection{
		Skills: []registry.Skill{
			{
				ID:            "draft",
				Name:          "draft document",
				Description:   "draft a design document",
				Dimensions:    []string{"writing", "design"},
				Deterministic: true,
			},
		},
		Roles: []registry.Role{
			{
				ID:             "architect",
				Name:           "Architect",
				RequiredSkills: []registry.SkillRequirement{{SkillID: "draft", MinLevel: 1}},
			},
		},
	})
	require.NoError(t, err)
	return reg
}

type countingInvoker struct {
	inner invoker.Invoker
	calls int32
}

func (c *countingInvoker) Supports(skill *registry.Skill) bool { return c.inner.Supports(skill) }

func (c *countingInvoker) Invoke(ctx context.Context, skill *registry.Skill, input, execContext map[string]any) (invoker.Result, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.Invoke(ctx, skill, input, execContext)
}

func newOrchestrator(t *testing.T, inv invoker.Invoker) (*orchestrator.Orchestrator, *registry.Registry) {
	t.Helper()
	reg := testRegistry(t)
	tr := tracker.New(16)
	sel := selector.New(reg, tr)
	b := bus.New()
	return orchestrator.New(reg, tr, sel, inv, b), reg
}

func TestExecuteStage_Success(t *testing.T) {
	inv := &countingInvoker{inner: invoker.NewPlaceholder()}
	o, reg := newOrchestrator(t, inv)
	role, err := reg.GetRole("architect")
	require.NoError(t, err)

	stage := &registry.Stage{ID: "s1", Name: "design the billing module", Outputs: []string{"result"}}
	res := o.ExecuteStage(context.Background(), stage, role, nil)

	require.NoError(t, res.Err)
	assert.Equal(t, "s1", res.StageID)
	assert.EqualValues(t, 1, inv.calls)
}

func TestExecuteStage_DeterministicReuseSkipsSecondInvoke(t *testing.T) {
	inv := &countingInvoker{inner: invoker.NewPlaceholder()}
	o, reg := newOrchestrator(t, inv)
	role, err := reg.GetRole("architect")
	require.NoError(t, err)

	stage := &registry.Stage{ID: "s1", Name: "draft the design", Outputs: []string{"result"}}
	res1 := o.ExecuteStage(context.Background(), stage, role, nil)
	require.NoError(t, res1.Err)

	res2 := o.ExecuteStage(context.Background(), stage, role, nil)
	require.NoError(t, res2.Err)

	assert.EqualValues(t, 1, inv.calls, "second stage with identical input should reuse the cached output")
}

func TestExecuteParallelStages_PartialSuccess(t *testing.T) {
	inv := invoker.NewPlaceholder()
	o, reg := newOrchestrator(t, inv)
	role, err := reg.GetRole("architect")
	require.NoError(t, err)

	stages := []*registry.Stage{
		{ID: "a", Name: "draft module a"},
		{ID: "b", Name: "draft module b"},
	}
	roles := map[string]*registry.Role{"a": role, "b": role}

	results := o.ExecuteParallelStages(context.Background(), stages, roles, nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestExecuteParallelStages_BlockedByFailedDependency(t *testing.T) {
	inv := invoker.NewPlaceholder()
	o, reg := newOrchestrator(t, inv)
	role, err := reg.GetRole("architect")
	require.NoError(t, err)

	// Stage "a" runs under role "ghost", which is not in the registry, so
	// skill selection fails with registry.ErrRoleNotFound and "b", which
	// depends on "a", is never dispatched.
	unmatched := &registry.Role{ID: "ghost", RequiredSkills: nil}
	stages := []*registry.Stage{
		{ID: "a", Name: "draft module a"},
		{ID: "b", Name: "draft module b", DependsOn: []string{"a"}},
	}
	roles := map[string]*registry.Role{"a": unmatched, "b": role}

	results := o.ExecuteParallelStages(context.Background(), stages, roles, nil)
	byID := make(map[string]orchestrator.StageResult, len(results))
	for _, r := range results {
		byID[r.StageID] = r
	}

	require.Error(t, byID["a"].Err)
	require.Error(t, byID["b"].Err)
	assert.ErrorIs(t, byID["b"].Err, orchestrator.ErrBlockedByDependency)
}
