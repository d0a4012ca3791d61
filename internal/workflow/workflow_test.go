package workflow_test

import (
	"context"
	"testing"

	"github.com/loomwork/loom/internal/bus"
	"github.com/loomwork/loom/internal/invoker"
	"github.com/loomwork/loom/internal/orchestrator"
	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/selector"
	"github.com/loomwork/loom/internal/tracker"
	"github.com/loomwork/loom/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoStageWorkflow(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Collection{
		Skills: []registry.Skill{
			{ID: "analyze", Name: "analyze requirements", Description: "analyze requirements", Dimensions: []string{"analysis"}},
			{ID: "build", Name: "build feature", Description: "implement a feature", Dimensions: []string{"implementation"}},
		},
		Roles: []registry.Role{
			{ID: "analyst", Name: "Analyst", RequiredSkills: []registry.SkillRequirement{{SkillID: "analyze", MinLevel: 1}}},
			{ID: "engineer", Name: "Engineer", RequiredSkills: []registry.SkillRequirement{{SkillID: "build", MinLevel: 1}}},
		},
		Workflow: registry.Workflow{
			ID: "wf1",
			Stages: []registry.Stage{
				{ID: "s1", Name: "analyze requirements", RoleID: "analyst"},
				{ID: "s2", Name: "implement a feature", RoleID: "engineer", DependsOn: []string{"s1"}},
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func newExecutor(t *testing.T, reg *registry.Registry) *workflow.Executor {
	t.Helper()
	tr := tracker.New(16)
	sel := selector.New(reg, tr)
	b := bus.New()
	orch := orchestrator.New(reg, tr, sel, invoker.NewPlaceholder(), b)
	return workflow.New(reg, orch, nil, b)
}

func TestStartCompletePrecondition(t *testing.T) {
	reg := twoStageWorkflow(t)
	ex := newExecutor(t, reg)

	// s2 depends on s1, which hasn't run yet.
	err := ex.Start(context.Background(), "s2", "")
	require.ErrorIs(t, err, workflow.ErrPreconditionFailed)
}

func TestStartCompleteHappyPath(t *testing.T) {
	reg := twoStageWorkflow(t)
	ex := newExecutor(t, reg)

	require.NoError(t, ex.Start(context.Background(), "s1", ""))
	require.NoError(t, ex.Complete("s1"))

	state := ex.State()
	assert.Equal(t, workflow.StatusCompleted, state.StageStatus["s1"])
	assert.Contains(t, state.CompletedStages, "s1")

	require.NoError(t, ex.Start(context.Background(), "s2", ""))
	require.NoError(t, ex.Complete("s2"))

	state = ex.State()
	assert.Equal(t, workflow.StatusCompleted, state.StageStatus["s2"])
}

func TestWfAutoRunsToCompletion(t *testing.T) {
	reg := twoStageWorkflow(t)
	ex := newExecutor(t, reg)

	require.NoError(t, ex.WfAuto(context.Background()))

	state := ex.State()
	assert.Equal(t, workflow.StatusCompleted, state.StageStatus["s1"])
	assert.Equal(t, workflow.StatusCompleted, state.StageStatus["s2"])
}

func TestCompleteBlocksOnFailingGate(t *testing.T) {
	reg, err := registry.New(registry.Collection{
		Skills: []registry.Skill{
			{ID: "analyze", Name: "analyze requirements", Description: "analyze requirements", Dimensions: []string{"analysis"}},
		},
		Roles: []registry.Role{
			{ID: "analyst", Name: "Analyst", RequiredSkills: []registry.SkillRequirement{{SkillID: "analyze", MinLevel: 1}}},
		},
		Workflow: registry.Workflow{
			ID: "wf1",
			Stages: []registry.Stage{
				{
					ID: "s1", Name: "analyze requirements", RoleID: "analyst",
					QualityGates: []registry.QualityGateSpec{
						{ID: "g1", Kind: "artifact_exists", Blocking: true, Parameters: map[string]any{"output": "nonexistent_output"}},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	ex := newExecutor(t, reg)

	require.NoError(t, ex.Start(context.Background(), "s1", ""))
	require.NoError(t, ex.Complete("s1"))

	state := ex.State()
	assert.Equal(t, workflow.StatusBlocked, state.StageStatus["s1"])
	assert.NotEmpty(t, state.Findings["s1"])

	require.NoError(t, ex.Retry(context.Background(), "s1"))
	state = ex.State()
	assert.Equal(t, workflow.StatusInProgress, state.StageStatus["s1"])
}

func TestRoleInferenceByRequiredSkillOverlap(t *testing.T) {
	reg, err := registry.New(registry.Collection{
		Skills: []registry.Skill{
			{ID: "build", Name: "build", Dimensions: []string{"build"}},
		},
		Roles: []registry.Role{
			{ID: "analyst", Name: "Analyst", RequiredSkills: nil},
			{ID: "engineer", Name: "Engineer", RequiredSkills: []registry.SkillRequirement{{SkillID: "build", MinLevel: 1}}},
		},
		Workflow: registry.Workflow{
			ID: "wf1",
			Stages: []registry.Stage{
				{ID: "s1", Name: "build the thing", RequiredSkills: []registry.SkillRequirement{{SkillID: "build", MinLevel: 1}}},
			},
		},
	})
	require.NoError(t, err)
	ex := newExecutor(t, reg)

	require.NoError(t, ex.Start(context.Background(), "s1", ""))
	state := ex.State()
	assert.Equal(t, "engineer", state.CurrentRoleID)
}
