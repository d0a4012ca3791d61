package decomposer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/loomwork/loom/internal/decomposer"
	"github.com/loomwork/loom/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoles() []*registry.Role {
	return []*registry.Role{
		{ID: "analyst", Name: "Business Analyst", Description: "gathers and analyzes requirements"},
		{ID: "architect", Name: "System Architect", Description: "designs system architecture"},
		{ID: "engineer", Name: "Software Engineer", Description: "implements and develops features"},
		{ID: "qa", Name: "QA Reviewer", Description: "tests and validates quality"},
	}
}

func TestRuleBased_FullPipelineMatchesAllStages(t *testing.T) {
	d := decomposer.New(nil, "engineer")

	result, err := d.Decompose(context.Background(), "Analyze requirements, design architecture, implement and test the billing module", testRoles(), nil)
	require.NoError(t, err)

	assert.Len(t, result.Tasks, 4)
	assert.NotEmpty(t, result.ExecutionOrder)
	// the four tasks chain one after another, so the first layer holds a
	// single task
	assert.Len(t, result.ExecutionOrder[0], 1)
}

func TestRuleBased_NoMatchProducesGenericTask(t *testing.T) {
	d := decomposer.New(nil, "engineer")

	result, err := d.Decompose(context.Background(), "say hello", testRoles(), nil)
	require.NoError(t, err)

	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "engineer", result.Tasks[0].RoleID)
}

func TestDecompose_RejectsCycles(t *testing.T) {
	cyclic := cyclicStrategy{}
	d := decomposer.New(nil, "engineer")
	_, err := d.Decompose(context.Background(), "goal", testRoles(), nil)
	require.NoError(t, err) // rule-based never cycles; sanity check before cyclic test

	// directly exercise postProcess's cycle rejection via a strategy the
	// Decomposer wraps as its "llm" slot, so a cyclic result surfaces
	// through the normal Decompose path.
	d2 := decomposer.New(cyclic, "engineer")
	_, err = d2.Decompose(context.Background(), "goal", testRoles(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, decomposer.ErrCyclicDecomposition))
}

type cyclicStrategy struct{}

func (cyclicStrategy) Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) ([]decomposer.Task, error) {
	return []decomposer.Task{
		{ID: "a", Description: "a", RoleID: "engineer", DependsOn: []string{"b"}},
		{ID: "b", Description: "b", RoleID: "engineer", DependsOn: []string{"a"}},
	}, nil
}

func TestDecompose_FallsBackWhenLLMErrors(t *testing.T) {
	d := decomposer.New(failingStrategy{}, "engineer")
	result, err := d.Decompose(context.Background(), "implement the thing", testRoles(), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tasks)
}

type failingStrategy struct{}

func (failingStrategy) Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) ([]decomposer.Task, error) {
	return nil, assert.AnError
}
