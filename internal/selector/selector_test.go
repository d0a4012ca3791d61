package selector_test

import (
	"testing"

	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/selector"
	"github.com/loomwork/loom/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*registry.Registry, *registry.Role) {
	t.Helper()
	coll := registry.Collection{
		Skills: []registry.Skill{
			{ID: "write_code", Name: "Write Code", Description: "implement a feature in source code", Levels: map[int]string{1: "x"}},
			{ID: "review_code", Name: "Review Code", Description: "review a pull request", Levels: map[int]string{1: "x"}},
			{ID: "deploy", Name: "Deploy", Description: "ship to production", ExecutionCapabilities: []string{"network_write"}, Levels: map[int]string{1: "x"}},
		},
		Roles: []registry.Role{
			{
				ID:   "builder",
				Name: "Builder",
				RequiredSkills: []registry.SkillRequirement{
					{SkillID: "write_code", MinLevel: 1},
					{SkillID: "deploy", MinLevel: 1},
				},
				Constraints: registry.Constraints{ForbiddenActions: []string{"network_write"}},
			},
		},
		Workflow: registry.Workflow{Stages: []registry.Stage{{ID: "s", RoleID: "builder"}}},
	}
	reg, err := registry.New(coll)
	require.NoError(t, err)
	role, err := reg.GetRole("builder")
	require.NoError(t, err)
	return reg, role
}

func TestSelect_PicksAuthorizedRelevantSkill(t *testing.T) {
	reg, role := setup(t)
	sel := selector.New(reg, tracker.New(10))

	skill, err := sel.Select("please write code for the new feature", role, selector.Context{})
	require.NoError(t, err)
	assert.Equal(t, "write_code", skill.ID)
}

func TestSelect_UnauthorizedSkillScoresZero(t *testing.T) {
	reg, role := setup(t)
	sel := selector.New(reg, tracker.New(10))

	// "review" isn't in builder's required skills at all, so with no
	// other candidates matching, only write_code/deploy are scored.
	ranked, err := sel.SelectTopN("write code", role, selector.Context{}, 0)
	require.NoError(t, err)
	for _, r := range ranked {
		assert.NotEqual(t, "review_code", r.Skill.ID)
	}
}

func TestSelect_ForbiddenCapabilityGatesToZero(t *testing.T) {
	reg, role := setup(t)
	sel := selector.New(reg, tracker.New(10))

	ranked, err := sel.SelectTopN("deploy to production", role, selector.Context{}, 0)
	require.NoError(t, err)
	for _, r := range ranked {
		assert.NotEqual(t, "deploy", r.Skill.ID)
	}
}

func TestSelect_NoSkillAvailable(t *testing.T) {
	reg, role := setup(t)
	sel := selector.New(reg, tracker.New(10))

	_, err := sel.SelectTopN("completely unrelated gibberish zzz", role, selector.Context{}, 0)
	require.ErrorIs(t, err, selector.ErrNoSkillAvailable)
}

func TestSelect_Deterministic(t *testing.T) {
	reg, role := setup(t)
	sel := selector.New(reg, tracker.New(10))

	first, err := sel.Select("write code", role, selector.Context{})
	require.NoError(t, err)
	second, err := sel.Select("write code", role, selector.Context{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSelect_ModeFitBoost(t *testing.T) {
	coll := registry.Collection{
		Skills: []registry.Skill{
			{ID: "a", Name: "task alpha", Metadata: registry.Metadata{ExecutionMode: "implementation"}, Levels: map[int]string{1: "x"}},
			{ID: "b", Name: "task alpha", Metadata: registry.Metadata{ExecutionMode: "analysis"}, Levels: map[int]string{1: "x"}},
		},
		Roles: []registry.Role{{
			ID: "r", RequiredSkills: []registry.SkillRequirement{{SkillID: "a", MinLevel: 1}, {SkillID: "b", MinLevel: 1}},
		}},
		Workflow: registry.Workflow{Stages: []registry.Stage{{ID: "s", RoleID: "r"}}},
	}
	reg, err := registry.New(coll)
	require.NoError(t, err)
	role, _ := reg.GetRole("r")
	sel := selector.New(reg, tracker.New(10))

	ranked, err := sel.SelectTopN("task alpha", role, selector.Context{StageExecutionMode: "implementation"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "a", ranked[0].Skill.ID)
}
