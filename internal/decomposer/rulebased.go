package decomposer

import (
	"context"
	"strings"

	"github.com/loomwork/loom/internal/registry"
)

// stagePattern is one keyword-triggered stage in the rule-based
// decomposition pipeline, grounded on task_decomposer.py's
// _decompose_with_rules keyword tables (requirements → architecture →
// implementation → testing).
type stagePattern struct {
	keywords     []string
	roleKeywords []string
	describe     func(goal string) string
	dependsOn    []string // stagePattern.keywords of prior stages this one depends on, if present
}

var rulePatterns = []stagePattern{
	{
		keywords:     []string{"requirement", "analyze", "analysis", "spec"},
		roleKeywords: []string{"analyst", "product"},
		describe:     func(goal string) string { return "Analyze requirements: " + goal },
	},
	{
		keywords:     []string{"architecture", "design", "system"},
		roleKeywords: []string{"architect", "system"},
		describe:     func(goal string) string { return "Design architecture: " + goal },
		dependsOn:    []string{"requirement", "analyze", "analysis", "spec"},
	},
	{
		keywords:     []string{"implement", "develop", "code", "build"},
		roleKeywords: []string{"engineer", "developer", "implement"},
		describe:     func(goal string) string { return "Implement: " + goal },
		dependsOn:    []string{"architecture", "design", "system"},
	},
	{
		keywords:     []string{"test", "validate", "quality", "qa"},
		roleKeywords: []string{"qa", "quality", "reviewer", "test"},
		describe:     func(goal string) string { return "Test and validate: " + goal },
		dependsOn:    []string{"implement", "develop", "code", "build"},
	},
}

// RuleBased is the always-available fallback strategy: it matches the
// goal text against a fixed set of keyword-triggered stage patterns,
// producing one task per matched stage with dependencies wired to
// earlier matched stages. If nothing matches, it emits a single generic
// task for defaultRole.
type RuleBased struct {
	defaultRole string
}

// NewRuleBased creates a RuleBased strategy.
func NewRuleBased(defaultRole string) *RuleBased {
	return &RuleBased{defaultRole: defaultRole}
}

func (r *RuleBased) Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) ([]Task, error) {
	goalLower := strings.ToLower(goal)

	var tasks []Task
	matchedKeyword := make(map[string]string) // keyword -> task id, for dependency wiring

	for _, pattern := range rulePatterns {
		if !anyContains(goalLower, pattern.keywords) {
			continue
		}
		role := findRoleByKeywords(roles, pattern.roleKeywords)
		if role == nil {
			continue
		}

		var deps []string
		for _, depKeyword := range pattern.dependsOn {
			if id, ok := matchedKeyword[depKeyword]; ok {
				deps = append(deps, id)
			}
		}

		id := newTaskID()
		tasks = append(tasks, Task{
			ID:          id,
			Description: pattern.describe(goal),
			RoleID:      role.ID,
			DependsOn:   dedupe(deps),
			Status:      StatusPending,
			Inputs:      map[string]any{},
			Outputs:     map[string]any{},
		})
		for _, kw := range pattern.keywords {
			matchedKeyword[kw] = id
		}
	}

	if len(tasks) == 0 {
		roleID := r.defaultRole
		if roleID == "" && len(roles) > 0 {
			roleID = roles[0].ID
		}
		tasks = append(tasks, Task{
			ID:          newTaskID(),
			Description: goal,
			RoleID:      roleID,
			Status:      StatusPending,
			Inputs:      map[string]any{},
			Outputs:     map[string]any{},
		})
	}

	return tasks, nil
}

func anyContains(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func findRoleByKeywords(roles []*registry.Role, keywords []string) *registry.Role {
	for _, role := range roles {
		text := strings.ToLower(role.ID + " " + role.Name + " " + role.Description)
		if anyContains(text, keywords) {
			return role
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
