package registry

import (
	"fmt"
	"sort"
)

// Collection is the resolved input a config provider hands the Registry:
// raw, not-yet-validated roles/skills/bundles/workflow. See spec.md §6
// "Config provider".
type Collection struct {
	Skills    []Skill
	Bundles   []SkillBundle
	Roles     []Role
	Workflow  Workflow
	Predicates []string // ids of custom_predicate gate functions the caller has registered
}

// Registry is the validated in-memory store of roles, skills, bundles,
// and the workflow. Entities are immutable once loaded.
type Registry struct {
	skills   map[string]*Skill
	bundles  map[string]*SkillBundle
	roles    map[string]*Role
	workflow Workflow
}

// New validates collection and returns a Registry, or a *ConfigError.
// Validation is total: any single failure rejects the whole collection.
func New(collection Collection) (*Registry, error) {
	r := &Registry{
		skills:  make(map[string]*Skill, len(collection.Skills)),
		bundles: make(map[string]*SkillBundle, len(collection.Bundles)),
		roles:   make(map[string]*Role, len(collection.Roles)),
	}

	for i := range collection.Skills {
		s := collection.Skills[i]
		if _, dup := r.skills[s.ID]; dup {
			return nil, newConfigError(ErrKindDuplicateID, "duplicate skill id "+s.ID)
		}
		for lvl := range s.Levels {
			if lvl < 1 || lvl > 3 {
				return nil, newConfigError(ErrKindLevelOutOfRange, fmt.Sprintf("skill %s has level %d", s.ID, lvl))
			}
		}
		r.skills[s.ID] = &s
	}

	for i := range collection.Bundles {
		b := collection.Bundles[i]
		if _, dup := r.bundles[b.ID]; dup {
			return nil, newConfigError(ErrKindDuplicateID, "duplicate bundle id "+b.ID)
		}
		r.bundles[b.ID] = &b
	}

	if err := r.checkBundleAcyclic(); err != nil {
		return nil, err
	}

	for i := range collection.Roles {
		role := collection.Roles[i]
		if _, dup := r.roles[role.ID]; dup {
			return nil, newConfigError(ErrKindDuplicateID, "duplicate role id "+role.ID)
		}
		expanded, err := r.expandRequirements(role.RequiredSkills, make(map[string]bool))
		if err != nil {
			return nil, err
		}
		role.RequiredSkills = expanded
		r.roles[role.ID] = &role
	}

	// extends: composition-only, union required skills from the base role.
	for id, role := range r.roles {
		if role.Extends == "" {
			continue
		}
		base, ok := r.roles[role.Extends]
		if !ok {
			return nil, newConfigError(ErrKindMissingRef, "role "+id+" extends missing role "+role.Extends)
		}
		role.RequiredSkills = mergeRequirements(role.RequiredSkills, base.RequiredSkills)
	}

	for _, role := range r.roles {
		for _, req := range role.RequiredSkills {
			if _, ok := r.skills[req.SkillID]; !ok {
				return nil, newConfigError(ErrKindMissingRef, "role "+role.ID+" requires missing skill "+req.SkillID)
			}
		}
		if overlap := intersect(role.Constraints.AllowedActions, role.Constraints.ForbiddenActions); len(overlap) > 0 {
			return nil, newConfigError(ErrKindForbiddenAllowedOverlap, "role "+role.ID+" allows and forbids "+overlap[0])
		}
	}

	for _, stage := range collection.Workflow.Stages {
		for _, dep := range stage.DependsOn {
			if !stageExists(collection.Workflow.Stages, dep) {
				return nil, newConfigError(ErrKindMissingRef, "stage "+stage.ID+" depends on missing stage "+dep)
			}
		}
		if stage.RoleID != "" {
			if _, ok := r.roles[stage.RoleID]; !ok {
				return nil, newConfigError(ErrKindMissingRef, "stage "+stage.ID+" assigned missing role "+stage.RoleID)
			}
		}
		for _, gate := range stage.QualityGates {
			if gate.Kind == "custom_predicate" {
				// A declarative expr gate needs no registered predicate.
				if _, isExpr := gate.Parameters["expr"].(string); isExpr {
					continue
				}
				name, _ := gate.Parameters["predicate"].(string)
				if name == "" || !contains(collection.Predicates, name) {
					return nil, newConfigError(ErrKindMissingRef, "stage "+stage.ID+" gate "+gate.ID+" references unregistered predicate")
				}
			}
		}
		// A stage cannot require a skill its assigned role does not authorize.
		if stage.RoleID != "" {
			role := r.roles[stage.RoleID]
			for _, req := range stage.RequiredSkills {
				if !roleAuthorizes(role, req.SkillID) {
					return nil, newConfigError(ErrKindMissingRef, "stage "+stage.ID+" requires skill "+req.SkillID+" not authorized for role "+stage.RoleID)
				}
			}
		}
	}

	if err := detectWorkflowCycle(collection.Workflow.Stages); err != nil {
		return nil, err
	}

	r.workflow = collection.Workflow
	return r, nil
}

func roleAuthorizes(role *Role, skillID string) bool {
	for _, req := range role.RequiredSkills {
		if req.SkillID == skillID {
			return true
		}
	}
	return false
}

// expandRequirements recursively expands bundle references, keeping the
// max MinLevel across duplicate skill ids, and rejecting cycles.
func (r *Registry) expandRequirements(reqs []SkillRequirement, visiting map[string]bool) ([]SkillRequirement, error) {
	byID := make(map[string]SkillRequirement)
	var order []string

	var expand func(reqs []SkillRequirement) error
	expand = func(reqs []SkillRequirement) error {
		for _, req := range reqs {
			if req.BundleID != "" {
				if visiting[req.BundleID] {
					return newConfigError(ErrKindBundleCycle, "bundle cycle at "+req.BundleID)
				}
				bundle, ok := r.bundles[req.BundleID]
				if !ok {
					return newConfigError(ErrKindMissingRef, "missing bundle "+req.BundleID)
				}
				visiting[req.BundleID] = true
				if err := expand(bundle.Requirements); err != nil {
					return err
				}
				visiting[req.BundleID] = false
				continue
			}
			if existing, ok := byID[req.SkillID]; ok {
				if req.MinLevel > existing.MinLevel {
					existing.MinLevel = req.MinLevel
					byID[req.SkillID] = existing
				}
				continue
			}
			byID[req.SkillID] = req
			order = append(order, req.SkillID)
		}
		return nil
	}

	if err := expand(reqs); err != nil {
		return nil, err
	}

	out := make([]SkillRequirement, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func mergeRequirements(a, b []SkillRequirement) []SkillRequirement {
	seen := make(map[string]int, len(a))
	out := append([]SkillRequirement{}, a...)
	for i, r := range out {
		seen[r.SkillID] = i
	}
	for _, r := range b {
		if idx, ok := seen[r.SkillID]; ok {
			if r.MinLevel > out[idx].MinLevel {
				out[idx].MinLevel = r.MinLevel
			}
			continue
		}
		seen[r.SkillID] = len(out)
		out = append(out, r)
	}
	return out
}

// checkBundleAcyclic rejects a self- or mutually-referential set of bundles.
func (r *Registry) checkBundleAcyclic() error {
	state := make(map[string]int) // 0 unvisited, 1 visiting, 2 done
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case 1:
			return newConfigError(ErrKindBundleCycle, "bundle cycle at "+id)
		case 2:
			return nil
		}
		state[id] = 1
		bundle, ok := r.bundles[id]
		if ok {
			for _, req := range bundle.Requirements {
				if req.BundleID != "" {
					if err := visit(req.BundleID); err != nil {
						return err
					}
				}
			}
		}
		state[id] = 2
		return nil
	}
	ids := make([]string, 0, len(r.bundles))
	for id := range r.bundles {
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

func detectWorkflowCycle(stages []Stage) error {
	byID := make(map[string]Stage, len(stages))
	for _, s := range stages {
		byID[s.ID] = s
	}
	state := make(map[string]int)
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case 1:
			return newConfigError(ErrKindWorkflowCycle, "workflow cycle at "+id)
		case 2:
			return nil
		}
		state[id] = 1
		for _, dep := range byID[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = 2
		return nil
	}
	ids := make([]string, 0, len(stages))
	for _, s := range stages {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func stageExists(stages []Stage, id string) bool {
	for _, s := range stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	var out []string
	for _, v := range b {
		if set[v] {
			out = append(out, v)
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

// Roles returns every loaded role, sorted by id, for callers (such as
// internal/workflow's role inference) that need to scan the whole set
// rather than resolve one id.
func (r *Registry) Roles() []*Role {
	ids := make([]string, 0, len(r.roles))
	for id := range r.roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Role, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.roles[id])
	}
	return out
}

// GetRole resolves a role by id.
func (r *Registry) GetRole(id string) (*Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

// GetSkill resolves a skill by id.
func (r *Registry) GetSkill(id string) (*Skill, error) {
	skill, ok := r.skills[id]
	if !ok {
		return nil, ErrSkillNotFound
	}
	return skill, nil
}

// SkillsForRole returns the skills a role requires, bundle-expanded, with
// MinLevel as the max across duplicates (already resolved at load time).
func (r *Registry) SkillsForRole(roleID string) ([]*Skill, error) {
	role, err := r.GetRole(roleID)
	if err != nil {
		return nil, err
	}
	out := make([]*Skill, 0, len(role.RequiredSkills))
	for _, req := range role.RequiredSkills {
		skill := r.skills[req.SkillID]
		out = append(out, skill)
	}
	return out, nil
}

// Workflow returns the loaded workflow.
func (r *Registry) Workflow() Workflow {
	return r.workflow
}

// Stage looks up a stage by id in the loaded workflow.
func (r *Registry) Stage(id string) (*Stage, bool) {
	for i := range r.workflow.Stages {
		if r.workflow.Stages[i].ID == id {
			return &r.workflow.Stages[i], true
		}
	}
	return nil, false
}
