// Package selector picks the best skill for a task given role, context,
// and tracker history. See spec.md §4.C.
package selector

import (
	"errors"
	"sort"
	"strings"

	"github.com/loomwork/loom/internal/registry"
	"github.com/loomwork/loom/internal/tracker"
)

// ErrNoSkillAvailable is returned when every candidate skill scores 0.
// It is recoverable: the Agent may re-prompt with a broader description
// or escalate (spec.md §7).
var ErrNoSkillAvailable = errors.New("no skill available")

const (
	weightAffinity = 0.5
	weightRole     = 0.2
	weightHistory  = 0.2
	weightModeFit  = 0.1
)

// Scored pairs a skill with its selection score.
type Scored struct {
	Skill *registry.Skill
	Score float64
}

// Selector scores skills against a task description, a role, and history.
type Selector struct {
	registry *registry.Registry
	tracker  *tracker.Tracker
}

// New creates a Selector bound to a Registry and Tracker.
func New(reg *registry.Registry, tr *tracker.Tracker) *Selector {
	return &Selector{registry: reg, tracker: tr}
}

// Context carries the stage-level information that affects mode-fit
// scoring (spec.md §4.C criterion 5).
type Context struct {
	StageExecutionMode string
}

// Select returns the single best-scoring skill for a task, or
// ErrNoSkillAvailable if every candidate scores 0.
func (s *Selector) Select(taskDescription string, role *registry.Role, ctx Context) (*registry.Skill, error) {
	ranked, err := s.SelectTopN(taskDescription, role, ctx, 0)
	if err != nil {
		return nil, err
	}
	return ranked[0].Skill, nil
}

// SelectTopN returns up to n ranked (Skill, score) pairs. n <= 0 means
// "all candidates with nonzero score".
func (s *Selector) SelectTopN(taskDescription string, role *registry.Role, ctx Context, n int) ([]Scored, error) {
	skills, err := s.registry.SkillsForRole(role.ID)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(role.RequiredSkills))
	minLevel := make(map[string]int, len(role.RequiredSkills))
	for _, req := range role.RequiredSkills {
		allowed[req.SkillID] = true
		minLevel[req.SkillID] = req.MinLevel
	}

	taskTokens := tokenize(taskDescription)

	var scored []Scored
	for _, skill := range skills {
		score := s.score(skill, taskTokens, allowed, role, ctx)
		if score <= 0 {
			continue
		}
		scored = append(scored, Scored{Skill: skill, Score: score})
	}

	if len(scored) == 0 {
		return nil, ErrNoSkillAvailable
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		li, lj := minLevel[scored[i].Skill.ID], minLevel[scored[j].Skill.ID]
		if li != lj {
			return li > lj
		}
		return scored[i].Skill.ID < scored[j].Skill.ID
	})

	if n > 0 && n < len(scored) {
		scored = scored[:n]
	}
	return scored, nil
}

// score computes the weighted sum in spec.md §4.C. Criteria 2 (role
// authorization) and 4 (constraint compatibility) are strictly
// multiplicative gates: either one being 0 collapses the whole score.
func (s *Selector) score(skill *registry.Skill, taskTokens map[string]bool, allowed map[string]bool, role *registry.Role, ctx Context) float64 {
	if !allowed[skill.ID] {
		return 0
	}
	if forbidsAny(role.Constraints.ForbiddenActions, skill.ExecutionCapabilities) {
		return 0
	}

	affinity := tokenAffinity(taskTokens, skillTokens(skill))
	history := 0.5
	if s.tracker != nil {
		history = s.tracker.ScoreOf(skill.ID)
	}

	modeFit := 0.0
	if ctx.StageExecutionMode != "" && skill.Metadata.ExecutionMode == ctx.StageExecutionMode {
		modeFit = weightModeFit
	}

	return weightAffinity*affinity + weightRole*1.0 + weightHistory*history + modeFit
}

func forbidsAny(forbidden, capabilities []string) bool {
	if len(forbidden) == 0 || len(capabilities) == 0 {
		return false
	}
	set := make(map[string]bool, len(forbidden))
	for _, f := range forbidden {
		set[f] = true
	}
	for _, c := range capabilities {
		if set[c] {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = true
		}
	}
	return set
}

func skillTokens(skill *registry.Skill) map[string]bool {
	parts := []string{skill.Name, skill.Description}
	parts = append(parts, skill.Dimensions...)
	return tokenize(strings.Join(parts, " "))
}

// tokenAffinity is a Jaccard token-overlap score in [0,1]. Implementation
// freedom per spec.md §4.C: token overlap is sufficient; a stronger
// embedding match would also conform.
func tokenAffinity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var intersection int
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
