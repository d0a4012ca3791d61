// Package tracker is the append-only log of past skill executions, the
// source of historical scoring used by the skill Selector. See spec.md
// §4.B.
package tracker

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Status is the terminal outcome of a skill execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
)

// Execution is a single recorded skill invocation.
type Execution struct {
	ID            string
	SkillID       string
	TaskID        string
	StageID       string
	RoleID        string
	StartedAt     time.Time
	EndedAt       time.Time
	Status        Status
	ErrorKind     string
	Score         float64 // in [0,1], only meaningful on success
	InputDigest   string
	OutputDigest  string
}

// Succeeded reports whether this execution counts as a success for
// scoring purposes. Timeouts count as failures per spec.md §4.B.
func (e Execution) Succeeded() bool {
	return e.Status == StatusSuccess
}

const (
	defaultHalfLife = 10
	defaultWindow   = 100
)

// Tracker is an append-only ordered log of SkillExecutions plus a bounded
// recent-window index per skill, used to compute the exponentially
// weighted success rate spec.md §4.B requires.
type Tracker struct {
	mu         sync.RWMutex
	executions []Execution
	recent     *lru.Cache[string, []Execution] // skill_id -> last N executions, newest last
	halfLife   float64
	window     int
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithHalfLife overrides the default half-life H (spec default 10).
func WithHalfLife(h float64) Option {
	return func(t *Tracker) { t.halfLife = h }
}

// WithWindow overrides the default recency window N (spec default 100).
func WithWindow(n int) Option {
	return func(t *Tracker) { t.window = n }
}

// New creates an empty Tracker. maxSkills bounds the number of distinct
// skill ids whose recent-window is kept resident (least-recently-used
// skills are evicted from the index, not from the append-only log).
func New(maxSkills int, opts ...Option) *Tracker {
	if maxSkills <= 0 {
		maxSkills = 1024
	}
	cache, _ := lru.New[string, []Execution](maxSkills)
	t := &Tracker{
		recent:   cache,
		halfLife: defaultHalfLife,
		window:   defaultWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record appends an execution to the log. Failures do not remove prior
// successes.
func (t *Tracker) Record(exec Execution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.executions = append(t.executions, exec)

	window, _ := t.recent.Get(exec.SkillID)
	window = append(window, exec)
	if len(window) > t.window {
		window = window[len(window)-t.window:]
	}
	t.recent.Add(exec.SkillID, window)
}

// HistoryForSkill returns all recorded executions for a skill, in record order.
func (t *Tracker) HistoryForSkill(skillID string) []Execution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Execution
	for _, e := range t.executions {
		if e.SkillID == skillID {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns the last n recorded executions across all skills.
func (t *Tracker) Recent(n int) []Execution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || n > len(t.executions) {
		n = len(t.executions)
	}
	out := make([]Execution, n)
	copy(out, t.executions[len(t.executions)-n:])
	return out
}

// ScoreOf returns the exponentially-weighted success rate over the last
// N executions of a skill, with half-life H: the most recent execution
// has weight 1, and weight halves every H executions back. Unseen skills
// default to 0.5 per spec.md §4.C.
func (t *Tracker) ScoreOf(skillID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window, ok := t.recent.Get(skillID)
	if !ok || len(window) == 0 {
		return 0.5
	}

	var weightedSuccess, totalWeight float64
	n := len(window)
	for i, exec := range window {
		age := float64(n - 1 - i) // 0 for most recent
		weight := math.Pow(0.5, age/t.halfLife)
		totalWeight += weight
		if exec.Succeeded() {
			weightedSuccess += weight
		}
	}
	if totalWeight == 0 {
		return 0.5
	}
	return weightedSuccess / totalWeight
}

// Seen reports whether any execution has ever been recorded for skillID.
func (t *Tracker) Seen(skillID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	window, ok := t.recent.Get(skillID)
	return ok && len(window) > 0
}

// FindByDigest looks up a successful execution of skillID with a matching
// InputDigest. Returns the most recent match. The Orchestrator's reuse
// check does not call it; it keeps its own output cache, since the
// Tracker stores digests only.
func (t *Tracker) FindByDigest(skillID, inputDigest string) (Execution, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.executions) - 1; i >= 0; i-- {
		e := t.executions[i]
		if e.SkillID == skillID && e.InputDigest == inputDigest && e.Status == StatusSuccess {
			return e, true
		}
	}
	return Execution{}, false
}
