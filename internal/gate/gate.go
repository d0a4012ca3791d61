// Package gate evaluates a stage's declared quality gates against
// produced artifacts and state. See spec.md §4.E.
package gate

import (
	"fmt"
	"regexp"

	"github.com/loomwork/loom/internal/registry"
)

// Result is the outcome of evaluating a single gate.
type Result struct {
	GateID   string
	Kind     string
	Blocking bool
	Pass     bool
	Finding  string
}

// Predicate is a registered custom_predicate function. Context carries
// the stage's produced outputs and shared context, mirroring AgentContext.
type Predicate func(ctx Context) bool

// Context is what a custom predicate or expression is evaluated against.
type Context struct {
	Outputs map[string]any
	Shared  map[string]any
}

// Evaluator evaluates QualityGateSpecs. Evaluation is total: every gate
// is evaluated even after an earlier one fails, in declaration order, so
// the findings list is complete (spec.md §4.E, §5).
type Evaluator struct {
	predicates map[string]Predicate
}

// NewEvaluator creates an Evaluator with no predicates registered.
func NewEvaluator() *Evaluator {
	return &Evaluator{predicates: make(map[string]Predicate)}
}

// Register binds a custom_predicate id to a Go function. The Registry
// rejects any stage referencing an unregistered predicate at load time
// (spec.md §8 boundary behavior), so by the time Evaluate runs, every
// name it's asked for should already be registered.
func (e *Evaluator) Register(id string, fn Predicate) {
	e.predicates[id] = fn
}

// EvaluateStage runs every gate on a stage in declaration order and
// returns the complete result set plus whether any blocking gate failed.
func (e *Evaluator) EvaluateStage(gates []registry.QualityGateSpec, ctx Context) ([]Result, bool) {
	results := make([]Result, 0, len(gates))
	blockingFailed := false

	for _, g := range gates {
		pass, finding := e.evaluateOne(g, ctx)
		results = append(results, Result{
			GateID:   g.ID,
			Kind:     g.Kind,
			Blocking: g.Blocking,
			Pass:     pass,
			Finding:  finding,
		})
		if !pass && g.Blocking {
			blockingFailed = true
		}
	}
	return results, blockingFailed
}

func (e *Evaluator) evaluateOne(g registry.QualityGateSpec, ctx Context) (bool, string) {
	switch g.Kind {
	case "artifact_exists":
		return e.artifactExists(g, ctx)
	case "regex_match":
		return e.regexMatch(g, ctx)
	case "count_threshold":
		return e.countThreshold(g, ctx)
	case "custom_predicate":
		return e.customPredicate(g, ctx)
	default:
		return false, fmt.Sprintf("unknown gate kind %q", g.Kind)
	}
}

func (e *Evaluator) artifactExists(g registry.QualityGateSpec, ctx Context) (bool, string) {
	name, _ := g.Parameters["output"].(string)
	val, ok := ctx.Outputs[name]
	if !ok || isEmpty(val) {
		return false, fmt.Sprintf("artifact_exists(%s) failed", name)
	}
	return true, ""
}

func (e *Evaluator) regexMatch(g registry.QualityGateSpec, ctx Context) (bool, string) {
	name, _ := g.Parameters["output"].(string)
	pattern, _ := g.Parameters["pattern"].(string)
	val, ok := ctx.Outputs[name]
	if !ok {
		return false, fmt.Sprintf("regex_match(%s) failed: output missing", name)
	}
	s := fmt.Sprint(val)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("regex_match(%s) failed: invalid pattern: %v", name, err)
	}
	if !re.MatchString(s) {
		return false, fmt.Sprintf("regex_match(%s) failed: %q does not match %q", name, s, pattern)
	}
	return true, ""
}

func (e *Evaluator) countThreshold(g registry.QualityGateSpec, ctx Context) (bool, string) {
	name, _ := g.Parameters["output"].(string)
	threshold, _ := toFloat(g.Parameters["threshold"])
	val, ok := ctx.Outputs[name]
	if !ok {
		return false, fmt.Sprintf("count_threshold(%s) failed: output missing", name)
	}
	n, ok := toFloat(val)
	if !ok {
		return false, fmt.Sprintf("count_threshold(%s) failed: output is not numeric", name)
	}
	if n < threshold {
		return false, fmt.Sprintf("count_threshold(%s) failed: %v < %v", name, n, threshold)
	}
	return true, ""
}

func (e *Evaluator) customPredicate(g registry.QualityGateSpec, ctx Context) (bool, string) {
	// A declarative "expr" parameter is evaluated directly by the
	// condition grammar (spec.md §9); a "predicate" parameter names a
	// Go function registered by the embedding application. Exactly one
	// is expected per gate.
	if expr, ok := g.Parameters["expr"].(string); ok {
		ce := NewConditionEvaluator(stepOutputsFrom(ctx), ctx.Outputs)
		if !ce.Evaluate(expr) {
			return false, fmt.Sprintf("custom_predicate expr %q failed", expr)
		}
		return true, ""
	}

	name, _ := g.Parameters["predicate"].(string)
	fn, ok := e.predicates[name]
	if !ok {
		return false, fmt.Sprintf("custom_predicate(%s) failed: not registered", name)
	}
	if !fn(ctx) {
		return false, fmt.Sprintf("custom_predicate(%s) failed", name)
	}
	return true, ""
}

// stepOutputsFrom adapts a gate Context's shared context into the
// step-keyed map the condition grammar reads for <key>.<field>
// references: only Shared entries whose value is itself a map are kept,
// each under its own key. The Orchestrator shares each declared stage
// output under the output's own name, so an output is visible here only
// when its value is a map.
func stepOutputsFrom(ctx Context) map[string]map[string]any {
	out := make(map[string]map[string]any, len(ctx.Shared))
	for k, v := range ctx.Shared {
		if m, ok := v.(map[string]any); ok {
			out[k] = m
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
