package gate_test

import (
	"testing"

	"github.com/loomwork/loom/internal/gate"
	"github.com/loomwork/loom/internal/registry"
	"github.com/stretchr/testify/assert"
)

func TestArtifactExists(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "artifact_exists", Blocking: true,
		Parameters: map[string]any{"output": "report"}}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"report": "done"},
	})
	assert.False(t, blocked)
	assert.True(t, results[0].Pass)

	results, blocked = e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{},
	})
	assert.True(t, blocked)
	assert.False(t, results[0].Pass)
}

func TestRegexMatch(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "regex_match", Blocking: true,
		Parameters: map[string]any{"output": "version", "pattern": `^\d+\.\d+\.\d+$`}}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"version": "1.2.3"},
	})
	assert.False(t, blocked)
	assert.True(t, results[0].Pass)

	results, blocked = e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"version": "not-a-version"},
	})
	assert.True(t, blocked)
	assert.False(t, results[0].Pass)
}

func TestCountThreshold(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "count_threshold", Blocking: false,
		Parameters: map[string]any{"output": "coverage", "threshold": 80.0}}

	results, _ := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"coverage": 92.0},
	})
	assert.True(t, results[0].Pass)

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"coverage": 40.0},
	})
	assert.False(t, results[0].Pass)
	assert.False(t, blocked, "non-blocking gate failure must not block the stage")
}

func TestCustomPredicate_Registered(t *testing.T) {
	e := gate.NewEvaluator()
	e.Register("has_tests", func(ctx gate.Context) bool {
		v, ok := ctx.Outputs["test_count"]
		n, _ := v.(int)
		return ok && n > 0
	})
	g := registry.QualityGateSpec{ID: "g1", Kind: "custom_predicate", Blocking: true,
		Parameters: map[string]any{"predicate": "has_tests"}}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Outputs: map[string]any{"test_count": 3},
	})
	assert.True(t, results[0].Pass)
	assert.False(t, blocked)
}

func TestCustomPredicate_UnregisteredFails(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "custom_predicate", Blocking: true,
		Parameters: map[string]any{"predicate": "nonexistent"}}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{})
	assert.True(t, blocked)
	assert.False(t, results[0].Pass)
}

func TestCustomPredicate_Expr(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "custom_predicate", Blocking: true,
		Parameters: map[string]any{"expr": "stage1.status == 'ok' and stage1.score >= 80"}}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Shared: map[string]any{
			"stage1": map[string]any{"status": "ok", "score": 95.0},
		},
	})
	assert.True(t, results[0].Pass)
	assert.False(t, blocked)

	results, blocked = e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{
		Shared: map[string]any{
			"stage1": map[string]any{"status": "failed", "score": 95.0},
		},
	})
	assert.False(t, results[0].Pass)
	assert.True(t, blocked)
}

func TestEvaluateStage_TotalEvenAfterFailure(t *testing.T) {
	e := gate.NewEvaluator()
	gates := []registry.QualityGateSpec{
		{ID: "g1", Kind: "artifact_exists", Blocking: true, Parameters: map[string]any{"output": "missing"}},
		{ID: "g2", Kind: "artifact_exists", Blocking: true, Parameters: map[string]any{"output": "present"}},
	}

	results, blocked := e.EvaluateStage(gates, gate.Context{
		Outputs: map[string]any{"present": "x"},
	})
	assert.True(t, blocked)
	assert.Len(t, results, 2, "every gate must be evaluated even after an earlier one fails")
	assert.False(t, results[0].Pass)
	assert.True(t, results[1].Pass)
}

func TestUnknownGateKind(t *testing.T) {
	e := gate.NewEvaluator()
	g := registry.QualityGateSpec{ID: "g1", Kind: "frobnicate", Blocking: true}

	results, blocked := e.EvaluateStage([]registry.QualityGateSpec{g}, gate.Context{})
	assert.True(t, blocked)
	assert.False(t, results[0].Pass)
}
