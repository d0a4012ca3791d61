package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/loomwork/loom/internal/gate"
	"github.com/loomwork/loom/internal/workflow"
	"github.com/stretchr/testify/assert"
)

func TestExitCodeForNil(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCodeFor(nil))
}

func TestExitCodeForExitError(t *testing.T) {
	err := newExitError(ExitConfigError, errors.New("bad config"))
	assert.Equal(t, ExitConfigError, exitCodeFor(err))
}

func TestExitCodeForCancelled(t *testing.T) {
	assert.Equal(t, ExitCancelled, exitCodeFor(context.Canceled))
}

func TestExitCodeForUnknownIsInternalError(t *testing.T) {
	assert.Equal(t, ExitInternalError, exitCodeFor(errors.New("boom")))
}

func TestNewExitErrorNilPassthrough(t *testing.T) {
	assert.NoError(t, newExitError(ExitConfigError, nil))
}

func TestClassifyRunFailureTaskFailureTakesPriority(t *testing.T) {
	state := workflow.ExecutionState{
		StageStatus: map[string]workflow.Status{
			"s1": workflow.StatusBlocked,
		},
		Findings: map[string][]gate.Result{
			"s1": {{Kind: "execution_error", Pass: false}},
		},
	}
	assert.Equal(t, ExitTaskFailure, classifyRunFailure(state))
}

func TestClassifyRunFailureBlockedByGate(t *testing.T) {
	state := workflow.ExecutionState{
		StageStatus: map[string]workflow.Status{
			"s1": workflow.StatusBlocked,
		},
		Findings: map[string][]gate.Result{
			"s1": {{Kind: "artifact_exists", Pass: false}},
		},
	}
	assert.Equal(t, ExitBlockedByGate, classifyRunFailure(state))
}

func TestClassifyRunFailureFallsBackToInternalError(t *testing.T) {
	state := workflow.ExecutionState{
		StageStatus: map[string]workflow.Status{
			"s1": workflow.StatusInProgress,
		},
	}
	assert.Equal(t, ExitInternalError, classifyRunFailure(state))
}
