package cli

import (
	"context"
	"errors"

	"github.com/loomwork/loom/internal/workflow"
)

// Exit codes per spec.md §6's "Observable engine API."
const (
	ExitSuccess       = 0
	ExitBlockedByGate = 1
	ExitTaskFailure   = 2
	ExitConfigError   = 3
	ExitCancelled     = 4
	ExitInternalError = 5
)

// exitError pins a specific exit code to an error, for failure paths the
// generic classification in exitCodeFor can't infer purely from the
// error's type (a config.Load failure is a wrapped I/O or YAML error and
// a registry.New validation failure is a *registry.ConfigError; neither
// carries an exit code of its own, but both map to ExitConfigError).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor classifies an error returned from Execute into one of
// spec.md §6's five non-zero exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}
	return ExitInternalError
}

// classifyRunFailure inspects the final ExecutionState after a failed
// WfAuto call to decide whether the run stopped on a task execution
// failure (the "execution_error" finding Complete synthesizes when the
// Orchestrator itself returns an error for a stage) or a failed quality
// gate.
func classifyRunFailure(state workflow.ExecutionState) int {
	for _, findings := range state.Findings {
		for _, f := range findings {
			if f.Kind == "execution_error" {
				return ExitTaskFailure
			}
		}
	}
	for _, status := range state.StageStatus {
		if status == workflow.StatusBlocked {
			return ExitBlockedByGate
		}
	}
	return ExitInternalError
}
