package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <checkpoint-id>",
	Short: "restore a checkpoint and continue running the workflow to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(projectDir)
	if err != nil {
		return newExitError(ExitConfigError, err)
	}
	defer eng.sink.Close()

	snapshot, err := eng.checkpoints.Restore(args[0])
	if err != nil {
		return newExitError(ExitConfigError, err)
	}
	eng.exec.Restore(snapshot.ExecutionState)

	ctx, cancel := cancellableContext()
	defer cancel()

	runErr := eng.exec.WfAuto(ctx)
	if runErr == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return newExitError(ExitCancelled, runErr)
	}

	code := classifyRunFailure(eng.exec.State())
	return newExitError(code, runErr)
}
