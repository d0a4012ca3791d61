package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the workflow described by the project directory to completion",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// cancellableContext installs a signal.Notify-based interrupt handler
// rather than signal.NotifyContext, matching cmd/index.go's pattern of a
// dedicated goroutine calling cancel() on SIGINT/SIGTERM.
func cancellableContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(projectDir)
	if err != nil {
		return newExitError(ExitConfigError, err)
	}
	defer eng.sink.Close()

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
