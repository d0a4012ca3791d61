package cli

import (
	"fmt"

	"github.com/loomwork/loom/internal/config"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch the project directory and report when workflow/skill/role files change",
	Long: `watch is a convenience command for iterating on a project: it does
not reload or re-run anything itself, it only reports that a change
happened so the caller can decide what to do (most commonly: re-run
"loom run").`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	watcher, err := config.NewWatcher(projectDir, config.DefaultWatchDebounce)
	if err != nil {
		return newExitError(ExitConfigError, err)
	}
	defer watcher.Close()

	ctx, cancel := cancellableContext()
	defer cancel()

	changes := watcher.Start(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s for changes (ctrl-c to stop)\n", projectDir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "change detected")
		}
	}
}
