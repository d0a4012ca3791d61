// Package cli wires the engine packages (registry, orchestrator,
// workflow, checkpoint, config, eventsink) into the thin CLI surface
// spec.md §6 describes as out of scope for the core but necessary to
// drive it: `loom run`, `loom resume`, `loom checkpoint list`, `loom
// watch`. Grounded on cmd/root.go's package-level *cobra.Command +
// init()-registration idiom.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "loom runs multi-agent workflows described by a project directory",
	Long: `loom loads roles, skills, and a workflow DAG from a project
directory and drives them through the engine: Orchestrator, Workflow
Executor, Checkpoint Manager.`,
	SilenceUsage: true,
}

var projectDir string

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "d", ".", "project directory containing workflow.yaml, roles.yaml, skills.yaml")
}

// Execute runs the CLI, returning the process exit code per spec.md §6:
// 0 success, 1 blocked by gate, 2 task failure, 3 configuration error,
// 4 cancelled, 5 internal error.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return exitCodeFor(err)
	}
	return 0
}
