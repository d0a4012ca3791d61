package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "inspect saved checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "list saved checkpoints for the project's workflow",
	RunE:  runCheckpointList,
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	rootCmd.AddCommand(checkpointCmd)
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine(projectDir)
	if err != nil {
		return newExitError(ExitConfigError, err)
	}
	defer eng.sink.Close()

	infos, err := eng.checkpoints.List()
	if err != nil {
		return newExitError(ExitInternalError, err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints found")
		return nil
	}
	for _, info := range infos {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.CheckpointID, info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
