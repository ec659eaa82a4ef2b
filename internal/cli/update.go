package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Re-index only changed notes",
	Long: `Bring both indexes up to date incrementally: notes whose modification
time is newer than the recorded index state are re-chunked, re-indexed
and re-embedded; notes that were deleted are pruned; notes queued by an
earlier provider failure are retried. Unchanged notes cost nothing.`,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.UpdateEmbeddings(cmd.Context(), cfg, newProgress("Updating"))
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	printResult("Update", result)
	return nil
}
