package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"recall/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default recall.yaml into the corpus directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(rootDir, "recall.yaml")
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		defaults := config.DefaultConfig()
		defaults.Corpus.Path = rootDir
		if err := defaults.Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
