package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics and health",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	st, err := engine.Status(cfg)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	fmt.Printf("Corpus: %s (%s)\n\n", cfg.Corpus.ID, cfg.Corpus.Path)
	fmt.Printf("Lexical index:\n")
	fmt.Printf("  Documents:       %d\n", st.Stats.TotalDocs)
	fmt.Printf("  Chunks:          %d\n", st.Stats.TotalChunks)
	fmt.Printf("  Avg chunk len:   %.1f tokens\n", st.Stats.AvgChunkLen)
	fmt.Printf("  Schema version:  %d (config %s)\n", st.SchemaVersion, st.ConfigHash)
	if !st.Stats.IndexedAt.IsZero() {
		fmt.Printf("  Last indexed:    %s\n", st.Stats.IndexedAt.Format("2006-01-02 15:04:05"))
	}
	if st.NeedsRebuild {
		fmt.Printf("  NEEDS REBUILD:   %s\n", st.RebuildReason)
	}

	if cfg.Embedding.Enabled {
		fmt.Printf("\nEmbeddings (%s/%s, dim %d):\n",
			cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimension)
		if st.VectorsStale {
			fmt.Printf("  NEEDS REBUILD:   stored dimension differs; run 'recall rebuild embeddings'\n")
		} else {
			fmt.Printf("  Vectors:         %d\n", st.VectorCount)
			fmt.Printf("  Pending retries: %d\n", len(st.PendingDocs))
			for _, id := range st.PendingDocs {
				fmt.Printf("    - %s\n", id)
			}
		}
	} else {
		fmt.Printf("\nEmbeddings: disabled\n")
	}
	return nil
}
