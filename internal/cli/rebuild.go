package cli

import (
	"fmt"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"recall/internal/domain"
	"recall/internal/usecase"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild {bm25|embeddings|all}",
	Short: "Rebuild an index from scratch",
	Long: `Rebuild the lexical index, the embedding store, or both.

The lexical rebuild happens in a shadow copy and swaps in atomically,
so queries keep working on the old index until it completes.

Examples:
  recall rebuild bm25
  recall rebuild embeddings
  recall rebuild all`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"bm25", "embeddings", "all"},
	RunE:      runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	target := args[0]
	switch target {
	case "bm25", "embeddings", "all":
	default:
		return fmt.Errorf("unknown rebuild target %q (want bm25, embeddings, or all)", target)
	}

	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if target == "bm25" || target == "all" {
		fmt.Printf("Rebuilding lexical index for %s...\n", cfg.Corpus.Path)
		result, err := engine.RebuildBM25(cmd.Context(), cfg, newProgress("Indexing"))
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		printResult("Lexical rebuild", result)
	}

	if target == "embeddings" || target == "all" {
		if !cfg.Embedding.Enabled {
			if target == "embeddings" {
				return fmt.Errorf("embeddings are disabled in the config")
			}
			return nil
		}
		fmt.Printf("Rebuilding embeddings with %s/%s...\n", cfg.Embedding.Provider, cfg.Embedding.Model)
		result, err := engine.RebuildEmbeddings(cmd.Context(), cfg, newProgress("Embedding"))
		if err != nil {
			return fmt.Errorf("rebuild failed: %w", err)
		}
		printResult("Embedding rebuild", result)
	}

	return nil
}

// newProgress returns a progress callback backed by a terminal bar,
// created lazily once the total is known.
func newProgress(label string) usecase.ProgressFunc {
	var (
		mu    sync.Mutex
		bar   *progressbar.ProgressBar
		start time.Time
	)
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			start = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", label)),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Set(done)

		if done > 0 && done < total {
			rate := float64(done) / time.Since(start).Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, eta.Round(time.Second)))
			}
		}
	}
}

func printResult(label string, result *domain.MaintenanceResult) {
	fmt.Printf("\n%s complete:\n", label)
	fmt.Printf("  Documents indexed: %d\n", result.DocsIndexed)
	if result.DocsSkipped > 0 {
		fmt.Printf("  Documents skipped: %d (unchanged)\n", result.DocsSkipped)
	}
	if result.DocsPruned > 0 {
		fmt.Printf("  Documents pruned:  %d (removed)\n", result.DocsPruned)
	}
	if result.ChunksIndexed > 0 {
		fmt.Printf("  Chunks indexed:    %d\n", result.ChunksIndexed)
	}
	if result.VectorsWritten > 0 {
		fmt.Printf("  Vectors written:   %d\n", result.VectorsWritten)
	}
	if len(result.FailedDocs) > 0 {
		fmt.Printf("\nWarnings: %d document(s) could not be embedded and will be retried:\n", len(result.FailedDocs))
		for _, id := range result.FailedDocs {
			fmt.Printf("  - %s\n", id)
		}
	}
}
