package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed notes",
	Long: `Search the corpus with hybrid BM25 + semantic retrieval.

Examples:
  recall query -q "quarterly budget review"
  recall query -q "standup notes" --top-k 5 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if queryTopK > 0 {
		cfg.Fusion.FinalTopK = queryTopK
	}

	engine, _, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Retrieve(cmd.Context(), queryText, cfg)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Printf("--- [%d] %s (%s) fused: %.3f  bm25: %.2f  cos: %.2f ---\n",
			i+1, r.ParentTitle, r.ChunkID, r.FusedScore, r.LexicalScore, r.SemanticScore)
		text := r.Content
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}
	return nil
}
