package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"recall/config"
	"recall/internal/usecase"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index notes as they are saved",
	Long: `Watch the notes directory and keep the indexes current: every save
re-chunks, re-indexes and re-embeds that note before moving on, and
deletions prune it from both indexes. A note whose embedding call fails
stays searchable lexically and is retried on the next update.

Requires embedding.mode to be "automatic" in the config.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if cfg.Embedding.Mode != config.ModeAutomatic {
		return fmt.Errorf("watch requires embedding.mode %q, got %q",
			config.ModeAutomatic, cfg.Embedding.Mode)
	}

	engine, src, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (ctrl-c to stop)...\n", cfg.Corpus.Path)
	if err := usecase.NewWatcher(engine, src, cfg).Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
