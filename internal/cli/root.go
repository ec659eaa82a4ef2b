package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"recall/config"
	"recall/internal/adapter/embedding"
	"recall/internal/adapter/source"
	"recall/internal/port"
	"recall/internal/usecase"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Hybrid lexical/semantic retrieval over a notes corpus",
	Long: `Recall indexes a directory of notes with BM25 for lexical retrieval and
optional embeddings for semantic retrieval, then fuses both rankings
into one result list.

Example usage:
  recall rebuild all             # Build both indexes from scratch
  recall query -q "meeting notes about budget"
  recall update                  # Re-index only changed notes
  recall watch                   # Index notes as they are saved`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Corpus.Path == "" {
			cfg.Corpus.Path = rootDir
		}

		level, err := log.ParseLevel(cfg.Logging.Level)
		if err != nil {
			level = log.InfoLevel
		}
		logger = log.NewWithOptions(os.Stderr, log.Options{
			Level:           level,
			ReportTimestamp: true,
		})

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./recall.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "notes directory (default is current directory)")
}

// newEngine assembles the engine for the loaded config. The caller
// owns the returned engine and must Close it.
func newEngine() (*usecase.Engine, *source.NotesSource, error) {
	src := source.NewNotesSource(cfg.Corpus.Path, cfg.Corpus.Includes, cfg.Corpus.Excludes)

	var embedder port.Embedder
	if cfg.Embedding.Enabled {
		var err error
		embedder, err = embedding.NewFromConfig(cfg.Embedding)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	engine, err := usecase.NewEngine(cfg, src, embedder, logger)
	if err != nil {
		return nil, nil, err
	}
	return engine, src, nil
}
