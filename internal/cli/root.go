package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"newsrag/config"
	"newsrag/internal/app"
	"newsrag/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	debug   bool
	log     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "newsrag",
	Short: "News RAG - retrieval-augmented answers over a news archive",
	Long: `newsrag turns collected news articles into a searchable vector index and
answers questions about current events with sourced summaries.

Example usage:
  newsrag ingest ./articles          # Import, clean and chunk articles
  newsrag embed                      # Embed chunks without vectors
  newsrag index                      # Rebuild the vector index
  newsrag ask -q "What's new in renewable energy?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		// .env is optional
		_ = godotenv.Load(filepath.Join(rootDir, ".env"))

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if debug {
			level = "debug"
		}
		log = logger.FromConfig(level, cfg.Logging.Format)

		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./newsrag.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// openApp wires the configured adapters. With loadIndex set the persisted
// index must be present and readable.
func openApp(loadIndex bool) (*app.App, error) {
	a, err := app.New(GetConfig(), GetRootDir(), log)
	if err != nil {
		return nil, err
	}
	if loadIndex {
		if err := a.LoadIndex(); err != nil {
			a.Close()
			return nil, fmt.Errorf("no usable index, run 'newsrag index' first: %w", err)
		}
	}
	return a, nil
}
