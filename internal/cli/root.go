package cli

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"

	"codeflow/config"
	"codeflow/internal/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "codeflow",
	Short: "Codeflow - Retrieval-augmented code review for local repositories",
	Long: `Codeflow collects the source files of a repository, indexes them with
embeddings, retrieves the most relevant chunks and asks a chat model for a
structured review covering redundancy, logical errors, syntax errors and
improvements.

Example usage:
  codeflow serve                 # Serve GET /analyze/{repo_name}
  codeflow analyze ./my-project  # Analyze one repository and print the report
  codeflow history my-project    # Show past analyses`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if err := godotenv.Load(); err != nil && !errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg.ApplyEnv()

		if err := cfg.Validate(); err != nil {
			return err
		}

		logger = observability.NewLogger(cfg.Logging, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./codeflow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "working directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
