package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeflow/internal/observability"
	"codeflow/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API",
	Long: `Start the HTTP server. Each GET /analyze/{repo_name} request analyzes
the repository under the configured base path and returns the JSON report.

Examples:
  codeflow serve
  codeflow serve --addr :9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	p, err := buildPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	health := server.NewHealth(Version)
	health.RegisterCheck("llm", server.LLMCheck(p.llm.ProviderName(), p.llm.ModelName()))
	health.RegisterCheck("repositories", server.DirectoryCheck(func() error {
		info, err := os.Stat(cfg.Repository.BasePath)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", cfg.Repository.BasePath)
		}
		return nil
	}))

	srv := server.New(p.analyzer, historyOrNil(p), health, cfg.Server, logger)
	return srv.Start(ctx)
}
