package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"time"

	"codeflow/internal/domain"
	"codeflow/internal/observability"
	"codeflow/internal/usecase"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	analyzeJSON bool
	analyzeOut  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path|repo>",
	Short: "Analyze a repository once",
	Long: `Run the full analysis pipeline for one repository and print the report.
The argument is either a directory or a repository name under the
configured base path.

Examples:
  codeflow analyze ./my-project
  codeflow analyze my-project --json
  codeflow analyze my-project --out report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the raw JSON report")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write the JSON report to a file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tp, err := observability.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	p, err := buildPipeline(cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	uc := p.analyzer.WithProgress(newProgressReporter())

	target := args[0]
	var analysis *domain.Analysis
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		abs, err := filepath.Abs(target)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Analyzing %s...\n", abs)
		analysis, err = uc.AnalyzePath(ctx, filepath.Base(abs), abs)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Analyzing %s...\n", cfg.RepoPath(target))
		analysis, err = uc.Analyze(ctx, target)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, analysis.Raw, "", "  "); err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	pretty.WriteByte('\n')

	if analyzeOut != "" {
		if err := os.WriteFile(analyzeOut, pretty.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", analyzeOut)
	}

	if analyzeJSON || analysis.Report == nil {
		if analyzeOut == "" {
			os.Stdout.Write(pretty.Bytes())
		}
		return nil
	}

	printReport(analysis)
	return nil
}

// newProgressReporter shows a bar for the embedding stage and a line for
// each other stage.
func newProgressReporter() usecase.ProgressFunc {
	var (
		mu        sync.Mutex
		bar       *progressbar.ProgressBar
		lastStage string
	)

	return func(stage string, done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if stage == usecase.StageEmbed {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionEnableColorCodes(true),
					progressbar.OptionShowBytes(false),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
					progressbar.OptionSetTheme(progressbar.Theme{
						Saucer:        "[green]=[reset]",
						SaucerHead:    "[green]>[reset]",
						SaucerPadding: " ",
						BarStart:      "[",
						BarEnd:        "]",
					}),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(os.Stderr)
					}),
				)
			}
			bar.Set(done)
			return
		}

		if stage != lastStage && done == total {
			lastStage = stage
			switch stage {
			case usecase.StageCollect:
				fmt.Fprintf(os.Stderr, "  Files collected:  %d\n", total)
			case usecase.StageChunk:
				fmt.Fprintf(os.Stderr, "  Files chunked:    %d\n", total)
			case usecase.StageIndex:
				fmt.Fprintf(os.Stderr, "  Vectors indexed:  %d\n", total)
			case usecase.StageRetrieve:
				fmt.Fprintf(os.Stderr, "  Chunks retrieved: %d\n", total)
			case usecase.StageGenerate:
				fmt.Fprintln(os.Stderr, "  Response generated")
			}
		}
	}
}

func printReport(a *domain.Analysis) {
	r := a.Report

	fmt.Printf("Analysis of %s (%s, %s)\n\n", a.Repo, a.Model, formatDuration(a.Stats.Duration))
	fmt.Printf("Summary:\n  %s\n", r.Summary)

	if len(r.Redundancy) > 0 {
		fmt.Printf("\nRedundancy:\n")
		for _, f := range r.Redundancy {
			fmt.Printf("  - %s\n", f.Description)
			for _, file := range f.Files {
				fmt.Printf("      %s\n", file)
			}
		}
	}

	if len(r.LogicalErrors) > 0 {
		fmt.Printf("\nLogical errors:\n")
		for _, f := range r.LogicalErrors {
			fmt.Printf("  - [%s] %s\n", f.File, f.Description)
		}
	}

	if len(r.SyntaxErrors) > 0 {
		fmt.Printf("\nSyntax errors:\n")
		for _, f := range r.SyntaxErrors {
			fmt.Printf("  - %s\n", f.Description)
			for _, file := range f.Files {
				fmt.Printf("      %s\n", file)
			}
		}
	}

	if len(r.Improvements) > 0 {
		fmt.Printf("\nImprovements:\n")
		for _, imp := range r.Improvements {
			fmt.Printf("  - %s\n", imp.Description)
			if imp.Suggestion != "" {
				fmt.Printf("    Suggestion: %s\n", imp.Suggestion)
			}
		}
	}

	fmt.Printf("\nFiles: %d  Chunks: %d  Retrieved: %d\n", a.Stats.Files, a.Stats.Chunks, a.Stats.Retrieved)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
