package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"codeflow/internal/adapter/store"
	"codeflow/internal/port"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyJSON   bool
	historyDelete bool
	historyClear  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [repo]",
	Short: "Show past analyses",
	Long: `List stored analyses for a repository, newest first. Without a
repository name, list every repository that has history.

Examples:
  codeflow history
  codeflow history my-project --limit 5
  codeflow history my-project --delete
  codeflow history --clear`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of records to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "delete the repository's history")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete the history of every repository")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in config")
	}

	dbPath := cfg.HistoryDBPath(GetRootDir())
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no history found. Run 'codeflow analyze' first")
	}

	st, err := store.NewHistoryStore(dbPath, cfg.History.MaxPerRepo)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer st.Close()

	if historyClear {
		if len(args) > 0 {
			return fmt.Errorf("--clear takes no repository; use --delete for one")
		}
		if err := st.Clear(); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		fmt.Println("Cleared all history")
		return nil
	}

	if len(args) == 0 {
		repos, err := st.Repos()
		if err != nil {
			return fmt.Errorf("failed to list repositories: %w", err)
		}
		if historyJSON {
			return printJSON(repos)
		}
		if len(repos) == 0 {
			fmt.Println("No analyses recorded.")
			return nil
		}
		for _, r := range repos {
			fmt.Println(r)
		}
		return nil
	}

	repo := args[0]
	if historyDelete {
		if err := st.Delete(repo); err != nil {
			return fmt.Errorf("failed to delete history: %w", err)
		}
		fmt.Printf("Deleted history for %s\n", repo)
		return nil
	}

	records, err := st.List(repo, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}
	if historyJSON {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Printf("No analyses recorded for %s.\n", repo)
		return nil
	}

	fmt.Printf("Analyses for %s:\n\n", repo)
	for _, r := range records {
		fmt.Printf("  #%-4d %s  %-20s files=%d chunks=%d took %s\n",
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Model,
			r.Stats.Files,
			r.Stats.Chunks,
			formatDuration(r.Stats.Duration),
		)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// historyOrNil keeps a disabled store from becoming a non-nil interface.
func historyOrNil(p *pipeline) port.HistoryStore {
	if p.history == nil {
		return nil
	}
	return p.history
}
