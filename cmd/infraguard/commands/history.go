package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/infraguard/infraguard/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse saved validation reports",
		Long: `Browse reports recorded with "validate --save". Reports are stored in
a local SQLite database, newest first.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", defaultHistoryPath(), "history database path")

	cmd.AddCommand(newHistoryListCommand(&dbPath))
	cmd.AddCommand(newHistoryShowCommand(&dbPath))
	cmd.AddCommand(newHistoryPruneCommand(&dbPath))

	return cmd
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "infraguard-history.db"
	}
	return filepath.Join(home, ".infraguard", "history.db")
}

// openHistory opens an existing history database.
func openHistory(cmd *cobra.Command, path string) (*stores.SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no history database at %s (run validate --save first)", path)
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(cmd.Context()); err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func newHistoryListCommand(dbPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		Example: `  # Show the last 20 reports
  infraguard history list

  # Show more, as JSON
  infraguard history list --limit 100 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListReports(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tGENERATED\tDIRECTORY\tRESULT\tFAILED\tBLOCKING")
			for _, rec := range records {
				result := "FAIL"
				if rec.Passed {
					result = "PASS"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					rec.ID,
					rec.GeneratedAt.Format(time.RFC3339),
					rec.Directory,
					result,
					rec.FailedRules,
					rec.BlockingFailures,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports to list")

	return cmd
}

func newHistoryShowCommand(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show one saved report with its rule outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, results, err := store.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Report  *stores.ReportRecord       `json:"report"`
					Results []*stores.RuleResultRecord `json:"results"`
				}{rec, results})
			}

			result := "FAIL"
			if rec.Passed {
				result = "PASS"
			}
			fmt.Printf("Report %s (%s)\n", rec.ID, result)
			fmt.Printf("  Generated: %s\n", rec.GeneratedAt.Format(time.RFC3339))
			fmt.Printf("  Directory: %s\n", rec.Directory)
			fmt.Printf("  Policy:    %s\n", rec.PolicySource)
			fmt.Printf("  Rules:     %d total, %d failed, %d blocking\n\n",
				rec.TotalRules, rec.FailedRules, rec.BlockingFailures)

			for _, res := range results {
				if res.Passed && !verbose {
					continue
				}
				status := "PASS"
				if !res.Passed {
					status = "FAIL"
					if !res.Severity.Blocking() {
						status = "WARN"
					}
				}
				fmt.Printf("%s  %-28s %s\n", status, res.RuleID, res.Description)
				for _, diag := range res.Diagnostics {
					fmt.Printf("      - %s\n", diag.String())
				}
			}
			return nil
		},
	}

	return cmd
}

func newHistoryPruneCommand(dbPath *string) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete reports older than a cutoff",
		Example: `  # Drop everything older than 30 days
  infraguard history prune --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(cmd, *dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().Add(-olderThan)
			pruned, err := store.PruneOlderThan(cmd.Context(), cutoff)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d report(s) older than %s\n", pruned, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 720*time.Hour, "age cutoff for pruning")

	return cmd
}
