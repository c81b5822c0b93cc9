package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/sinkhorn/internal/store"
	"github.com/spf13/cobra"
)

var (
	resultsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored balancing results",
	Long: `Manage persisted balancing runs including listing and cleaning old results.
Each run stores the scale vectors, convergence metadata, and the residual trace.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored results",
	Long:  `Display all stored runs with metadata including run ID, timestamp, matrix size, iterations, and residual.`,
	RunE:  runListResults,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old results",
	Long: `Delete old results based on retention policy.
You can specify how many runs to keep or delete runs older than N days.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "./data", "Base directory for result storage")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tSIZE\tITERATIONS\tRESIDUAL\tCONVERGED\tDISK")
	fmt.Fprintln(w, "------\t---------\t----\t----------\t--------\t---------\t----")

	for _, info := range infos {
		runDir := filepath.Join(resultsDataDir, "runs", info.RunID)
		size, err := getDirSize(runDir)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		timestamp := info.Timestamp.Format("2006-01-02 15:04:05")

		displayID := info.RunID
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%.3g\t%t\t%s\n",
			displayID,
			timestamp,
			info.Size,
			info.Size,
			info.Iterations,
			info.Residual,
			info.Converged,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Printf("\nTotal runs: %d\n", len(infos))
	return nil
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	resultStore, err := store.NewFSStore(resultsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}

	infos, err := resultStore.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list results: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No results to clean.")
		return nil
	}

	toDelete := selectRecordsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Println("No results match deletion criteria.")
		return nil
	}

	fmt.Printf("Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		displayID := info.RunID
		if len(displayID) > 12 {
			displayID = displayID[:12] + "..."
		}
		fmt.Printf("  - %s (%dx%d, %s)\n",
			displayID,
			info.Size,
			info.Size,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Print("\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		err := resultStore.DeleteRecord(info.RunID)
		if err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Printf("\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRecordsForDeletion determines which runs should be deleted based on
// the retention policy. Age-based and count-based criteria are combined.
func selectRecordsForDeletion(infos []store.RecordInfo, keepLast int, olderThanDays int) []store.RecordInfo {
	var toDelete []store.RecordInfo

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RecordInfo, len(infos))
		copy(sorted, infos)

		// Sort by timestamp, oldest first.
		for i := 0; i < len(sorted)-1; i++ {
			for j := 0; j < len(sorted)-i-1; j++ {
				if sorted[j].Timestamp.After(sorted[j+1].Timestamp) {
					sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
				}
			}
		}

		numToDelete := len(sorted) - keepLast
		for i := 0; i < numToDelete; i++ {
			found := false
			for _, existing := range toDelete {
				if existing.RunID == sorted[i].RunID {
					found = true
					break
				}
			}
			if !found {
				toDelete = append(toDelete, sorted[i])
			}
		}
	}

	return toDelete
}

// getDirSize calculates the total size of a directory.
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
