package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/batchscribe/batchscribe/internal/server"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent transcription runs",
	Long: `List recent batch runs recorded in the local history database.

Examples:
  batchscribe history
  batchscribe history -n 5
  batchscribe history files <run-id>
  batchscribe history clear`,
	Run: runHistory,
}

var historyFilesCmd = &cobra.Command{
	Use:   "files <run-id>",
	Short: "Show the per-file outcomes of a run",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryFiles,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all run history",
	Run:   runHistoryClear,
}

func openHistory() *server.HistoryDB {
	db, err := server.NewHistoryDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return db
}

func runHistory(cmd *cobra.Command, args []string) {
	setupLogging()
	db := openHistory()
	defer db.Close()

	runs, total, err := db.GetRuns(historyLimit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if total == 0 {
		fmt.Println("No runs recorded yet.")
		return
	}

	fmt.Printf("Recent runs (%d of %d):\n\n", len(runs), total)
	for _, r := range runs {
		when := time.Unix(r.CompletedAt, 0).Format("2006-01-02 15:04")
		fmt.Printf("  %s  %s\n", r.ID[:8], when)
		fmt.Printf("    %s -> %s (%s, %s)\n", r.Input, r.Output, r.Model, r.Format)
		if r.Error != "" {
			color.Red("    aborted: %s", r.Error)
		} else if r.Failed > 0 {
			color.Yellow("    %d/%d succeeded, %d failed", r.Succeeded, r.Total, r.Failed)
		} else {
			color.Green("    %d/%d succeeded", r.Succeeded, r.Total)
		}
		fmt.Println()
	}
	fmt.Println("Per-file details: batchscribe history files <run-id>")
}

func runHistoryFiles(cmd *cobra.Command, args []string) {
	setupLogging()
	db := openHistory()
	defer db.Close()

	// Accept the 8-char prefix shown by `history`.
	runs, _, err := db.GetRuns(500, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	runID := args[0]
	for _, r := range runs {
		if r.ID == runID || (len(runID) >= 8 && len(r.ID) >= len(runID) && r.ID[:len(runID)] == runID) {
			runID = r.ID
			break
		}
	}

	files, err := db.GetRunFiles(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No files recorded for run %s.\n", args[0])
		return
	}

	for _, f := range files {
		if f.Success {
			fmt.Printf("  %s %s\n", color.GreenString("ok"), f.Path)
		} else {
			fmt.Printf("  %s %s\n      %s\n", color.RedString("fail"), f.Path, f.Error)
		}
	}
}

func runHistoryClear(cmd *cobra.Command, args []string) {
	setupLogging()
	db := openHistory()
	defer db.Close()

	n, err := db.ClearHistory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleared %d run(s).\n", n)
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	historyCmd.AddCommand(historyFilesCmd)
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
