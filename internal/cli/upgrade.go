package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/batchscribe/batchscribe/internal/version"
)

const releaseSlug = "batchscribe/batchscribe"

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade batchscribe to the latest release",
	Long: `Check GitHub releases for a newer version and replace the current
binary in place.

Examples:
  batchscribe upgrade`,
	Run: runUpgrade,
}

func runUpgrade(cmd *cobra.Command, args []string) {
	setupLogging()
	ctx := context.Background()

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
		os.Exit(1)
	}
	if !found {
		fmt.Println("No release found for this platform.")
		return
	}

	if latest.LessOrEqual(version.Version) {
		fmt.Printf("Already up to date (v%s).\n", version.Version)
		return
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error locating current binary: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Updating v%s -> v%s...\n", version.Version, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		fmt.Fprintf(os.Stderr, "Error updating binary: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Updated to v%s.\n", latest.Version())
}

func init() {
	rootCmd.AddCommand(upgradeCmd)
}
