package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/batchscribe/batchscribe/internal/config"
	"github.com/batchscribe/batchscribe/internal/server"
)

var (
	servePort   int
	serveDaemon bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run history over a local HTTP API",
	Long: `Start a local read-only HTTP API over the run history database.

Endpoints:
  GET /healthz
  GET /api/runs?limit=50&offset=0
  GET /api/runs/<id>/files
  GET /api/stats

Examples:
  batchscribe serve
  batchscribe serve --port 9090
  batchscribe serve --daemon`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	setupLogging()
	cfg := config.LoadOrDefault()

	port := servePort
	if port == 0 {
		port = cfg.Server.Port
	}

	if serveDaemon {
		if err := daemonize(port); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	db, err := server.NewHistoryDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Serving run history on http://localhost:%d\n", port)
	if err := server.NewServer(db).Run(port); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// daemonize re-executes the server in a detached process.
func daemonize(port int) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate binary: %w", err)
	}

	child := exec.Command(exe, "serve", "--port", fmt.Sprint(port))
	child.Stdout = nil
	child.Stderr = nil
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start background server: %w", err)
	}

	fmt.Printf("Server started in background (pid %d) on http://localhost:%d\n", child.Process.Pid, port)
	return child.Process.Release()
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config, 8080)")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "run the server in the background")
	rootCmd.AddCommand(serveCmd)
}
