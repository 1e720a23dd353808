package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// versionInfo holds build-time version metadata, set via SetVersion.
type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App represents the CLI application with all wired dependencies.
type App struct {
	rootCmd *cobra.Command

	verbose  bool
	debug    bool
	cancel   context.CancelFunc
	shutdown chan struct{}

	versionInfo versionInfo
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		shutdown: make(chan struct{}),
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = versionInfo{Version: version, Commit: commit, Date: date}
}

// setupRootCmd configures the root Cobra command.
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "pabot",
		Short: "Parallel test execution orchestrator",
		Long: `pabot splits a Robot Framework (or compatible) test suite across N
worker subprocesses, coordinates them through an in-memory lock/value-set
server, and merges their per-worker output into a single report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")
	a.rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false,
		"Enable debug logging")

	a.rootCmd.AddCommand(NewRunCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}
