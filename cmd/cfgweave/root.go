// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cfgweave/cfgweave/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the persistent flags of the root command.
type rootFlags struct {
	settingsPath string
	verbose      bool
	demo         bool
}

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "cfgweave",
		Short: "Aggregate configuration from plugin directory trees",
		Long: TitleStyle.Render("cfgweave") + SubtitleStyle.Render(" - configuration aggregation for plugin trees") + `

cfgweave discovers handler and config types below the root locations of
its settings file, orders them by their override and dependency rules and
executes them into one hierarchical configuration tree.

` + SubtitleStyle.Render("Examples:") + `
  cfgweave --demo load          Load the embedded demo plugin tree
  cfgweave dump --format yaml   Print the configuration as YAML
  cfgweave get shop.db.host     Query a single value
  cfgweave settings init        Create a settings file`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.flags.settingsPath, "settings", "", "settings file (default ./cfgweave.cue, then the user settings directory)")
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "log discovery decisions and show full error chains")
	flags.BoolVar(&app.flags.demo, "demo", false, "use the embedded demo plugin tree")

	root.AddCommand(
		newLoadCommand(app),
		newDumpCommand(app),
		newGetCommand(app),
		newScanCommand(app),
		newCacheCommand(app),
		newWatchCommand(app),
		newSettingsCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// list their suggestions, and the error chain in verbose mode.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
