// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/cfgweave/cfgweave/internal/scanner"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newScanCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "List the type declarations found below a directory",
		Long: `List every exported type declared below dir together with its kind and
whether the type registry can instantiate it. Relative directories are
resolved against the working directory.`,
		Args: cobra.ExactArgs(1),
		RunE: app.run(func(cmd *cobra.Command, args []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			decls, err := scanner.NewGoSource(sess.fs, scanner.WithBaseDir(app.WorkDir)).Scan(args[0])
			if err != nil {
				return err
			}
			if len(decls) == 0 {
				fmt.Fprintln(app.stdout, WarningStyle.Render("No declarations found in "+args[0]))
				return nil
			}

			width := 0
			for _, d := range decls {
				width = max(width, lipgloss.Width(d.ID.String()))
			}
			for _, d := range decls {
				id := d.ID.String()
				pad := strings.Repeat(" ", width-lipgloss.Width(id))
				fmt.Fprintf(app.stdout, "%s%s  %-9s  %s\n", CmdStyle.Render(id), pad, d.Kind, registration(app, d))
			}
			return nil
		}),
	}
}

func registration(app *App, d scanner.Declaration) string {
	switch {
	case d.Kind.Abstract():
		return SubtitleStyle.Render("abstract")
	case app.Registry.Has(d.ID):
		return SuccessStyle.Render("registered")
	default:
		return WarningStyle.Render("unregistered")
	}
}
