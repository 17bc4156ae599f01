// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/cfgweave/cfgweave/internal/config"

	"github.com/spf13/cobra"
)

func newSettingsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and create settings files",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSettingsShowCommand(app), newSettingsInitCommand(app))
	return cmd
}

func newSettingsShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			source := sess.settings.Source.String()
			switch {
			case app.flags.demo:
				source = "embedded demo"
			case source == "":
				source = "defaults"
			}
			fmt.Fprintln(app.stdout, SubtitleStyle.Render("# source: "+source))
			fmt.Fprint(app.stdout, config.GenerateCUE(sess.settings))
			return nil
		}),
	}
}

func newSettingsInitCommand(app *App) *cobra.Command {
	var (
		dir   string
		local bool
		force bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default values",
		Long: `Write cfgweave.cue with the default values to the user settings
directory, to the working directory with --local, or to --dir.`,
		Args: cobra.NoArgs,
		RunE: app.run(func(_ *cobra.Command, _ []string) error {
			target := dir
			switch {
			case target != "":
			case local:
				target = app.WorkDir
			case app.SettingsDir != "":
				target = app.SettingsDir
			default:
				d, err := config.SettingsDir()
				if err != nil {
					return err
				}
				target = d
			}

			path, err := config.WriteDefault(app.FS, target, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s Wrote %s\n", SuccessStyle.Render("✓"), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to write cfgweave.cue to")
	cmd.Flags().BoolVar(&local, "local", false, "write to the working directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	cmd.MarkFlagsMutuallyExclusive("dir", "local")
	return cmd
}
