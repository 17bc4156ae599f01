// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/cfgweave/cfgweave/internal/cache"
	"github.com/cfgweave/cfgweave/internal/config"

	"github.com/spf13/cobra"
)

func newCacheCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the loader cache",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached configuration tree",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			sess, err := app.session(cmd.Context())
			if err != nil {
				return err
			}
			if sess.settings.Cache.Driver != config.CacheDriverFile {
				fmt.Fprintf(app.stdout, "Nothing to clear: cache driver is %q\n", sess.settings.Cache.Driver)
				return nil
			}
			dir, err := app.cacheDir(sess)
			if err != nil {
				return err
			}
			if err := cache.NewFile(sess.fs, dir).Clear(); err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s Cleared %s\n", SuccessStyle.Render("✓"), dir)
			return nil
		}),
	})
	return cmd
}
