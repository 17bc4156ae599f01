// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfgweave/cfgweave/internal/state"
	"github.com/cfgweave/cfgweave/internal/watch"

	"github.com/spf13/cobra"
)

// ErrWatchDemo is returned by watch when the demo tree is selected.
var ErrWatchDemo = errors.New("watch needs plugin directories on disk; the demo tree is in memory")

func newWatchCommand(app *App) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload the configuration whenever plugin sources change",
		Long: `Load the configuration, then watch the directories behind the root
locations and reload after changes to Go source files. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			if app.flags.demo {
				return ErrWatchDemo
			}
			ctx := cmd.Context()
			sess, err := app.session(ctx)
			if err != nil {
				return err
			}
			logger := sess.logger.WithPrefix("watch")

			reload := func(ctx context.Context) error {
				st, err := app.reload(ctx, sess)
				if err != nil {
					return err
				}
				logger.Info("Configuration loaded", "keys", len(st.GetAll()))
				return nil
			}
			if err := reload(ctx); err != nil {
				logger.Error("Initial load failed", "err", err)
			}

			w, err := watch.New(watch.Config{
				Dirs:     watch.RootDirs(app.WorkDir, app.rootPatterns(sess.settings)...),
				Debounce: debounce,
				Logger:   logger,
				OnChange: func(ctx context.Context, changed []string) error {
					logger.Info("Reloading", "files", len(changed))
					return reload(ctx)
				},
			})
			if err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			fmt.Fprintln(app.stdout, SubtitleStyle.Render("Watching for changes, press Ctrl+C to stop"))
			return w.Run(ctx)
		}),
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before a reload")
	return cmd
}

// reload loads the configuration from the sources. The cache entries of the
// loader are dropped first, so the result never comes from before a change;
// the load stores fresh entries.
func (a *App) reload(ctx context.Context, sess *session) (*state.State, error) {
	l, err := a.newLoader(sess)
	if err != nil {
		return nil, err
	}
	if err := l.ClearCache(); err != nil {
		return nil, err
	}
	return l.Load(ctx, sess.settings.Runtime)
}
