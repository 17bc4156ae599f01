// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cfgweave/cfgweave/internal/state"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

var (
	// ErrUnknownFormat is returned by dump for an unsupported --format.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrNoValue is returned by get when the query matches nothing.
	ErrNoValue = errors.New("no value at path")
)

func newLoadCommand(app *App) *cobra.Command {
	var runtime bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the configuration and print it as JSON",
		Long: `Discover handlers and configs below the root locations and execute them.

With --runtime, the cache holds the discovered config definitions instead of
the resulting state, so handlers run on every load and only discovery is
skipped on a cache hit. The flag overrides the runtime setting of the
settings file.`,
		Args: cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			var mode *bool
			if cmd.Flags().Changed("runtime") {
				mode = &runtime
			}
			st, err := app.load(cmd.Context(), mode)
			if err != nil {
				return err
			}
			return encodeTree(app.stdout, st, formatJSON)
		}),
	}
	cmd.Flags().BoolVar(&runtime, "runtime", false, "cache config definitions instead of the state; handlers always run")
	return cmd
}

func newDumpCommand(app *App) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the loaded configuration tree",
		Args:  cobra.NoArgs,
		RunE: app.run(func(cmd *cobra.Command, _ []string) error {
			st, err := app.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return encodeTree(app.stdout, st, format)
		}),
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format (json, yaml, toml)")
	return cmd
}

func newGetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <query>",
		Short: "Print a single value of the configuration tree",
		Long: `Print the value selected by a gjson query, for example "shop.db.host",
"blog.tags.0" or "blog.tags.#".`,
		Args: cobra.ExactArgs(1),
		RunE: app.run(func(cmd *cobra.Command, args []string) error {
			st, err := app.load(cmd.Context(), nil)
			if err != nil {
				return err
			}
			data, err := st.ToJSON()
			if err != nil {
				return err
			}
			res := gjson.GetBytes(data, args[0])
			if !res.Exists() {
				return fmt.Errorf("%w: %s", ErrNoValue, args[0])
			}
			fmt.Fprintln(app.stdout, res.String())
			return nil
		}),
	}
}

// encodeTree writes the whole tree of st to w in the given format.
func encodeTree(w io.Writer, st *state.State, format string) error {
	switch format {
	case formatJSON:
		data, err := st.ToJSON()
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return fmt.Errorf("indent json: %w", err)
		}
		out.WriteByte('\n')
		_, err = out.WriteTo(w)
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st.GetAll()); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatTOML:
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		if err := enc.Encode(st.GetAll()); err != nil {
			return fmt.Errorf("encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w %q (valid: json, yaml, toml)", ErrUnknownFormat, format)
	}
}
