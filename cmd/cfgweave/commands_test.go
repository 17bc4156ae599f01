// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cfgweave/cfgweave/internal/config"
	"github.com/cfgweave/cfgweave/internal/issue"
	"github.com/cfgweave/cfgweave/internal/testutil"
)

const (
	testWorkDir     = "/work"
	testSettingsDir = "/home/cfg"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, fsys afero.Fs, args ...string) cliResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app, err := NewApp(Dependencies{
		FS:          fsys,
		WorkDir:     testWorkDir,
		SettingsDir: testSettingsDir,
		Stdout:      &stdout,
		Stderr:      &stderr,
	})
	require.NoError(t, err)

	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err = root.ExecuteContext(t.Context())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestDemoLoadCommand(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "--demo", "load")
	require.NoError(t, res.err)
	var tree map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &tree))
	assert.ElementsMatch(t, []string{"blog", "meta", "shop"}, slices.Collect(maps.Keys(tree)))

	res = runCLI(t, afero.NewMemMapFs(), "--demo", "load", "--runtime")
	require.NoError(t, res.err)
	tree = nil
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &tree))
	assert.Contains(t, tree, "shop")
}

func TestLoadCommandRuntimeHelp(t *testing.T) {
	t.Parallel()

	app, err := NewApp(Dependencies{FS: afero.NewMemMapFs(), WorkDir: testWorkDir, Stdout: io.Discard, Stderr: io.Discard})
	require.NoError(t, err)
	cmd := newLoadCommand(app)
	assert.Contains(t, cmd.Flags().Lookup("runtime").Usage, "handlers always run")
	assert.Contains(t, cmd.Long, "handlers run on every load")
	assert.NotContains(t, cmd.Long, "without executing")
}

func TestGetCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  string
	}{
		{"shop.db.host", "db.internal"},
		{"shop.db.port", "5432"},
		{"blog.tags.#", "2"},
		{"blog.tags.0", "go"},
		{"meta.generator", "cfgweave demo"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			res := runCLI(t, afero.NewMemMapFs(), "--demo", "get", tt.query)
			require.NoError(t, res.err)
			assert.Equal(t, tt.want+"\n", res.stdout)
		})
	}
}

func TestGetCommandMissingValue(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "--demo", "get", "shop.nope")
	require.ErrorIs(t, res.err, ErrNoValue)
	assert.Empty(t, res.stdout)
}

func TestDumpCommand(t *testing.T) {
	t.Parallel()

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, afero.NewMemMapFs(), "--demo", "dump")
		require.NoError(t, res.err)
		var tree map[string]any
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &tree))
		assert.Equal(t, "EUR", tree["shop"].(map[string]any)["currency"])
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, afero.NewMemMapFs(), "--demo", "dump", "--format", "yaml")
		require.NoError(t, res.err)
		var tree map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(res.stdout), &tree))
		db := tree["shop"].(map[string]any)["db"].(map[string]any)
		assert.Equal(t, "db.internal", db["host"])
	})

	t.Run("toml", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, afero.NewMemMapFs(), "--demo", "dump", "-f", "toml")
		require.NoError(t, res.err)
		var tree map[string]any
		require.NoError(t, toml.Unmarshal([]byte(res.stdout), &tree))
		blog := tree["blog"].(map[string]any)
		assert.Equal(t, []any{"go", "config"}, blog["tags"])
	})

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, afero.NewMemMapFs(), "--demo", "dump", "--format", "xml")
		require.ErrorIs(t, res.err, ErrUnknownFormat)
	})
}

func TestLoadFromSettings(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.MustWriteFile(t, fsys, "/work/plugins/shop/Config/site.go", "package shop\n\ntype SiteConfig struct{}\n")

	res := runCLI(t, fsys, "get", "shop.db.host")
	require.NoError(t, res.err)
	assert.Equal(t, "localhost\n", res.stdout)
}

func TestLoadMissingSettingsFile(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "--settings", "/nowhere/cfgweave.cue", "load")
	require.Error(t, res.err)
	var ae *issue.ActionableError
	require.ErrorAs(t, res.err, &ae)
	assert.Equal(t, issue.SettingsNotFoundId, ae.IssueID)
	assert.Contains(t, res.stderr, "cfgweave settings init")
}

func TestScanCommand(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "--demo", "scan", "/demo/plugins/blog")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "blog.FeedConfig")
	assert.Contains(t, res.stdout, "blog.TagsHandler")
	assert.Contains(t, res.stdout, "abstract")
	assert.Contains(t, res.stdout, "registered")

	res = runCLI(t, afero.NewMemMapFs(), "scan", "empty")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No declarations found")
}

func TestScanCommandUnregistered(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	testutil.MustWriteFile(t, fsys, "/work/plugins/extra/Config/extra.go", "package extra\n\ntype ExtraConfig struct{}\n")

	res := runCLI(t, fsys, "scan", "plugins")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "extra.ExtraConfig")
	assert.Contains(t, res.stdout, "unregistered")
}

func TestCacheClearCommand(t *testing.T) {
	t.Parallel()

	t.Run("file driver", func(t *testing.T) {
		t.Parallel()
		fsys := afero.NewMemMapFs()
		testutil.MustWriteFile(t, fsys, "/work/cfgweave.cue", "cache: {\n\tdriver: \"file\"\n\tdir:    \"/var/cache/cfgweave\"\n}\n")
		testutil.MustWriteFile(t, fsys, "/var/cache/cfgweave/app.dev.full.cache", "{}")
		testutil.MustWriteFile(t, fsys, "/var/cache/cfgweave/notes.txt", "keep")

		res := runCLI(t, fsys, "cache", "clear")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Cleared /var/cache/cfgweave")

		assert.False(t, testutil.Exists(t, fsys, "/var/cache/cfgweave/app.dev.full.cache"))
		assert.True(t, testutil.Exists(t, fsys, "/var/cache/cfgweave/notes.txt"))
	})

	t.Run("no file driver", func(t *testing.T) {
		t.Parallel()
		res := runCLI(t, afero.NewMemMapFs(), "cache", "clear")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, `Nothing to clear: cache driver is "none"`)
	})
}

func TestSettingsCommands(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()

	res := runCLI(t, fsys, "settings", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "# source: defaults")

	res = runCLI(t, fsys, "settings", "init")
	require.NoError(t, res.err)
	path := filepath.Join(testSettingsDir, config.SettingsFileName)
	assert.Contains(t, res.stdout, path)

	res = runCLI(t, fsys, "settings", "init")
	require.ErrorIs(t, res.err, config.ErrSettingsExist)

	res = runCLI(t, fsys, "settings", "init", "--force")
	require.NoError(t, res.err)

	res = runCLI(t, fsys, "settings", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "# source: "+path)
	assert.Contains(t, res.stdout, `type:        "app"`)

	res = runCLI(t, fsys, "settings", "init", "--local")
	require.NoError(t, res.err)
	local := filepath.Join(testWorkDir, config.SettingsFileName)
	assert.True(t, testutil.Exists(t, fsys, local))

	res = runCLI(t, fsys, "settings", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "# source: "+local)

	res = runCLI(t, fsys, "--demo", "settings", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "# source: embedded demo")
	assert.Contains(t, res.stdout, `type:        "demo"`)
}

func TestSettingsInitFlagsExclusive(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "settings", "init", "--dir", "/x", "--local")
	require.Error(t, res.err)
}

func TestReloadPicksUpChanges(t *testing.T) {
	t.Parallel()

	for _, runtime := range []string{"false", "true"} {
		t.Run("runtime="+runtime, func(t *testing.T) {
			t.Parallel()

			fsys := afero.NewMemMapFs()
			testutil.MustWriteFile(t, fsys, "/work/cfgweave.cue", "runtime: "+runtime+"\ncache: {\n\tdriver: \"file\"\n\tdir:    \"/var/cache/cfgweave\"\n}\n")
			testutil.MustWriteFile(t, fsys, "/work/plugins/shop/Config/site.go", "package shop\n\ntype SiteConfig struct{}\n")

			app, err := NewApp(Dependencies{
				FS:          fsys,
				WorkDir:     testWorkDir,
				SettingsDir: testSettingsDir,
				Stdout:      io.Discard,
				Stderr:      io.Discard,
			})
			require.NoError(t, err)
			sess, err := app.session(t.Context())
			require.NoError(t, err)

			st, err := app.reload(t.Context(), sess)
			require.NoError(t, err)
			assert.Equal(t, "localhost", st.Get("shop.db.host", nil))

			testutil.MustWriteFile(t, fsys, "/work/plugins/shop/Config/Override/site.go", "package shopoverride\n\ntype SiteOverride struct{}\n")
			st, err = app.reload(t.Context(), sess)
			require.NoError(t, err)
			assert.Equal(t, "db.internal", st.Get("shop.db.host", nil))
		})
	}
}

func TestWatchRejectsDemo(t *testing.T) {
	t.Parallel()

	res := runCLI(t, afero.NewMemMapFs(), "--demo", "watch")
	require.ErrorIs(t, res.err, ErrWatchDemo)
}
