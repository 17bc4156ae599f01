// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// WriteFiles writes every path to content pair to fsys, creating parent
// directories as needed. The test fails immediately on error.
func WriteFiles(t testing.TB, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		MustWriteFile(t, fsys, path, content)
	}
}

// MustWriteFile writes content to path, creating parent directories.
func MustWriteFile(t testing.TB, fsys afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755), "create parent of %s", path)
	require.NoError(t, afero.WriteFile(fsys, path, []byte(content), 0o644), "write %s", path)
}

// Exists reports whether path exists on fsys.
func Exists(t testing.TB, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err, "stat %s", path)
	return ok
}

// SetUserDirs points the user config and cache directories below dir for
// the rest of the test. Tests calling it cannot run in parallel.
//
// Platform handling:
//   - Windows: APPDATA and LOCALAPPDATA
//   - Linux/macOS: HOME, XDG_CONFIG_HOME and XDG_CACHE_HOME
func SetUserDirs(t *testing.T, dir string) {
	t.Helper()

	switch runtime.GOOS {
	case "windows":
		t.Setenv("APPDATA", filepath.Join(dir, "AppData", "Roaming"))
		t.Setenv("LOCALAPPDATA", filepath.Join(dir, "AppData", "Local"))
	default:
		t.Setenv("HOME", dir)
		t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
		t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, ".cache"))
	}
}
