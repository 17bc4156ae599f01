// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cfgweave/cfgweave/internal/issue"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2026-03-01T10:00:00Z"

		assert.Equal(t, "v1.2.3 (commit: abc1234, built: 2026-03-01T10:00:00Z)", getVersionString())
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "dev"
		Commit = "unknown"
		BuildDate = "unknown"

		assert.Equal(t, "dev (built from source)", getVersionString())
	})
}

func TestFormatErrorForDisplay(t *testing.T) {
	t.Parallel()

	plain := errors.New("boom")
	assert.Equal(t, "boom", formatErrorForDisplay(plain, false))

	ae := issue.NewErrorContext().
		WithOperation("load settings").
		WithResource("/etc/cfgweave.cue").
		WithSuggestion("Run 'cfgweave settings init'").
		Wrap(plain).
		BuildError()
	out := formatErrorForDisplay(ae, false)
	assert.Contains(t, out, "load settings")
	assert.Contains(t, out, "Run 'cfgweave settings init'")
}
