// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	for _, errno := range fatalErrnos {
		assert.True(t, isFatalFsnotifyError(errno), "%v", errno)
		assert.True(t, isFatalFsnotifyError(fmt.Errorf("add watch /srv/plugins/shop: %w", errno)), "wrapped %v", errno)
	}
	assert.False(t, isFatalFsnotifyError(syscall.Errno(0)))
	assert.False(t, isFatalFsnotifyError(fsnotify.ErrEventOverflow))
	assert.False(t, isFatalFsnotifyError(errors.New("queue overflow")))
	assert.False(t, isFatalFsnotifyError(nil))
}
