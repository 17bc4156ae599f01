// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"errors"
	"syscall"
)

// isFatalFsnotifyError reports errors after which the watcher can no longer
// see changes below the plugin roots. Anything else is logged and the watch
// goes on.
func isFatalFsnotifyError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	for _, fatal := range fatalErrnos {
		if errno == fatal {
			return true
		}
	}
	return false
}
