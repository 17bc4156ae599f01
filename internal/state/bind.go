// SPDX-License-Identifier: MPL-2.0

package state

// Bind keeps *target in sync with the value at path. The current value is
// copied immediately and again after every write that touches path. A missing
// value yields fallback; convert, when given, maps raw values to T, otherwise
// values that are not a T also yield fallback.
//
// The returned id can be passed to RemoveWatcher to stop the binding.
func Bind[T any](s *State, path string, target *T, fallback T, convert func(any) T) WatcherID {
	apply := func(v any) {
		switch {
		case v == nil:
			*target = fallback
		case convert != nil:
			*target = convert(v)
		default:
			if typed, ok := v.(T); ok {
				*target = typed
			} else {
				*target = fallback
			}
		}
	}
	apply(s.Get(path, nil))
	return s.AddWatcher(path, apply)
}
