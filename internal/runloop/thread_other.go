//go:build !linux

// internal/runloop/thread_other.go
package runloop

// threadID is unknown here; Loop.Current always reports false and
// callers fall back to posting.
func threadID() int {
	return 0
}
