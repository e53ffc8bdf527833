//go:build linux

// internal/runloop/thread_linux.go
package runloop

import "golang.org/x/sys/unix"

func threadID() int {
	return unix.Gettid()
}
