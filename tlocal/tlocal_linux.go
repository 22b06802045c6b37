//go:build linux

package tlocal

import "golang.org/x/sys/unix"

// currentOSThread returns the kernel thread id of the calling OS thread.
// Stable for the lifetime of a goroutine that has called
// runtime.LockOSThread, which is true of every goroutine that ever binds
// a worker id (worker.Worker's own loop, and any runner.LambdaRunner
// dispatched on its behalf).
func currentOSThread() int64 {
	return int64(unix.Gettid())
}
