//go:build !linux

package tlocal

import (
	"runtime"
	"strconv"
)

// currentOSThread falls back to the runtime's goroutine id on platforms
// without a cheap Gettid syscall. This is a weaker guarantee than Linux's
// kernel thread id — it identifies the calling goroutine, not the OS
// thread underneath it — but every goroutine that calls Bind has already
// called runtime.LockOSThread, so the two coincide for our purposes: the
// goroutine never migrates to a different OS thread after binding.
func currentOSThread() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack trace starts with "goroutine 123 [running]:".
	line := buf[:n]
	const prefix = "goroutine "
	i := len(prefix)
	if i >= len(line) {
		return 0
	}
	j := i
	for j < len(line) && line[j] >= '0' && line[j] <= '9' {
		j++
	}
	id, err := strconv.ParseInt(string(line[i:j]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
