//go:build !linux || tinygo

// Cross-platform stub for CPU affinity on systems where
// sched_setaffinity(2) is unavailable: macOS, Windows, BSD, TinyGo.
// Keeps the same API so higher-level code (runner, worker) never needs a
// build tag of its own.

package affinity

// Pin is a no-op on platforms without a pinning syscall. Workers still
// run correctly, just without the cache-locality guarantee core pinning
// gives on Linux.
func Pin(cpu int) {}
