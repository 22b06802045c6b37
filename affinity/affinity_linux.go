//go:build linux && !tinygo

// Linux binding for sched_setaffinity(2) that pins the calling OS thread
// to a single logical CPU. Adapted from the ring24 package's consumer
// affinity helper: same pre-computed one-word mask table, same "ignore
// errors, ignore out-of-range cores" contract, generalized here from a
// ring-consumer collaborator into the scheduler's core-pinning hook
// (spec.md section 1: "CPU-affinity pinning ... treated as external
// collaborator", section 6: "Affinity collaborator").

package affinity

import (
	"syscall"
	"unsafe"
)

// cpuMasks holds one pre-computed affinity bitmask per logical CPU 0-63.
var cpuMasks = [...][1]uintptr{
	{1 << 0}, {1 << 1}, {1 << 2}, {1 << 3}, {1 << 4}, {1 << 5}, {1 << 6}, {1 << 7},
	{1 << 8}, {1 << 9}, {1 << 10}, {1 << 11}, {1 << 12}, {1 << 13}, {1 << 14}, {1 << 15},
	{1 << 16}, {1 << 17}, {1 << 18}, {1 << 19}, {1 << 20}, {1 << 21}, {1 << 22}, {1 << 23},
	{1 << 24}, {1 << 25}, {1 << 26}, {1 << 27}, {1 << 28}, {1 << 29}, {1 << 30}, {1 << 31},
	{1 << 32}, {1 << 33}, {1 << 34}, {1 << 35}, {1 << 36}, {1 << 37}, {1 << 38}, {1 << 39},
	{1 << 40}, {1 << 41}, {1 << 42}, {1 << 43}, {1 << 44}, {1 << 45}, {1 << 46}, {1 << 47},
	{1 << 48}, {1 << 49}, {1 << 50}, {1 << 51}, {1 << 52}, {1 << 53}, {1 << 54}, {1 << 55},
	{1 << 56}, {1 << 57}, {1 << 58}, {1 << 59}, {1 << 60}, {1 << 61}, {1 << 62}, {1 << 63},
}

// Pin pins the calling goroutine's current OS thread to cpu (0-based).
// Caller must already hold runtime.LockOSThread. Out-of-range cores are
// silently ignored, and the raw syscall's error is deliberately
// swallowed — on a containerized or cgroup-heavy host the call might
// return EPERM/EINVAL, and the fallback is simply "no pin", same as the
// teacher's setAffinity.
func Pin(cpu int) {
	if cpu < 0 || cpu >= len(cpuMasks) {
		return
	}
	mask := &cpuMasks[cpu]
	_, _, _ = syscall.RawSyscall(
		syscall.SYS_SCHED_SETAFFINITY,
		0,
		uintptr(unsafe.Sizeof(mask[0])),
		uintptr(unsafe.Pointer(mask)),
	)
}
