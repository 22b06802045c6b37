// Package sts is the public facade composing process, schedule, task,
// and barrier into the external interface spec.md section 6 describes:
// process-wide lifecycle plus the named-schedule and in-task operations
// an application calls from inside its own run/parallel_for closures.
package sts

import (
	"sts/barrier"
	"sts/process"
	"sts/schedule"
)

var current *process.Process

// Startup constructs the thread pool, the default schedule, and makes
// it active. The calling goroutine becomes thread 0 and must remain on
// the same OS thread for the lifetime of the process (Startup locks it).
func Startup(numThreads int) {
	if current != nil {
		panic("sts: Startup called twice without an intervening Shutdown")
	}
	current = process.NewProcess(numThreads)
	current.Startup()
}

// Shutdown signals every worker to exit and releases thread 0's OS
// thread lock. Only legal while the default schedule is active.
func Shutdown() {
	if current == nil {
		panic("sts: Shutdown called before Startup")
	}
	if !current.ActiveSchedule().UsesDefaultSchedule() {
		panic("sts: Shutdown called while a non-default schedule is active")
	}
	current.Shutdown()
	current = nil
}

// NewSchedule creates a schedule bound to the running process, named if
// name is non-empty.
func NewSchedule(name string) *schedule.Schedule {
	mustRunning()
	return current.NewSchedule(name)
}

// GetInstance returns the schedule registered under name, or the
// process's default schedule if none is registered.
func GetInstance(name string) *schedule.Schedule {
	mustRunning()
	return current.GetSchedule(name)
}

// DefaultSchedule returns the process's default schedule.
func DefaultSchedule() *schedule.Schedule {
	mustRunning()
	return current.Default()
}

func mustRunning() {
	if current == nil {
		panic("sts: called before Startup")
	}
}

// Pause is called from inside a coroutine task's running closure. See
// schedule.Schedule.Pause.
func Pause(checkpoint int64) bool {
	return current.ActiveSchedule().Pause(checkpoint)
}

// SetCheckPoint advances label's task checkpoint.
func SetCheckPoint(label string, value int64) {
	current.ActiveSchedule().SetCheckPoint(label, value)
}

// RecordTime appends an auxiliary timestamp to the calling thread's
// currently running subtask.
func RecordTime(name string) {
	current.ActiveSchedule().RecordTime(name)
}

// GetTaskThreadId returns the calling thread's ordinal within the task
// it is currently running.
func GetTaskThreadId() int {
	return current.ActiveSchedule().GetTaskThreadId()
}

// GetTaskNumThreads returns the number of threads participating in
// label's task, or — if label is empty — the calling thread's own
// currently running task.
func GetTaskNumThreads(label string) int {
	if label == "" {
		return current.ActiveSchedule().CurrentTaskNumThreads()
	}
	return current.ActiveSchedule().GetTaskNumThreads(label)
}

// CreateTaskReduction builds and attaches a reduction to label's task.
func CreateTaskReduction(label string, init any) any {
	return current.ActiveSchedule().CreateTaskReduction(label, init)
}

// Collect folds value into the calling thread's slot of the currently
// running task's reduction.
func Collect(value any) {
	current.ActiveSchedule().Collect(value)
}

// NewMOBarrier, NewOMBarrier, NewRMOBarrier, and NewMMBarrier are the
// named-barrier constructors spec.md section 6 lists alongside the
// schedule operations, re-exported here so an application never needs
// to import package barrier directly for the common case.
func NewMOBarrier(name string) *barrier.MO          { return barrier.NewMO(name) }
func NewOMBarrier(name string) *barrier.OM          { return barrier.NewOM(name) }
func NewRMOBarrier(name string, maxThreadID int) *barrier.RMO {
	return barrier.NewRMO(name, maxThreadID)
}
func NewMMBarrier(name string, n int) *barrier.MM { return barrier.NewMM(name, n) }

// GetMOBarrier, GetOMBarrier, GetRMOBarrier, and GetMMBarrier look up a
// previously named barrier, returning nil if none is registered.
func GetMOBarrier(name string) *barrier.MO                { return barrier.GetMO(name) }
func GetOMBarrier(name string) *barrier.OM                { return barrier.GetOM(name) }
func GetRMOBarrier(name string) *barrier.RMO              { return barrier.GetRMO(name) }
func GetMMBarrier(name string) *barrier.MM                { return barrier.GetMM(name) }
