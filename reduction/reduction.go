// Package reduction implements the per-task fold STS runs once a loop's
// end-barrier has released (spec.md section 4.4).
package reduction

// Numeric is any type a reduction can accumulate with +.
type Numeric interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// TaskReduction holds one accumulator slot per participating thread.
// Threads call Collect with their own slot index — disjoint indices make
// concurrent Collect calls safe without locking (spec.md: "Thread-safety
// rests on disjoint pos per thread"). Reduce folds every slot into the
// result once, after the associated task's subtasks have all finished;
// schedule.RunParallelFor calls Reduce on the default schedule, and on
// any other schedule the caller calls it after Wait, not this type.
type TaskReduction[T Numeric] struct {
	init   T
	values []T
	result T
}

// New creates a TaskReduction with one slot per thread, each
// pre-initialized to init.
func New[T Numeric](init T, numThreads int) *TaskReduction[T] {
	values := make([]T, numThreads)
	for i := range values {
		values[i] = init
	}
	return &TaskReduction[T]{init: init, values: values, result: init}
}

// Collect adds a into the accumulator for thread-local slot pos.
func (r *TaskReduction[T]) Collect(a T, pos int) {
	r.values[pos] += a
}

// Collector is the type-erased face of TaskReduction[T], letting a
// caller holding the task's reduction only as `any` (schedule.Schedule's
// Collect, called with a plain value from a task it stores generically)
// still dispatch to the right accumulator type. A type mismatch between
// the collected value and T is a caller bug and panics, mirroring the
// original's reinterpret via static_cast in STS::collect (sts.h).
type Collector interface {
	CollectAny(a any, pos int)
}

// CollectAny implements Collector.
func (r *TaskReduction[T]) CollectAny(a any, pos int) {
	v, ok := a.(T)
	if !ok {
		panic("reduction: collected value type does not match this reduction's type")
	}
	r.Collect(v, pos)
}

// Reset zeroes every thread's slot back to init without touching Result,
// so a single TaskReduction can be reused across steps as a running
// total: schedule.ParallelFor calls Reset right before opening a step's
// loop, and Reduce folds that step's slots into whatever Result already
// held. (spec.md section 8 scenario 3: collect(1) across 10 threads for
// two steps yields getResult()==10 after the first, ==20 after the
// second — the running total the original reduce.h produces by never
// resetting its own "result" field.)
func (r *TaskReduction[T]) Reset() {
	for i := range r.values {
		r.values[i] = r.init
	}
}

// Reduce folds every slot into Result, adding to whatever Result already
// held (cumulative across repeated steps unless Reset is also called).
// schedule.ParallelFor does not call it: schedule.RunParallelFor calls it
// once after the step's Wait, and on any other schedule the caller calls
// it after Wait.
func (r *TaskReduction[T]) Reduce() {
	for _, v := range r.values {
		r.result += v
	}
}

// Result returns the folded value computed by the last Reduce call.
func (r *TaskReduction[T]) Result() T {
	return r.result
}

// Reducer is the type-erased pair of lifecycle calls a scheduler drives
// around a loop step, independent of the accumulated type T. TaskReduction[T]
// satisfies this automatically.
type Reducer interface {
	Reset()
	Reduce()
}
