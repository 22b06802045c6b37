package task

import (
	"time"

	"sts/clock"
)

// Times is the subtask timing record kept for reporting — carried over
// from the original's TaskTimes (original_source/sts/task.h) since
// spec.md section 3 names the fields but leaves the derived durations to
// the implementation.
type Times struct {
	WaitStart    time.Time
	RunStart     time.Time
	RunEnd       time.Time
	NextRunAvail time.Time
	Aux          map[string][]time.Time
}

// Clear resets every field to its zero value, discarding aux timestamps.
func (t *Times) Clear() {
	t.WaitStart = time.Time{}
	t.RunStart = time.Time{}
	t.RunEnd = time.Time{}
	t.NextRunAvail = time.Time{}
	t.Aux = nil
}

// RecordTime appends the current time under a caller-chosen label (used
// for ad hoc reporting points, e.g. "resume", "pause").
func (t *Times) RecordTime(label string, src clock.Source) {
	if t.Aux == nil {
		t.Aux = make(map[string][]time.Time)
	}
	t.Aux[label] = append(t.Aux[label], src.Now())
}

// WaitDuration is the time spent between requesting work and starting it.
func (t *Times) WaitDuration() time.Duration { return t.RunStart.Sub(t.WaitStart) }

// RunDuration is the time actually spent running.
func (t *Times) RunDuration() time.Duration { return t.RunEnd.Sub(t.RunStart) }

// TotalDuration is wait plus run time.
func (t *Times) TotalDuration() time.Duration { return t.RunEnd.Sub(t.WaitStart) }
