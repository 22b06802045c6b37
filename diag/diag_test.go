package diag

import (
	"runtime"
	"sync/atomic"
	"testing"

	"sts/ratio"
	"sts/schedule"
	"sts/tlocal"
)

type fakeContext struct {
	active *schedule.Schedule
	def    *schedule.Schedule
	step   atomic.Int64
}

func (c *fakeContext) ActiveSchedule() *schedule.Schedule     { return c.active }
func (c *fakeContext) SetActiveSchedule(s *schedule.Schedule) { c.active = s }
func (c *fakeContext) DefaultSchedule() *schedule.Schedule    { return c.def }
func (c *fakeContext) NumThreads() int                        { return 1 }
func (c *fakeContext) AdvanceStep() int64                     { return c.step.Add(1) }
func (c *fakeContext) StepBarrierWait()                       {}
func (c *fakeContext) StepBarrierClose(n int)                 {}

func newRunSchedule(t *testing.T) *schedule.Schedule {
	t.Helper()
	runtime.LockOSThread()
	tlocal.Bind(0)
	t.Cleanup(func() {
		tlocal.Unbind()
		runtime.UnlockOSThread()
	})

	ctx := &fakeContext{}
	s := schedule.New(ctx, "diag-demo")
	ctx.active, ctx.def = s, s
	s.AssignLoop("work", 0, ratio.FullRatio())
	return s
}

func TestSnapshotCapturesEveryAssignedSubTask(t *testing.T) {
	s := newRunSchedule(t)

	s.NextStep()
	s.ParallelFor("work", 0, 100, func(i int64) {}, nil)
	s.Wait()

	snap := Snapshot(s, 1)
	if snap.ScheduleName != "diag-demo" {
		t.Errorf("ScheduleName = %q, want diag-demo", snap.ScheduleName)
	}
	if snap.Step != 1 {
		t.Errorf("Step = %d, want 1", snap.Step)
	}
	if len(snap.SubTasks) != 1 {
		t.Fatalf("got %d subtasks, want 1", len(snap.SubTasks))
	}
	sub := snap.SubTasks[0]
	if sub.TaskLabel != "work" || sub.ThreadID != 0 {
		t.Errorf("unexpected subtask: %+v", sub)
	}
	if !sub.Done {
		t.Error("subtask should be marked done after Wait")
	}
	if snap.PlanHash == "" {
		t.Error("PlanHash should not be empty")
	}
}

func TestFingerprintIsStableAcrossIdenticalPlans(t *testing.T) {
	s := newRunSchedule(t)

	s.NextStep()
	s.ParallelFor("work", 0, 100, func(i int64) {}, nil)
	s.Wait()
	first := Snapshot(s, 1)

	s.NextStep()
	s.ParallelFor("work", 0, 100, func(i int64) {}, nil)
	s.Wait()
	second := Snapshot(s, 2)

	if first.PlanHash != second.PlanHash {
		t.Errorf("plan hash changed across identical assignment plans: %q vs %q",
			first.PlanHash, second.PlanHash)
	}
	if first.Step == second.Step {
		t.Error("steps should differ even though the plan hash doesn't")
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	s := newRunSchedule(t)
	s.NextStep()
	s.ParallelFor("work", 0, 100, func(i int64) {}, nil)
	s.Wait()
	snap := Snapshot(s, 1)

	rec, err := NewRecorder(":memory:")
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	defer rec.Close()

	if err := rec.Record(snap); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := rec.Snapshots("diag-demo")
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1", len(got))
	}
	if got[0].PlanHash != snap.PlanHash || got[0].Step != snap.Step {
		t.Errorf("round-tripped snapshot mismatch: got %+v, want %+v", got[0], snap)
	}

	if err := rec.Record(snap); err != nil {
		t.Fatalf("Record (replace): %v", err)
	}
	got, err = rec.Snapshots("diag-demo")
	if err != nil {
		t.Fatalf("Snapshots after replace: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("INSERT OR REPLACE should keep exactly one row per (plan_hash, step), got %d", len(got))
	}
}
