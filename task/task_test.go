package task

import (
	"sync/atomic"
	"testing"

	"sts/clock"
	"sts/ratio"
	"sts/runner"
)

func fullRatio() ratio.Range[ratio.Ratio] { return ratio.NewRange(ratio.Zero, ratio.One) }

func TestCoroutineSubtaskPausesAndResumes(t *testing.T) {
	runner.Global.AddCore(0)
	tk := New("coro", clock.System{})
	tk.SetCoroutine(nil)
	st := tk.PushSubtask(0, fullRatio())
	tk.Restart()

	var reachedPause, reachedEnd atomic.Bool
	tk.SetFunctor(NewBasicFunctor(func() {
		reachedPause.Store(true)
		st.Pause(0)
		reachedEnd.Store(true)
	}))

	if done := st.Run(); done {
		t.Fatal("SubTask.Run() should report not-done while paused")
	}
	if !reachedPause.Load() {
		t.Fatal("closure never reached the pause point")
	}
	if reachedEnd.Load() {
		t.Fatal("closure ran past Pause before being resumed")
	}

	if done := st.Run(); !done {
		t.Fatal("SubTask.Run() should report done once the closure finishes")
	}
	if !reachedEnd.Load() {
		t.Fatal("closure never resumed past Pause")
	}
}

func TestBasicTaskRunsOnceAndReleasesEndBarrier(t *testing.T) {
	tk := New("basic", clock.System{})
	st := tk.PushSubtask(0, fullRatio())
	tk.Restart()

	var ran atomic.Bool
	tk.SetFunctor(NewBasicFunctor(func() { ran.Store(true) }))

	if done := st.Run(); !done {
		t.Fatal("SubTask.Run() on a basic task should always return true")
	}
	if !ran.Load() {
		t.Fatal("basic functor never ran")
	}
	tk.Wait()
}

func TestLoopTaskCoversEveryIndexExactlyOnce(t *testing.T) {
	tk := New("loop", clock.System{})
	st0 := tk.PushSubtask(0, ratio.NewRange(ratio.Zero, ratio.New(1, 2)))
	st1 := tk.PushSubtask(1, ratio.NewRange(ratio.New(1, 2), ratio.One))
	tk.Restart()

	seen := make([]int, 10)
	tk.SetFunctor(NewLoopFunctor(func(i int64) { seen[i]++ }, ratio.Full(10)))

	st0.Run()
	st1.Run()
	tk.Wait()

	for i, count := range seen {
		if count != 1 {
			t.Fatalf("index %d ran %d times, want 1", i, count)
		}
	}
}

func TestSetFunctorOpensBeginBarrier(t *testing.T) {
	tk := New("t", clock.System{})
	tk.PushSubtask(0, fullRatio())
	tk.Restart()

	if tk.IsReady() {
		t.Fatal("task should not be ready before SetFunctor")
	}
	tk.SetFunctor(NewBasicFunctor(func() {}))
	if !tk.IsReady() {
		t.Fatal("task should be ready after SetFunctor")
	}
}

func TestRestartClearsFunctorAndDoneFlags(t *testing.T) {
	tk := New("t", clock.System{})
	st := tk.PushSubtask(0, fullRatio())
	tk.Restart()
	tk.SetFunctor(NewBasicFunctor(func() {}))
	st.Run()
	tk.Wait()

	if !st.IsDone() {
		t.Fatal("subtask should be done after running")
	}

	tk.Restart()
	if tk.IsReady() {
		t.Fatal("task should not be ready right after Restart")
	}
	if st.IsDone() {
		t.Fatal("Restart should clear each subtask's done flag")
	}
}

func TestAutoBalancingPreservesIterationCount(t *testing.T) {
	tk := New("bal", clock.System{})
	tk.EnableAutoBalancing()
	// Skew the initial split badly: thread 0 gets almost everything.
	st0 := tk.PushSubtask(0, ratio.NewRange(ratio.Zero, ratio.New(99, 100)))
	st1 := tk.PushSubtask(1, ratio.NewRange(ratio.New(99, 100), ratio.One))
	tk.Restart()

	const n = 1000
	var count [n]int32
	tk.SetFunctor(NewLoopFunctor(func(i int64) {
		atomic.AddInt32(&count[i], 1)
	}, ratio.Full(n)))

	done := make(chan struct{})
	go func() {
		st0.Run()
		close(done)
	}()
	st1.Run()
	<-done
	tk.Wait()

	for i, c := range count {
		if c != 1 {
			t.Fatalf("index %d ran %d times, want 1", i, c)
		}
	}
}
