package process

import "testing"

func TestStartupRunsDefaultParallelForAcrossWorkers(t *testing.T) {
	const numThreads = 3
	const n = 30 // 0..29, evenly tileable across 3 threads

	p := NewProcess(numThreads)
	p.Startup()
	defer p.Shutdown()

	sched := p.Default()
	total := sched.CreateTaskReduction("default_loop", int64(0))

	seen := make([]int64, n)
	sched.RunParallelFor(0, n, func(i int64) {
		seen[i] = 1
		sched.Collect(i)
	}, total)

	for i := int64(0); i < n; i++ {
		if seen[i] != 1 {
			t.Fatalf("index %d never ran exactly once (ran %d times)", i, seen[i])
		}
	}

	res, ok := total.(interface{ Result() int64 })
	if !ok {
		t.Fatal("reduction does not implement Result")
	}
	want := int64(n * (n - 1) / 2)
	if got := res.Result(); got != want {
		t.Fatalf("sum of 0..%d = %d, want %d", n-1, got, want)
	}
}

func TestStartupTwicePanics(t *testing.T) {
	p := NewProcess(1)
	p.Startup()
	defer p.Shutdown()

	defer func() {
		if recover() == nil {
			t.Fatal("Startup called twice should panic")
		}
	}()
	p.Startup()
}

func TestShutdownFromWrongThreadPanics(t *testing.T) {
	p := NewProcess(2)
	p.Startup()
	defer p.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			recover()
		}()
		p.Shutdown()
		t.Error("Shutdown called off thread 0 should panic, not return")
	}()
	<-done
}

func TestRunParallelForMultipleStepsAccumulates(t *testing.T) {
	p := NewProcess(2)
	p.Startup()
	defer p.Shutdown()

	sched := p.Default()
	total := sched.CreateTaskReduction("default_loop", int64(0))

	for step := 0; step < 2; step++ {
		sched.RunParallelFor(0, 10, func(i int64) {
			sched.Collect(int64(1))
		}, total)
	}

	res, ok := total.(interface{ Result() int64 })
	if !ok {
		t.Fatal("reduction does not implement Result")
	}
	if got, want := res.Result(), int64(20); got != want {
		t.Fatalf("cumulative collect across two steps = %d, want %d", got, want)
	}
}
