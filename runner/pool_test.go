package runner

import "testing"

func TestPoolReusesReleasedRunnerSharedCores(t *testing.T) {
	p := NewPool()
	p.AddCore(0)

	lr := p.Get(0)
	lr.Run(func() {})
	lr.Wait()
	p.Release(lr)

	lr2 := p.Get(0)
	if lr2 != lr {
		t.Fatal("Get() after Release() should return the same pooled runner")
	}
	lr2.Halt()
}

func TestPoolReusesReleasedRunnerUnsharedCores(t *testing.T) {
	p := NewPool()
	p.AddCore(0)
	p.SetSharedCores(false)

	lr := p.Get(0)
	lr.Run(func() {})
	lr.Wait()
	p.Release(lr)

	lr2 := p.Get(0)
	if lr2 != lr {
		t.Fatal("Get() after Release() should return the same pooled runner (lock-free path)")
	}
	lr2.Halt()
}

func TestPoolGetOnEmptyCoreCreatesFresh(t *testing.T) {
	p := NewPool()
	p.AddCore(0)

	lr := p.Get(0)
	if lr == nil {
		t.Fatal("Get() on an empty pool should fall back to a freshly created runner")
	}
	lr.Run(func() {})
	lr.Wait()
	lr.Halt()
}

func TestPoolGetOnUnregisteredCorePanics(t *testing.T) {
	p := NewPool()
	defer func() {
		if recover() == nil {
			t.Fatal("Get() on a core never added via AddCore should panic")
		}
	}()
	p.Get(7)
}

func TestPoolReleaseOnUnfinishedRunnerPanics(t *testing.T) {
	p := NewPool()
	p.AddCore(0)
	lr := p.Get(0)
	done := make(chan struct{})
	lr.Run(func() { <-done })

	defer func() {
		if recover() == nil {
			t.Fatal("Release() on a still-running runner should panic")
		}
		close(done)
		lr.Wait()
		lr.Halt()
	}()
	p.Release(lr)
}

func TestPoolStatsReflectsIdleCount(t *testing.T) {
	p := NewPool()
	p.AddCore(0)
	p.AddCore(1)

	lr := p.Get(0)
	lr.Run(func() {})
	lr.Wait()
	p.Release(lr)

	stats := p.Stats()
	if stats[0] != 1 {
		t.Fatalf("Stats()[0] = %d, want 1", stats[0])
	}
	if stats[1] != 0 {
		t.Fatalf("Stats()[1] = %d, want 0", stats[1])
	}
}
