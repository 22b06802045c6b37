package tlocal

import (
	"runtime"
	"sync"
	"testing"
)

func TestBindIsPerOSThread(t *testing.T) {
	var wg sync.WaitGroup
	results := make(chan int, 2)
	for _, id := range []int{1, 2} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			Bind(id)
			defer Unbind()
			got, ok := WorkerID()
			if !ok {
				t.Errorf("worker %d: no binding observed", id)
				return
			}
			results <- got
		}()
	}
	wg.Wait()
	close(results)
	seen := map[int]bool{}
	for v := range results {
		seen[v] = true
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected bindings for both workers, got %v", seen)
	}
}

func TestMustWorkerIDPanicsWithoutBinding(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unbound OS thread")
		}
	}()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	Unbind()
	MustWorkerID()
}
