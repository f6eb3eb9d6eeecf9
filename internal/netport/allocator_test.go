package netport

import (
	"errors"
	"sync"
	"testing"
)

func newTestAllocator(t *testing.T, min, max int) *Allocator {
	t.Helper()
	a, err := New(min, max)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	// Keep tests independent of the host's actual socket state.
	a.probe = func(int) bool { return false }
	return a
}

func TestAllocateScansRangeFromLowEnd(t *testing.T) {
	a := newTestAllocator(t, 40000, 40002)

	got := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		port, err := a.Allocate("res-1")
		if err != nil {
			t.Fatalf("Allocate %d returned error: %v", i, err)
		}
		got = append(got, port)
	}
	want := []int{40000, 40001, 40002}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("allocation %d: got %d, want %d", i, got[i], want[i])
		}
	}

	if _, err := a.Allocate("res-2"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestReleaseMakesPortReusable(t *testing.T) {
	a := newTestAllocator(t, 41000, 41001)

	first, err := a.Allocate("res-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	second, err := a.Allocate("res-2")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	a.Release(first)
	reused, err := a.Allocate("res-3")
	if err != nil {
		t.Fatalf("Allocate after release returned error: %v", err)
	}
	if reused != first {
		t.Fatalf("expected released port %d to be reused, got %d", first, reused)
	}
	if reused == second {
		t.Fatalf("allocated port %d collides with an active lease", reused)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := newTestAllocator(t, 42000, 42000)
	port, err := a.Allocate("res-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	a.Release(port)
	a.Release(port)
	if _, err := a.Allocate("res-2"); err != nil {
		t.Fatalf("Allocate after double release returned error: %v", err)
	}
}

func TestAllocateSkipsHostBoundPorts(t *testing.T) {
	a := newTestAllocator(t, 43000, 43002)
	a.probe = func(port int) bool { return port == 43000 }

	port, err := a.Allocate("res-1")
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	if port != 43001 {
		t.Fatalf("expected host-bound 43000 to be skipped, got %d", port)
	}
}

func TestConcurrentAllocationsAreDistinct(t *testing.T) {
	const workers = 32
	a := newTestAllocator(t, 44000, 44000+workers-1)

	var wg sync.WaitGroup
	results := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			port, err := a.Allocate("res")
			if err != nil {
				t.Errorf("Allocate returned error: %v", err)
				return
			}
			results <- port
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for port := range results {
		if seen[port] {
			t.Fatalf("port %d was leased twice", port)
		}
		seen[port] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d distinct ports, got %d", workers, len(seen))
	}
}

func TestLeasesSnapshot(t *testing.T) {
	a := newTestAllocator(t, 45000, 45002)
	if _, err := a.Allocate("res-a"); err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}
	if _, err := a.Allocate("res-b"); err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	leases := a.Leases()
	if len(leases) != 2 {
		t.Fatalf("expected 2 leases, got %d", len(leases))
	}
	if leases[0].Port != 45000 || leases[0].ResourceID != "res-a" {
		t.Fatalf("unexpected first lease: %+v", leases[0])
	}
	if leases[1].Port != 45001 || leases[1].ResourceID != "res-b" {
		t.Fatalf("unexpected second lease: %+v", leases[1])
	}
}
