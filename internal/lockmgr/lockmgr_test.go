package lockmgr

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/joyshmitz/clawbox/internal/tartrun"
)

func osReadDirLockRoot(t *testing.T, m *Manager, kind Kind) ([]os.DirEntry, error) {
	t.Helper()
	return os.ReadDir(m.kindRoot(kind))
}

func TestAcquireThenReacquireSameVMIsIdempotent(t *testing.T) {
	rt := tartrun.NewFake()
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/a"); err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}

	p, ok := m.PathFor(KindOpenclawSource, "clawbox-1")
	if !ok {
		t.Fatal("expected PathFor to find the lock")
	}
	if p == "" {
		t.Fatal("expected a non-empty path")
	}
}

func TestReacquireDifferentPathPrunesPriorLock(t *testing.T) {
	rt := tartrun.NewFake()
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/a"); err != nil {
		t.Fatalf("Acquire /a: %v", err)
	}
	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/b"); err != nil {
		t.Fatalf("Acquire /b: %v", err)
	}

	if _, ok := m.PathFor(KindOpenclawSource, "clawbox-1"); !ok {
		t.Fatal("expected a lock to remain")
	}

	// Property 2: only one lock directory for (kind, vm).
	count := 0
	entries, err := osReadDirLockRoot(t, m, KindOpenclawSource)
	if err != nil {
		t.Fatalf("read lock root: %v", err)
	}
	for range entries {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 lock directory, found %d", count)
	}
}

func TestAcquireFailsWhenOwnedByRunningVM(t *testing.T) {
	rt := tartrun.NewFake()
	rt.SetRunning("clawbox-1", true)
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/x"); err != nil {
		t.Fatalf("Acquire clawbox-1: %v", err)
	}
	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-2", "/x"); err == nil {
		t.Fatal("expected Acquire by a different VM to fail while owner is running")
	}
}

func TestAcquireReclaimsWhenOwnerNotRunning(t *testing.T) {
	rt := tartrun.NewFake()
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/x"); err != nil {
		t.Fatalf("Acquire clawbox-1: %v", err)
	}
	// clawbox-1 is not reported running (fake default), so clawbox-2 reclaims.
	if err := m.Acquire(ctx, KindOpenclawSource, "clawbox-2", "/x"); err != nil {
		t.Fatalf("expected reclaim to succeed: %v", err)
	}

	if _, ok := m.PathFor(KindOpenclawSource, "clawbox-1"); ok {
		t.Fatal("expected clawbox-1 to no longer hold the lock")
	}
	if _, ok := m.PathFor(KindOpenclawSource, "clawbox-2"); !ok {
		t.Fatal("expected clawbox-2 to hold the lock")
	}
}

func TestReleaseAllFor(t *testing.T) {
	rt := tartrun.NewFake()
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	_ = m.Acquire(ctx, KindOpenclawSource, "clawbox-1", "/src")
	_ = m.Acquire(ctx, KindOpenclawPayload, "clawbox-1", "/payload")
	_ = m.Acquire(ctx, KindOpenclawSource, "clawbox-2", "/other")

	if err := m.ReleaseAllFor("clawbox-1"); err != nil {
		t.Fatalf("ReleaseAllFor: %v", err)
	}

	if _, ok := m.PathFor(KindOpenclawSource, "clawbox-1"); ok {
		t.Fatal("expected clawbox-1's source lock to be released")
	}
	if _, ok := m.PathFor(KindOpenclawPayload, "clawbox-1"); ok {
		t.Fatal("expected clawbox-1's payload lock to be released")
	}
	if _, ok := m.PathFor(KindOpenclawSource, "clawbox-2"); !ok {
		t.Fatal("expected clawbox-2's lock to survive")
	}
}

func TestConcurrentAcquireBySameVMKeepsOneLockDir(t *testing.T) {
	rt := tartrun.NewFake()
	m := New(t.TempDir(), rt)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vm := "clawbox-racer"
			errs[i] = m.Acquire(ctx, KindOpenclawSource, vm, "/shared")
			_ = vm
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: Acquire failed: %v", i, err)
		}
	}

	// Property 2: exactly one lock directory survives re-acquiring by the
	// same VM concurrently.
	entries, err := osReadDirLockRoot(t, m, KindOpenclawSource)
	if err != nil {
		t.Fatalf("read lock root: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 lock directory after concurrent acquires, found %d", len(entries))
	}
}
