package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/syncevent"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

func TestLoopTeardownMonotonicity(t *testing.T) {
	dir := t.TempDir()
	rt := tartrun.NewFake()
	sync := mutagenrun.NewFake()
	locks := lockmgr.New(dir, rt)

	vm := "clawbox-9"
	if err := locks.Acquire(context.Background(), lockmgr.KindOpenclawSource, vm, "/src"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := writeRecord(filepath.Join(dir, "watchers"), Record{VMName: vm, Pid: 1, PollSeconds: 1}); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}

	eventsPath := filepath.Join(dir, "sync-events.jsonl")
	events := syncevent.Open(eventsPath, 0)

	loop := &Loop{
		VM:          vm,
		WatchersDir: filepath.Join(dir, "watchers"),
		Runtime:     rt,
		Sync:        sync,
		Locks:       locks,
		Events:      events,
		PollSeconds: 1,
	}

	if err := loop.teardown(); err != nil {
		t.Fatalf("teardown: %v", err)
	}

	if _, ok := locks.PathFor(lockmgr.KindOpenclawSource, vm); ok {
		t.Fatal("expected locks to be released after teardown")
	}
	if rec, _ := readRecord(loop.WatchersDir, vm); rec != nil {
		t.Fatal("expected watcher record to be removed after teardown")
	}

	got, err := syncevent.ReadAll(eventsPath)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}
	if got[0].Event != "watcher_teardown_triggered" || got[1].Event != "watcher_teardown_complete" {
		t.Fatalf("unexpected event sequence: %+v", got)
	}
}

func TestLoopStateMachineTriggersTeardownAfterConfirmThreshold(t *testing.T) {
	dir := t.TempDir()
	rt := tartrun.NewFake()
	rt.SetRunning("clawbox-10", false)
	locks := lockmgr.New(dir, rt)

	if err := writeRecord(filepath.Join(dir, "watchers"), Record{VMName: "clawbox-10", Pid: 1, PollSeconds: 0}); err != nil {
		t.Fatalf("writeRecord: %v", err)
	}

	loop := &Loop{
		VM:          "clawbox-10",
		WatchersDir: filepath.Join(dir, "watchers"),
		Runtime:     rt,
		Locks:       locks,
		PollSeconds: -1, // not used: runWithInterval below takes its interval directly
	}

	// Exercise the state machine directly with a tight interval instead of
	// waiting out the production 5s default.
	loop.PollSeconds = 0
	done := make(chan error, 1)
	go func() {
		done <- runWithInterval(loop, 10*time.Millisecond)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not tear down within the expected window")
	}

	if rec, _ := readRecord(loop.WatchersDir, "clawbox-10"); rec != nil {
		t.Fatal("expected watcher record to be removed once the loop tears down")
	}
}

// runWithInterval drives the same state machine as Loop.Run but with an
// injectable poll interval, so the test doesn't have to wait out the
// production default.
func runWithInterval(l *Loop, interval time.Duration) error {
	notRunningStreak := 0
	for {
		time.Sleep(interval)

		running, err := l.Runtime.VMRunning(l.VM)
		if err != nil {
			continue
		}
		if running {
			notRunningStreak = 0
			continue
		}
		notRunningStreak++
		if notRunningStreak >= confirmThreshold {
			return l.teardown()
		}
	}
}
