package syncevent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-events.jsonl")
	l := Open(path, 0)

	e1 := Event{Timestamp: time.Now().UTC(), VM: "clawbox-1", Event: "teardown_start", Actor: ActorWatcher, Reason: "vm_not_running_confirmed"}
	e2 := Event{Timestamp: time.Now().UTC(), VM: "clawbox-1", Event: "teardown_ok", Actor: ActorWatcher, Reason: "vm_not_running_confirmed"}

	if err := l.Append(e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := l.Append(e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}

	got, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Event != "teardown_start" || got[1].Event != "teardown_ok" {
		t.Fatalf("unexpected event order: %+v", got)
	}
}

func TestRotationPreservesPriorBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-events.jsonl")
	l := Open(path, 10) // tiny ceiling forces rotation on the very next append

	e := Event{Timestamp: time.Now().UTC(), VM: "clawbox-1", Event: "watcher_teardown_triggered", Actor: ActorWatcher, Reason: "vm_not_running_confirmed"}
	if err := l.Append(e); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := l.Append(e); err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	backup := path + ".1"
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("expected rotation backup to exist: %v", err)
	}

	backupEvents, err := ReadAll(backup)
	if err != nil {
		t.Fatalf("ReadAll backup: %v", err)
	}
	if len(backupEvents) != 1 {
		t.Fatalf("expected 1 event preserved in backup, got %d", len(backupEvents))
	}

	activeEvents, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll active: %v", err)
	}
	if len(activeEvents) != 1 {
		t.Fatalf("expected 1 event in the new active file, got %d", len(activeEvents))
	}
}

func TestEventHasMinimumFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync-events.jsonl")
	l := Open(path, 0)

	if err := l.Append(Event{Timestamp: time.Now().UTC(), VM: "clawbox-1", Event: "x", Actor: ActorOrchestrator, Reason: "y"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	e := events[0]
	if e.VM == "" || e.Event == "" || e.Actor == "" || e.Reason == "" || e.Timestamp.IsZero() {
		t.Fatalf("event missing minimum fields: %+v", e)
	}
}
