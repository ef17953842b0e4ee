package tartrun

import "testing"

func TestFakeCloneThenRunThenRunning(t *testing.T) {
	f := NewFake()

	if err := f.Clone("ghcr.io/cirruslabs/macos-sequoia-base:latest", "clawbox-1"); err != nil {
		t.Fatalf("Clone: %v", err)
	}

	exists, err := f.VMExists("clawbox-1")
	if err != nil || !exists {
		t.Fatalf("VMExists = %v, %v; want true, nil", exists, err)
	}

	running, err := f.VMRunning("clawbox-1")
	if err != nil || running {
		t.Fatalf("VMRunning = %v, %v; want false, nil", running, err)
	}

	proc, err := f.RunInBackground("clawbox-1", []string{"--no-graphics"}, "/tmp/clawbox-1.log")
	if err != nil {
		t.Fatalf("RunInBackground: %v", err)
	}

	running, err = f.VMRunning("clawbox-1")
	if err != nil || !running {
		t.Fatalf("VMRunning after start = %v, %v; want true, nil", running, err)
	}

	if code, exited := proc.Exited(); exited {
		t.Fatalf("Exited = %v, true; want still running", code)
	}
}

func TestFakeCloneDuplicateFails(t *testing.T) {
	f := NewFake()
	if err := f.Clone("base", "clawbox-2"); err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if err := f.Clone("base", "clawbox-2"); err == nil {
		t.Fatal("expected second Clone of the same name to fail")
	}
}

func TestFakeIPMissingFails(t *testing.T) {
	f := NewFake()
	if _, err := f.IP("clawbox-3"); err == nil {
		t.Fatal("expected IP on unknown VM to fail")
	}
}

func TestFakeKillProcessStopsVM(t *testing.T) {
	f := NewFake()
	_ = f.Clone("base", "clawbox-4")
	proc, err := f.RunInBackground("clawbox-4", nil, "/tmp/clawbox-4.log")
	if err != nil {
		t.Fatalf("RunInBackground: %v", err)
	}

	if err := f.KillProcess("clawbox-4", 1); err != nil {
		t.Fatalf("KillProcess: %v", err)
	}

	if code, exited := proc.Exited(); !exited || code == nil || *code != 1 {
		t.Fatalf("Exited = %v, %v; want 1, true", code, exited)
	}

	running, _ := f.VMRunning("clawbox-4")
	if running {
		t.Fatal("expected VM to be stopped after KillProcess")
	}
}

func TestFakeMissingBinary(t *testing.T) {
	f := NewFake()
	f.MissingBinary = true

	if _, err := f.VMExists("clawbox-5"); err == nil {
		t.Fatal("expected MissingBinary to surface an error")
	}
}
