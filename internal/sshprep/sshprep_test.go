package sshprep

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRealEnsureKeypairIdempotent(t *testing.T) {
	dir := t.TempDir()
	r := New()

	pub1, err := r.EnsureKeypair(dir)
	if err != nil {
		t.Fatalf("EnsureKeypair: %v", err)
	}
	if pub1 == "" {
		t.Fatal("expected a non-empty authorized_keys line")
	}

	pub2, err := r.EnsureKeypair(dir)
	if err != nil {
		t.Fatalf("second EnsureKeypair: %v", err)
	}
	if pub1 != pub2 {
		t.Fatalf("EnsureKeypair not idempotent: %q != %q", pub1, pub2)
	}

	if _, err := os.Stat(filepath.Join(dir, "id_ed25519")); err != nil {
		t.Fatalf("private key missing: %v", err)
	}
}

func TestFakeEnsureKeypairIdempotent(t *testing.T) {
	f := NewFake()
	p1, _ := f.EnsureKeypair("/tmp/clawbox-1")
	p2, _ := f.EnsureKeypair("/tmp/clawbox-1")
	if p1 != p2 {
		t.Fatalf("fake keypair not idempotent: %q != %q", p1, p2)
	}
}

func TestFakeFailDial(t *testing.T) {
	f := NewFake()
	f.FailDial = map[string]bool{"10.0.0.5": true}

	if _, err := f.ProbeAndRun("10.0.0.5", Creds{User: "admin", Password: "x"}, "true"); err == nil {
		t.Fatal("expected ProbeAndRun to fail for the configured host")
	}
}
