package syncactivate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joyshmitz/clawbox/internal/clawctx"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/provisionrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

// fakeGuestKeys is a sshprep.KeyManager that lets a test decide whether a
// probed guest path is "visible" yet, without touching the network.
type fakeGuestKeys struct {
	autoVisible bool
	commands    []string
}

func (f *fakeGuestKeys) EnsureKeypair(dir string) (string, error) {
	return "ssh-ed25519 FAKE clawbox", nil
}

func (f *fakeGuestKeys) InstallAuthorizedKey(host string, creds sshprep.Creds, pubLine string) error {
	return nil
}

func (f *fakeGuestKeys) ProbeAndRun(host string, creds sshprep.Creds, cmd string) (string, error) {
	f.commands = append(f.commands, cmd)

	path := extractQuotedPath(cmd)
	if path == "" {
		return "", nil
	}
	if f.autoVisible {
		return "", nil
	}
	return "", fmt.Errorf("probe not visible: %s", path)
}

func extractQuotedPath(cmd string) string {
	first := strings.Index(cmd, `"`)
	if first < 0 {
		return ""
	}
	last := strings.LastIndex(cmd, `"`)
	if last <= first {
		return ""
	}
	return cmd[first+1 : last]
}

func newTestContext(t *testing.T) (*clawctx.Context, *tartrun.Fake, *mutagenrun.Fake) {
	t.Helper()
	dir := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)

	rt := tartrun.NewFake()
	sync := mutagenrun.NewFake()
	prov := provisionrun.NewFake()

	ctx, err := clawctx.New(dir, rt, prov, sync, sshprep.NewFake())
	if err != nil {
		t.Fatalf("clawctx.New: %v", err)
	}
	ctx.HomeDir = home

	if err := os.MkdirAll(filepath.Join(dir, ".clawbox"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	secrets := `{"vm_user_password":"vmpass","bootstrap_admin_password":"adminpass"}`
	if err := os.WriteFile(ctx.SecretsFile, []byte(secrets), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}

	return ctx, rt, sync
}

// Testable Property 7: auth-mode selection picks the account the caller
// asked for, not a hardcoded one.
func TestResolveCredsSelectsAccountByMode(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	a := New(ctx)

	bootstrap, err := a.resolveCreds("clawbox-1", AuthBootstrapAdmin)
	if err != nil {
		t.Fatalf("resolveCreds bootstrap_admin: %v", err)
	}
	if bootstrap.User != "admin" || bootstrap.Password != "adminpass" {
		t.Fatalf("unexpected bootstrap_admin creds: %+v", bootstrap)
	}

	vmUser, err := a.resolveCreds("clawbox-1", AuthVMUser)
	if err != nil {
		t.Fatalf("resolveCreds vm_user: %v", err)
	}
	if vmUser.User != "clawbox-1" || vmUser.Password != "vmpass" {
		t.Fatalf("unexpected vm_user creds: %+v", vmUser)
	}
}

// Testable Property 8: the readiness barrier always removes its host-side
// probe files, on both the success and the timeout path.
func TestReadinessBarrierCleansProbesOnSuccess(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	ctx.V.Set("sync-ready-timeout-seconds", 5)
	a := New(ctx)

	hostDir := t.TempDir()
	specs := []mutagenrun.SessionSpec{
		{Kind: "source", HostPath: hostDir, GuestPath: "/home/vm/src", ReadyRequired: true},
	}

	keys := &fakeGuestKeys{autoVisible: true}
	ctx.Keys = keys
	a.Ctx = ctx

	creds := sshprep.Creds{User: "clawbox-1", Password: "vmpass"}
	if err := a.readinessBarrier("clawbox-1", "10.0.0.5", creds, specs); err != nil {
		t.Fatalf("readinessBarrier: %v", err)
	}

	entries, err := os.ReadDir(hostDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".clawbox-sync-ready-") {
			t.Fatalf("expected probe %s to be removed after success", e.Name())
		}
	}
}

func TestReadinessBarrierCleansProbesOnTimeout(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	ctx.V.Set("sync-ready-timeout-seconds", 1)
	a := New(ctx)

	hostDir := t.TempDir()
	specs := []mutagenrun.SessionSpec{
		{Kind: "source", HostPath: hostDir, GuestPath: "/home/vm/src", ReadyRequired: true},
	}

	keys := &fakeGuestKeys{autoVisible: false}
	ctx.Keys = keys
	a.Ctx = ctx

	creds := sshprep.Creds{User: "clawbox-1", Password: "vmpass"}
	err := a.readinessBarrier("clawbox-1", "10.0.0.5", creds, specs)
	if err == nil {
		t.Fatal("expected readinessBarrier to fail when the probe never becomes visible")
	}
	if !strings.Contains(err.Error(), "sync readiness timed out") {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, readErr := os.ReadDir(hostDir)
	if readErr != nil {
		t.Fatalf("ReadDir: %v", readErr)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".clawbox-sync-ready-") {
			t.Fatalf("expected probe %s to be removed after timeout", e.Name())
		}
	}
}

func TestActivateDeactivateRoundTrip(t *testing.T) {
	ctx, rt, _ := newTestContext(t)
	ctx.V.Set("sync-ready-timeout-seconds", 5)
	rt.SetRunning("clawbox-1", true)
	rt.SetIP("clawbox-1", "10.0.0.5")

	keys := &fakeGuestKeys{autoVisible: true}
	ctx.Keys = keys
	a := New(ctx)

	hostDir := t.TempDir()
	specs := []mutagenrun.SessionSpec{
		{Kind: "source", HostPath: hostDir, GuestPath: "/home/vm/src", ReadyRequired: true},
	}

	if err := a.Activate("clawbox-1", AuthVMUser, specs); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	vms, err := listActiveVMs(ctx.MutagenStateDir())
	if err != nil {
		t.Fatalf("listActiveVMs: %v", err)
	}
	if len(vms) != 1 || vms[0] != "clawbox-1" {
		t.Fatalf("expected clawbox-1 registered, got %v", vms)
	}

	if err := a.Deactivate("clawbox-1"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	vms, err = listActiveVMs(ctx.MutagenStateDir())
	if err != nil {
		t.Fatalf("listActiveVMs after deactivate: %v", err)
	}
	if len(vms) != 0 {
		t.Fatalf("expected registry empty after deactivate, got %v", vms)
	}
}
