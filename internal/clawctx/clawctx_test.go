package clawctx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/provisionrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, tartrun.NewFake(), provisionrun.NewFake(), mutagenrun.NewFake(), sshprep.NewFake())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSecretsMissingIsPrecondition(t *testing.T) {
	c := newTestContext(t)
	_, err := c.Secrets()
	var uerr *clawerr.UserFacingError
	if !errors.As(err, &uerr) || uerr.Kind != clawerr.Precondition {
		t.Fatalf("expected missing secrets file to be a Precondition error, got %v", err)
	}
}

func TestSecretsReadAndCache(t *testing.T) {
	c := newTestContext(t)
	if err := os.MkdirAll(filepath.Dir(c.SecretsFile), 0755); err != nil {
		t.Fatal(err)
	}
	contents := `{"vm_user_password":"pw1","bootstrap_admin_password":"pw2"}`
	if err := os.WriteFile(c.SecretsFile, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := c.Secrets()
	if err != nil {
		t.Fatalf("Secrets: %v", err)
	}
	if s.VMUserPassword != "pw1" || s.BootstrapAdminPassword != "pw2" {
		t.Fatalf("unexpected secrets: %+v", s)
	}

	// Mutate on disk; cached value should not change within this Context.
	if err := os.WriteFile(c.SecretsFile, []byte(`{"vm_user_password":"changed"}`), 0600); err != nil {
		t.Fatal(err)
	}
	s2, err := c.Secrets()
	if err != nil {
		t.Fatalf("Secrets (cached): %v", err)
	}
	if s2.VMUserPassword != "pw1" {
		t.Fatalf("expected cached secrets, got %+v", s2)
	}
}

func TestDefaultTunables(t *testing.T) {
	c := newTestContext(t)
	if c.BootstrapAdminUser() != "admin" {
		t.Fatalf("BootstrapAdminUser = %q, want admin", c.BootstrapAdminUser())
	}
	if c.LockRetryAttempts() != 8 {
		t.Fatalf("LockRetryAttempts = %d, want 8", c.LockRetryAttempts())
	}
	if c.SyncReadyTimeout().Seconds() != 60 {
		t.Fatalf("SyncReadyTimeout = %v, want 60s", c.SyncReadyTimeout())
	}
}
