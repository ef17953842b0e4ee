package sshprep

import (
	"fmt"
	"path/filepath"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// Fake is an in-memory KeyManager for tests: no real key material, no real
// network, just enough bookkeeping to assert sequencing.
type Fake struct {
	Keypairs  map[string]string // dir -> pub line
	Installed map[string]bool   // host+user -> installed
	Commands  []string          // every ProbeAndRun cmd, in order
	FailDial  map[string]bool   // host -> fail
	Replies   map[string]string // host -> output to return from ProbeAndRun
}

func NewFake() *Fake {
	return &Fake{
		Keypairs:  map[string]string{},
		Installed: map[string]bool{},
	}
}

func (f *Fake) EnsureKeypair(dir string) (string, error) {
	if pub, ok := f.Keypairs[dir]; ok {
		return pub, nil
	}
	pub := fmt.Sprintf("ssh-ed25519 FAKE%s clawbox", filepath.Base(dir))
	f.Keypairs[dir] = pub
	return pub, nil
}

func (f *Fake) ProbeAndRun(host string, creds Creds, cmd string) (string, error) {
	if f.FailDial[host] {
		return "", clawerr.New(clawerr.Precondition, "SSH preflight as '%s' failed: connection refused", creds.User)
	}
	f.Commands = append(f.Commands, cmd)
	return f.Replies[host], nil
}

func (f *Fake) InstallAuthorizedKey(host string, creds Creds, pubLine string) error {
	if f.FailDial[host] {
		return clawerr.New(clawerr.Precondition, "SSH preflight as '%s' failed: connection refused", creds.User)
	}
	f.Installed[host+"|"+creds.User] = true
	return nil
}

var _ KeyManager = (*Fake)(nil)
