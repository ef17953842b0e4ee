// Package syncactivate brings a developer VM's bidirectional sync sessions
// up and tears them down, including the readiness barrier that verifies a
// host-written probe file has propagated into the guest before control
// returns to the user (SPEC_FULL.md §4.5).
package syncactivate

import (
	"context"
	"fmt"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawctx"
	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/pkg/clawlog"
)

// AuthMode selects which account sync activation authenticates as.
type AuthMode string

const (
	AuthBootstrapAdmin AuthMode = "bootstrap_admin"
	AuthVMUser         AuthMode = "vm_user"
)

const ipResolveTimeout = 30 * time.Second
const ipResolvePollInterval = 2 * time.Second

// Activator performs sync activation/deactivation for a single Context.
type Activator struct {
	Ctx *clawctx.Context
}

func New(ctx *clawctx.Context) *Activator {
	return &Activator{Ctx: ctx}
}

func (a *Activator) resolveIP(vm string) (string, error) {
	deadline := time.Now().Add(ipResolveTimeout)
	var lastErr error

	for {
		ip, err := a.Ctx.Runtime.IP(vm)
		if err == nil && ip != "" {
			return ip, nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			if lastErr == nil {
				lastErr = fmt.Errorf("no IP address reported")
			}
			return "", clawerr.Wrap(clawerr.Precondition, lastErr, "could not resolve IP for %s", vm)
		}
		time.Sleep(ipResolvePollInterval)
	}
}

func (a *Activator) resolveCreds(vm string, mode AuthMode) (sshprep.Creds, error) {
	secrets, err := a.Ctx.Secrets()
	if err != nil {
		return sshprep.Creds{}, err
	}

	switch mode {
	case AuthBootstrapAdmin:
		return sshprep.Creds{User: a.Ctx.BootstrapAdminUser(), Password: secrets.BootstrapAdminPassword}, nil
	default:
		return sshprep.Creds{User: vm, Password: secrets.VMUserPassword}, nil
	}
}

// Activate runs the full 8-step sequence from SPEC_FULL.md §4.5.
func (a *Activator) Activate(vm string, mode AuthMode, specs []mutagenrun.SessionSpec) error {
	// 1. Resolve VM IP.
	ip, err := a.resolveIP(vm)
	if err != nil {
		return err
	}

	// 2. Resolve SSH credentials and probe.
	creds, err := a.resolveCreds(vm, mode)
	if err != nil {
		return err
	}
	if _, err := a.Ctx.Keys.ProbeAndRun(ip, creds, "true"); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "SSH preflight as '%s' failed", creds.User)
	}

	// 3. Generate keypair, install into authorized_keys.
	keyDir := a.Ctx.MutagenStateDir() + "/" + vm
	pubLine, err := a.Ctx.Keys.EnsureKeypair(keyDir)
	if err != nil {
		return err
	}
	if err := a.Ctx.Keys.InstallAuthorizedKey(ip, creds, pubLine); err != nil {
		return err
	}

	// 4. SSH alias file.
	sshAlias := aliasHost(vm)
	if err := writeAliasBlock(a.Ctx.HomeDir, vm, ip, creds.User, keyDir+"/id_ed25519"); err != nil {
		return err
	}

	// 5. Prepare guest paths.
	for _, spec := range specs {
		cmd := fmt.Sprintf(
			"if [ -L %q ]; then rm %q; fi; mkdir -p %q",
			spec.GuestPath, spec.GuestPath, spec.GuestPath,
		)
		if _, err := a.Ctx.Keys.ProbeAndRun(ip, creds, cmd); err != nil {
			return clawerr.Wrap(clawerr.Precondition, err, "could not prepare guest path %s", spec.GuestPath)
		}
	}

	// 6. Create sessions, flush.
	label := mutagenrun.Label(vm)
	if err := a.Ctx.Sync.Create(context.Background(), vm, sshAlias, specs); err != nil {
		return err
	}
	if err := a.Ctx.Sync.Flush(context.Background(), label); err != nil {
		clawlog.Warnf("sync flush for %s failed: %v", vm, err)
	}

	// 7. Readiness barrier.
	if err := a.readinessBarrier(vm, ip, creds, specs); err != nil {
		return err
	}

	// 8. Record in active-VMs registry.
	return addActiveVM(a.Ctx.MutagenStateDir(), vm)
}

// Deactivate terminates sessions, removes the alias block, and clears the
// registry. Failures are surfaced but must not prevent the caller from
// proceeding to release locks.
func (a *Activator) Deactivate(vm string) error {
	label := mutagenrun.Label(vm)

	var firstErr error
	if err := a.Ctx.Sync.Terminate(context.Background(), label); err != nil {
		firstErr = err
	}
	if err := removeAliasBlock(a.Ctx.HomeDir, vm); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := removeActiveVM(a.Ctx.MutagenStateDir(), vm); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// Reconcile tears down sync for any registered VM the runtime no longer
// reports running.
func (a *Activator) Reconcile() error {
	vms, err := listActiveVMs(a.Ctx.MutagenStateDir())
	if err != nil {
		return err
	}

	for _, vm := range vms {
		running, err := a.Ctx.Runtime.VMRunning(vm)
		if err != nil {
			continue
		}
		if !running {
			if err := a.Deactivate(vm); err != nil {
				clawlog.Warnf("syncactivate reconcile: could not deactivate %s: %v", vm, err)
			}
		}
	}

	return nil
}

func aliasHost(vm string) string {
	return "clawbox-mutagen-" + vm
}
