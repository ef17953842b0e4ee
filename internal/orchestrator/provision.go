package orchestrator

import (
	"context"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/marker"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/provisionrun"
)

// Provision requires the VM to exist and be running, shells out to the
// provisioning runner, and writes the marker only on success.
func (o *Orchestrator) Provision(opts ProvisionOptions) error {
	if err := validateNumber(opts.Number); err != nil {
		return err
	}
	if err := validateEnableSignalPayload(opts.SignalCli, opts.EnableSignalPayload); err != nil {
		return err
	}

	vm := o.name(opts.Number)

	running, err := o.Ctx.Runtime.VMRunning(vm)
	if err != nil {
		return err
	}
	if !running {
		return clawerr.New(clawerr.Precondition, "VM '%s' is not running", vm)
	}

	if err := o.reconcile(); err != nil {
		return err
	}

	ip, err := o.Ctx.Runtime.IP(vm)
	if err != nil {
		return err
	}

	if opts.EnableSignalPayload {
		if err := o.signalPayloadPreflight(vm, ip); err != nil {
			return err
		}
	}

	runOpts := provisionrun.Options{
		Playwright:    opts.Playwright,
		Tailscale:     opts.Tailscale,
		SignalCli:     opts.SignalCli,
		SignalPayload: opts.EnableSignalPayload,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := o.Ctx.Provisioner.Provision(ctx, ip, runOpts); err != nil {
		return err
	}

	syncBackend := marker.SyncBackendNone
	if opts.Profile == marker.ProfileDeveloper {
		syncBackend = marker.SyncBackendMutagen
	}

	m := marker.Marker{
		VMName:        vm,
		Profile:       opts.Profile,
		Playwright:    opts.Playwright,
		Tailscale:     opts.Tailscale,
		SignalCli:     opts.SignalCli,
		SignalPayload: opts.EnableSignalPayload,
		SyncBackend:   syncBackend,
		ProvisionedAt: time.Now().UTC(),
	}
	if err := marker.Write(m, o.Ctx.MarkerPath(vm)); err != nil {
		return err
	}

	if opts.Profile == marker.ProfileDeveloper && opts.ReactivateSync {
		if err := o.activateSyncForDeveloper(vm, true); err != nil {
			return err
		}
	}

	return nil
}

// signalPayloadPreflight requires a locked signal-payload path and then
// checks, over SSH as the VM user, that the signal-payload mount path exists
// inside the guest. It writes no host-side file and does not check that any
// file written on the host has reached the guest.
func (o *Orchestrator) signalPayloadPreflight(vm, ip string) error {
	path, ok := o.Locks.PathFor(lockmgr.KindSignalPayload, vm)
	if !ok {
		return clawerr.New(clawerr.Precondition, "--enable-signal-payload requires a locked signal-cli payload path")
	}

	secrets, err := o.Ctx.Secrets()
	if err != nil {
		return err
	}

	creds := vmUserCreds(vm, secrets)
	_, err = o.Ctx.Keys.ProbeAndRun(ip, creds, "test -e "+mutagenrun.GuestSignalPayload)
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "signal-payload preflight failed for %s (locked path %s)", vm, path)
	}
	return nil
}
