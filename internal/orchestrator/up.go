package orchestrator

import (
	"context"
	"fmt"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/marker"
)

// Up is the central verb: create-or-reuse a VM and bring it to the
// requested provisioned state, per the five-way case split in
// SPEC_FULL.md §4.7 / spec.md §4.6.
func (o *Orchestrator) Up(opts UpOptions) error {
	if err := validateNumber(opts.Number); err != nil {
		return err
	}
	if err := validateSignalPayload(opts.SignalCli, opts.Paths.SignalPayload); err != nil {
		return err
	}
	if opts.Developer {
		if err := validateDeveloperPaths(opts.Paths); err != nil {
			return err
		}
	}
	if _, err := o.Ctx.Secrets(); err != nil {
		return err
	}

	if err := o.reconcile(); err != nil {
		return err
	}

	vm := o.name(opts.Number)

	exists, err := o.Ctx.Runtime.VMExists(vm)
	if err != nil {
		return err
	}

	profile := marker.ProfileStandard
	if opts.Developer {
		profile = marker.ProfileDeveloper
	}

	if !exists {
		return o.upFromScratch(opts, vm, profile)
	}

	m, err := marker.Read(o.Ctx.MarkerPath(vm))
	if err != nil {
		return err
	}

	if m == nil {
		return clawerr.New(clawerr.Precondition, "VM '%s' exists with no provision marker; run 'recreate' instead", vm)
	}

	if marker.IsLegacyDeveloper(*m) {
		return clawerr.New(clawerr.LegacyMarker, "'%s' has a legacy provision marker format (missing sync_backend). Recreate the VM instead.", vm)
	}

	if !marker.Matches(*m, opts.markerOptions()) {
		return clawerr.New(clawerr.MarkerMismatch, "Requested options do not match the existing provision marker for '%s'. Recreate the VM instead.", vm)
	}

	fmt.Printf("Provision marker found for '%s'; skipping provisioning.\n", vm)

	if err := o.acquireDeveloperLocksIfNeeded(opts, vm); err != nil {
		return err
	}

	running, err := o.Ctx.Runtime.VMRunning(vm)
	if err != nil {
		return err
	}
	if !running {
		proc, err := o.Ctx.Runtime.RunInBackground(vm, nil, o.Ctx.LogsDir()+"/"+vm+"-run.log")
		if err != nil {
			return err
		}
		if err := o.waitForRunning(vm, proc, o.Ctx.RunningPollTimeout()); err != nil {
			return err
		}
	}

	if _, err := o.Watchers.Start(vm, o.Ctx.WatcherPollSeconds()); err != nil {
		return err
	}

	if opts.Developer {
		if err := o.activateSyncForDeveloper(vm, true); err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) acquireDeveloperLocksIfNeeded(opts UpOptions, vm string) error {
	if !opts.Developer {
		return nil
	}
	return o.acquireDeveloperLocks(context.Background(), vm, opts.Paths)
}

// upFromScratch runs: create -> headless launch -> provision -> stop -> GUI
// relaunch, emitting the relaunch delimiter after first-run provisioning.
func (o *Orchestrator) upFromScratch(opts UpOptions, vm string, profile marker.Profile) error {
	if err := o.Create(opts.Number); err != nil {
		return err
	}

	if err := o.Launch(LaunchOptions{
		Number:   opts.Number,
		Profile:  profile,
		Paths:    opts.Paths,
		Headless: true,
	}); err != nil {
		return err
	}

	if err := o.Provision(ProvisionOptions{
		Number:         opts.Number,
		Profile:        profile,
		Playwright:     opts.Playwright,
		Tailscale:      opts.Tailscale,
		SignalCli:      opts.SignalCli,
		ReactivateSync: false,
	}); err != nil {
		return err
	}

	if err := o.Ctx.Runtime.Stop(vm); err != nil {
		return err
	}
	if err := o.waitForNotRunning(vm, o.Ctx.StopPollTimeout()); err != nil {
		return err
	}

	fmt.Println("Provisioning completed; relaunching")

	return o.Launch(LaunchOptions{
		Number:   opts.Number,
		Profile:  profile,
		Paths:    opts.Paths,
		Headless: false,
	})
}
