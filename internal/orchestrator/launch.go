package orchestrator

import (
	"context"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/marker"
)

// Launch validates options, then either refreshes an already-running VM or
// acquires locks, spawns the runtime, and activates sync (developer only).
func (o *Orchestrator) Launch(opts LaunchOptions) error {
	if err := validateNumber(opts.Number); err != nil {
		return err
	}
	if opts.Profile == marker.ProfileDeveloper {
		if err := validateDeveloperPaths(opts.Paths); err != nil {
			return err
		}
	}

	vm := o.name(opts.Number)

	// Validate before any lock/marker touch: VM must already exist.
	exists, err := o.Ctx.Runtime.VMExists(vm)
	if err != nil {
		return err
	}
	if !exists {
		return clawerr.New(clawerr.Precondition, "VM '%s' does not exist; run 'create' first", vm)
	}

	if err := o.reconcile(); err != nil {
		return err
	}

	running, err := o.Ctx.Runtime.VMRunning(vm)
	if err != nil {
		return err
	}

	markerPath := o.Ctx.MarkerPath(vm)
	m, err := marker.Read(markerPath)
	if err != nil {
		return err
	}

	if running {
		if opts.Profile == marker.ProfileDeveloper {
			if err := o.acquireDeveloperLocks(context.Background(), vm, opts.Paths); err != nil {
				return err
			}
			if err := o.activateSyncForDeveloper(vm, m != nil); err != nil {
				return err
			}
		}
		if _, err := o.Watchers.Start(vm, o.Ctx.WatcherPollSeconds()); err != nil {
			return err
		}
		return nil
	}

	if opts.Profile == marker.ProfileDeveloper {
		if err := o.acquireDeveloperLocks(context.Background(), vm, opts.Paths); err != nil {
			return err
		}
	}

	args := []string{}
	if opts.Headless {
		args = append(args, "--no-graphics")
	}

	logPath := o.Ctx.LogsDir() + "/" + vm + "-run.log"
	proc, err := o.Ctx.Runtime.RunInBackground(vm, args, logPath)
	if err != nil {
		return err
	}

	if err := o.waitForRunning(vm, proc, o.Ctx.RunningPollTimeout()); err != nil {
		return err
	}

	if _, err := o.Watchers.Start(vm, o.Ctx.WatcherPollSeconds()); err != nil {
		return err
	}

	if opts.Profile == marker.ProfileDeveloper {
		// No marker yet on a from-scratch launch means bootstrap_admin auth
		// (Testable Property 7), unless this is a relaunch after a prior
		// provision wrote one.
		if err := o.activateSyncForDeveloper(vm, m != nil); err != nil {
			return err
		}
	}

	return nil
}
