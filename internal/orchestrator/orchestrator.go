package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawctx"
	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/syncactivate"
	"github.com/joyshmitz/clawbox/internal/syncevent"
	"github.com/joyshmitz/clawbox/internal/tartrun"
	"github.com/joyshmitz/clawbox/internal/vmname"
	"github.com/joyshmitz/clawbox/internal/watcher"
)

// vmUserCreds builds the per-VM account credentials used for guest-side
// preflight probes outside of full sync activation.
func vmUserCreds(vm string, secrets *clawctx.Secrets) sshprep.Creds {
	return sshprep.Creds{User: vm, Password: secrets.VMUserPassword}
}

// Orchestrator composes every other component for a single CLI invocation.
type Orchestrator struct {
	Ctx      *clawctx.Context
	Locks    *lockmgr.Manager
	Watchers *watcher.Supervisor
	Sync     *syncactivate.Activator
	Events   *syncevent.Log
}

// New wires an Orchestrator from ctx, constructing the Lock Manager,
// Watcher Supervisor, Sync Activator, and Sync Event Log from ctx's paths
// and injected adapters.
func New(ctx *clawctx.Context, spawner watcher.Spawner) *Orchestrator {
	locks := lockmgr.New(ctx.HomeDir, ctx.Runtime)
	events := syncevent.Open(filepath.Join(ctx.LogsDir(), "sync-events.jsonl"), ctx.SyncEventLogMaxBytes())

	return &Orchestrator{
		Ctx:   ctx,
		Locks: locks,
		Watchers: &watcher.Supervisor{
			WatchersDir: ctx.WatchersDir(),
			LogsDir:     ctx.LogsDir(),
			StateDir:    ctx.StateDir,
			Runtime:     ctx.Runtime,
			Locks:       locks,
			Events:      events,
			Spawn:       spawner,
		},
		Sync:   syncactivate.New(ctx),
		Events: events,
	}
}

func (o *Orchestrator) name(n int) string {
	return vmname.Name(o.Ctx.Base, n)
}

// reconcile runs the startup reconciliation pass every verb but status/ip
// performs: watcher supervisor reconcile, then sync-activation reconcile.
func (o *Orchestrator) reconcile() error {
	if err := o.Ctx.EnsureStateDirs(); err != nil {
		return err
	}
	if err := o.Watchers.Reconcile(); err != nil {
		return err
	}
	return o.Sync.Reconcile()
}

func (o *Orchestrator) emit(vm, event, reason string, details map[string]interface{}) {
	o.Events.Append(syncevent.Event{
		Timestamp: time.Now().UTC(),
		VM:        vm,
		Event:     event,
		Actor:     syncevent.ActorOrchestrator,
		Reason:    reason,
		Details:   details,
	})
}

// acquireDeveloperLocks acquires the source/payload/signal-payload locks
// declared for vm, in that fixed order.
func (o *Orchestrator) acquireDeveloperLocks(ctx context.Context, vm string, paths Paths) error {
	if err := o.Locks.Acquire(ctx, lockmgr.KindOpenclawSource, vm, paths.Source); err != nil {
		return err
	}
	if err := o.Locks.Acquire(ctx, lockmgr.KindOpenclawPayload, vm, paths.Payload); err != nil {
		return err
	}
	if paths.SignalPayload != "" {
		if err := o.Locks.Acquire(ctx, lockmgr.KindSignalPayload, vm, paths.SignalPayload); err != nil {
			return err
		}
	}
	return nil
}

// sessionSpecsFromLocks builds the sync session specs for vm from whatever
// is currently locked, per spec.md §3 "Specs are built from the host paths
// currently locked for the VM."
func (o *Orchestrator) sessionSpecsFromLocks(vm string) []mutagenrun.SessionSpec {
	var specs []mutagenrun.SessionSpec

	if path, ok := o.Locks.PathFor(lockmgr.KindOpenclawSource, vm); ok {
		specs = append(specs, mutagenrun.SessionSpec{
			Kind:          "source",
			HostPath:      path,
			GuestPath:     mutagenrun.GuestOpenclawSource,
			IgnoreVCS:     true,
			IgnoredPaths:  []string{"node_modules", "dist", "build", ".next", "target"},
			ReadyRequired: true,
		})
	}
	if path, ok := o.Locks.PathFor(lockmgr.KindOpenclawPayload, vm); ok {
		specs = append(specs, mutagenrun.SessionSpec{
			Kind:          "payload",
			HostPath:      path,
			GuestPath:     mutagenrun.GuestOpenclawPayload,
			ReadyRequired: true,
		})
	}
	if path, ok := o.Locks.PathFor(lockmgr.KindSignalPayload, vm); ok {
		specs = append(specs, mutagenrun.SessionSpec{
			Kind:          "signal-payload",
			HostPath:      path,
			GuestPath:     mutagenrun.GuestSignalPayload,
			ReadyRequired: false,
		})
	}

	return specs
}

// activateSyncForDeveloper picks the auth mode per Testable Property 7
// (no marker yet => bootstrap_admin; marker already present => vm_user) and
// activates sync from vm's current lock set.
func (o *Orchestrator) activateSyncForDeveloper(vm string, markerExists bool) error {
	specs := o.sessionSpecsFromLocks(vm)
	if len(specs) == 0 {
		return nil
	}

	mode := syncactivate.AuthBootstrapAdmin
	if markerExists {
		mode = syncactivate.AuthVMUser
	}

	return o.Sync.Activate(vm, mode, specs)
}

// waitForRunning polls until the runtime reports vm running, failing fast
// if proc (the backgrounded runtime process, if any) exits before then —
// spec.md:155's "poll for the process to not exit prematurely and for the
// runtime to report running". A nil proc skips the premature-exit check;
// both callers (Launch and Up) pass the process returned by RunInBackground.
func (o *Orchestrator) waitForRunning(vm string, proc tartrun.Process, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if proc != nil {
			if code, exited := proc.Exited(); exited {
				return clawerr.New(clawerr.RuntimeExec, "%s exited prematurely before reporting running (exit code %d)", vm, *code)
			}
		}

		running, err := o.Ctx.Runtime.VMRunning(vm)
		if err == nil && running {
			return nil
		}
		if time.Now().After(deadline) {
			return clawerr.New(clawerr.Precondition, "%s did not report running within %s", vm, timeout)
		}
		time.Sleep(2 * time.Second)
	}
}

func (o *Orchestrator) waitForNotRunning(vm string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, err := o.Ctx.Runtime.VMRunning(vm)
		if err == nil && !running {
			return nil
		}
		if time.Now().After(deadline) {
			return clawerr.New(clawerr.Precondition, "%s did not stop within %s", vm, timeout)
		}
		time.Sleep(1 * time.Second)
	}
}

// translateCreateError appends a hint when the runtime's error mentions a
// hypervisor VM-count limit.
func translateCreateError(vm string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "too many") || strings.Contains(strings.ToLower(msg), "maximum number") {
		return clawerr.New(clawerr.RuntimeExec, "%s (hint: another VM may be holding virtualization resources; check `clawbox status`)", msg)
	}
	return err
}

// Create clones the base image into a new VM, failing if it already exists.
func (o *Orchestrator) Create(n int) error {
	if err := validateNumber(n); err != nil {
		return err
	}
	if err := o.reconcile(); err != nil {
		return err
	}

	vm := o.name(n)

	exists, err := o.Ctx.Runtime.VMExists(vm)
	if err != nil {
		return err
	}
	if exists {
		return clawerr.New(clawerr.Precondition, "VM '%s' already exists", vm)
	}

	if err := o.Ctx.Runtime.Clone(o.Ctx.BaseImage(), vm); err != nil {
		return translateCreateError(vm, err)
	}

	return nil
}

// IP prints the runtime-reported IP, failing if the VM is not running.
func (o *Orchestrator) IP(n int) (string, error) {
	if err := validateNumber(n); err != nil {
		return "", err
	}

	vm := o.name(n)
	running, err := o.Ctx.Runtime.VMRunning(vm)
	if err != nil {
		return "", err
	}
	if !running {
		return "", clawerr.New(clawerr.Precondition, "VM '%s' is not running", vm)
	}

	return o.Ctx.Runtime.IP(vm)
}
