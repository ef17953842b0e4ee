package orchestrator

import (
	"time"

	"github.com/joyshmitz/clawbox/internal/marker"
)

// Delete stops (bounded), deletes, waits for absence, removes the marker,
// and releases locks. A VM that does not exist is not an error.
func (o *Orchestrator) Delete(n int) error {
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
		running, err := o.Ctx.Runtime.VMRunning(vm)
		if err != nil {
			return err
		}
		if running {
			if err := o.Ctx.Runtime.Stop(vm); err != nil {
				return err
			}
			if err := o.waitForNotRunning(vm, o.Ctx.StopPollTimeout()); err != nil {
				return err
			}
		}

		if err := o.Ctx.Runtime.Delete(vm); err != nil {
			return err
		}

		if err := o.waitForAbsence(vm, o.Ctx.StopPollTimeout()); err != nil {
			return err
		}
	}

	if err := marker.Delete(o.Ctx.MarkerPath(vm)); err != nil {
		return err
	}

	return o.Locks.ReleaseAllFor(vm)
}

// waitForAbsence polls until the runtime no longer lists vm at all, for at
// most timeout. It returns nil either way: a vm still listed when the
// timeout elapses is not reported as an error.
func (o *Orchestrator) waitForAbsence(vm string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		exists, err := o.Ctx.Runtime.VMExists(vm)
		if err == nil && !exists {
			return nil
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(1 * time.Second)
	}
}
