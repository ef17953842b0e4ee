package orchestrator

// Down stops vm n and releases its resources, emitting teardown_start/
// teardown_ok event pairs at each phase. A VM that does not exist still
// gets its locks cleaned up rather than erroring.
func (o *Orchestrator) Down(n int) error {
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
		o.emit(vm, "teardown_start", "_stop_vm_and_wait", nil)

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

		o.emit(vm, "teardown_ok", "_stop_vm_and_wait", nil)
	}

	o.emit(vm, "teardown_start", "down_vm", nil)

	if _, err := o.Watchers.Stop(vm, 0); err != nil {
		return err
	}

	if err := o.Sync.Deactivate(vm); err != nil {
		// Deactivation failures must not prevent lock release.
		_ = err
	}

	if err := o.Locks.ReleaseAllFor(vm); err != nil {
		return err
	}

	o.emit(vm, "teardown_ok", "down_vm", nil)

	return nil
}
