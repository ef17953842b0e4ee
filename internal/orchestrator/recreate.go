package orchestrator

// Recreate tears the VM all the way down and brings it back with Up. A
// missing VM is not an error for the down/delete phases.
func (o *Orchestrator) Recreate(opts UpOptions) error {
	if err := validateNumber(opts.Number); err != nil {
		return err
	}

	if err := o.Down(opts.Number); err != nil {
		return err
	}
	if err := o.Delete(opts.Number); err != nil {
		return err
	}
	return o.Up(opts)
}
