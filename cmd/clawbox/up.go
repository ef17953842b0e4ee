package main

import (
	"github.com/spf13/cobra"

	"github.com/joyshmitz/clawbox/internal/orchestrator"
)

// upFlags bundles everything up and recreate share.
type upFlags struct {
	number   int
	profile  profileFlags
	paths    pathFlags
	features featureFlags
}

func (f *upFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.number, "number", 0, "VM number (alternative to the positional argument)")
	f.profile.register(cmd)
	f.paths.register(cmd)
	f.features.register(cmd)
}

func (f *upFlags) resolveOptions(args []string) (orchestrator.UpOptions, error) {
	n := f.number
	if len(args) == 1 {
		parsed, err := parseVMNumber(args)
		if err != nil {
			return orchestrator.UpOptions{}, err
		}
		n = parsed
	}

	developer, err := f.profile.resolve()
	if err != nil {
		return orchestrator.UpOptions{}, err
	}

	return orchestrator.UpOptions{
		Number:     n,
		Developer:  developer,
		Paths:      f.paths.paths(),
		Playwright: f.features.playwright,
		Tailscale:  f.features.tailscale,
		SignalCli:  f.features.signalCli,
	}, nil
}

func newUpCmd() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up [n]",
		Short: "Create-or-reuse a VM and bring it to the requested provisioned state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.resolveOptions(args)
			if err != nil {
				return err
			}
			return orc.Up(opts)
		},
	}

	flags.register(cmd)

	return cmd
}
