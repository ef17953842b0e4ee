package main

import (
	"github.com/spf13/cobra"

	"github.com/joyshmitz/clawbox/internal/marker"
	"github.com/joyshmitz/clawbox/internal/orchestrator"
)

func newProvisionCmd() *cobra.Command {
	profile := &profileFlags{}
	features := &featureFlags{}
	var enableSignalPayload bool

	cmd := &cobra.Command{
		Use:   "provision <n>",
		Short: "Run the provisioning runner against a running VM and write its marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVMNumber(args)
			if err != nil {
				return err
			}
			developer, err := profile.resolve()
			if err != nil {
				return err
			}

			p := marker.ProfileStandard
			if developer {
				p = marker.ProfileDeveloper
			}

			return orc.Provision(orchestrator.ProvisionOptions{
				Number:              n,
				Profile:             p,
				Playwright:          features.playwright,
				Tailscale:           features.tailscale,
				SignalCli:           features.signalCli,
				EnableSignalPayload: enableSignalPayload,
				ReactivateSync:      true,
			})
		},
	}

	profile.register(cmd)
	features.register(cmd)
	cmd.Flags().BoolVar(&enableSignalPayload, "enable-signal-payload", false, "preflight-check the signal-cli payload mount before provisioning")

	return cmd
}
