package main

import (
	"github.com/spf13/cobra"

	"github.com/joyshmitz/clawbox/internal/marker"
	"github.com/joyshmitz/clawbox/internal/orchestrator"
)

func newLaunchCmd() *cobra.Command {
	profile := &profileFlags{}
	paths := &pathFlags{}
	var headless bool

	cmd := &cobra.Command{
		Use:   "launch <n>",
		Short: "Launch an existing VM, optionally syncing developer paths",
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

			return orc.Launch(orchestrator.LaunchOptions{
				Number:   n,
				Profile:  p,
				Paths:    paths.paths(),
				Headless: headless,
			})
		},
	}

	profile.register(cmd)
	paths.register(cmd)
	cmd.Flags().BoolVar(&headless, "headless", false, "launch without graphics")

	return cmd
}
