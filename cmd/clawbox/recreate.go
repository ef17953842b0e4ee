package main

import "github.com/spf13/cobra"

func newRecreateCmd() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "recreate [n]",
		Short: "Tear a VM all the way down and bring it back with up",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.resolveOptions(args)
			if err != nil {
				return err
			}
			return orc.Recreate(opts)
		},
	}

	flags.register(cmd)

	return cmd
}
