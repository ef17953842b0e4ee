package main

import "github.com/spf13/cobra"

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <n>",
		Short: "Clone the base image into a new VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVMNumber(args)
			if err != nil {
				return err
			}
			return orc.Create(n)
		},
	}
}
