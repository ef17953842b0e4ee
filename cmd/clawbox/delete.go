package main

import "github.com/spf13/cobra"

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n>",
		Short: "Delete a VM's disk image and provision marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVMNumber(args)
			if err != nil {
				return err
			}
			return orc.Delete(n)
		},
	}
}
