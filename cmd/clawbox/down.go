package main

import "github.com/spf13/cobra"

func newDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down <n>",
		Short: "Stop a VM and release its watcher, sync sessions, and locks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVMNumber(args)
			if err != nil {
				return err
			}
			return orc.Down(n)
		},
	}
}
