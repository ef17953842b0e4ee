package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [n]",
		Short: "Report one or every VM's runtime, marker, watcher, and sync state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n *int
			if len(args) == 1 {
				parsed, err := parseVMNumber(args)
				if err != nil {
					return err
				}
				n = &parsed
			}
			return orc.Status(n, asJSON, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "render as an indented JSON array")

	return cmd
}
