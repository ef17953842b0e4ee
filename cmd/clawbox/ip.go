package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ip <n>",
		Short: "Print a running VM's IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseVMNumber(args)
			if err != nil {
				return err
			}
			ip, err := orc.IP(n)
			if err != nil {
				return err
			}
			fmt.Println(ip)
			return nil
		},
	}
}
