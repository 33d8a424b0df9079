package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/mounttab/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Read()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", info.Module, info)
			return err
		},
	}
}
