package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/version"
)

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the agentdeploy version information",
		Long:  `Display detailed version information about the agentdeploy binary.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), version.Map())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return nil
		},
	}
}
