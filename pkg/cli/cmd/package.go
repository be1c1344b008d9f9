package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/utils"
)

func newPackageCmd(c *cli) *cobra.Command {
	var (
		sourceDir   string
		promptFile  string
		output      string
		installDeps bool
	)
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Build the code bundle without deploying it",
		Long: `Build the zip bundle a deployment would upload: the agent sources,
optionally their dependencies, and the system prompt stored as
system_prompt.txt. The result can be deployed later with deploy --zip.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.packageOptions(sourceDir, promptFile, installDeps, output)
			bundle, err := c.newPackager().Build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if c.structured() {
				return c.writeStructured(out, bundle)
			}
			fmt.Fprintf(out, "%s Bundle created\n", format.StatusSymbol(true))
			fmt.Fprintln(out, format.Label("Path", bundle.Path))
			fmt.Fprintln(out, format.Label("Size", utils.HumanBytes(bundle.Size)))
			fmt.Fprintln(out, format.Label("Files", fmt.Sprint(bundle.Files)))
			fmt.Fprintln(out, format.Label("Digest", bundle.Digest))
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source", "", "agent source directory (default from config)")
	cmd.Flags().StringVar(&promptFile, "prompt", "", "system prompt file to include")
	cmd.Flags().StringVar(&output, "output", "", "bundle path (default in the temp directory)")
	cmd.Flags().BoolVar(&installDeps, "install-deps", false, "install requirements into the bundle")
	return cmd
}
