package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/preflight"
)

func newCheckCmd(c *cli) *cobra.Command {
	var image string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check credentials, permissions, role and bucket before deploying",
		Long: `Run every pre-deployment check and report each result with a hint on
how to fix it: caller identity, control plane access, the execution role and
its trust policy, the artifact bucket and, for container deployments, the
image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if image == "" {
				image = c.cfg.Runtime.ImageURI
			}

			b, err := c.backend(ctx, false)
			if err != nil {
				return err
			}
			results := b.checker.Run(ctx, preflight.Target{
				RoleARN:  c.cfg.Runtime.RoleARN,
				Bucket:   c.cfg.Runtime.Bucket,
				ImageURI: image,
			})

			if c.structured() {
				if err := c.writeStructured(out, results); err != nil {
					return err
				}
			} else {
				title := fmt.Sprintf("Pre-deployment checks (%s)", c.cfg.AWS.Region)
				format.WriteCheckReport(out, title, checkLines(results))
			}
			if preflight.Failed(results) {
				return fmt.Errorf("%d check(s) failed", countFailed(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "container image to verify (default from config)")
	return cmd
}

func checkLines(results []preflight.Result) []format.CheckLine {
	lines := make([]format.CheckLine, 0, len(results))
	for _, r := range results {
		status := format.CheckPass
		switch r.Status {
		case preflight.StatusFail:
			status = format.CheckFail
		case preflight.StatusWarn, preflight.StatusSkip:
			status = format.CheckWarn
		}
		lines = append(lines, format.CheckLine{Name: r.Name, Status: status, Detail: r.Detail, Hint: r.Hint})
	}
	return lines
}

func countFailed(results []preflight.Result) int {
	n := 0
	for _, r := range results {
		if r.Status == preflight.StatusFail {
			n++
		}
	}
	return n
}
