package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/cli/watcher"
)

func newWaitCmd(c *cli) *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
		endpoint string
	)
	cmd := &cobra.Command{
		Use:   "wait <runtime-id|name:NAME>",
		Short: "Wait for a runtime or endpoint to become READY",
		Long: `Poll a runtime until it is READY. With --endpoint, poll that endpoint
instead until it is READY and serving the runtime's latest version.

Fails immediately when a failed state is observed and when the timeout
elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			b, err := c.backend(ctx, false)
			if err != nil {
				return err
			}
			id, err := b.resolveRuntime(ctx, args[0])
			if err != nil {
				return err
			}

			opts := c.waitOptions()
			if timeout > 0 {
				opts.Timeout = timeout
			}
			if interval > 0 {
				opts.Interval = interval
			}
			if !c.structured() {
				opts.OnPoll = watcher.PollPrinter(out)
			}

			if endpoint != "" {
				ep, err := b.endpoints.Get(ctx, id, endpoint)
				if err != nil {
					return err
				}
				ep, err = b.endpoints.WaitReady(ctx, id, endpoint, ep.ResolvedVersion(), opts)
				if err != nil {
					return err
				}
				if c.structured() {
					return c.writeStructured(out, ep)
				}
				fmt.Fprintf(out, "%s Endpoint %s is READY at version %s\n", format.StatusSymbol(true), ep.Name, ep.LiveVersion)
				return nil
			}

			rt, err := b.runtimes.WaitReady(ctx, id, opts)
			if err != nil {
				return err
			}
			if c.structured() {
				return c.writeStructured(out, rt)
			}
			fmt.Fprintf(out, "%s Runtime %s is READY at version %s\n", format.StatusSymbol(true), rt.ID, rt.Version)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "maximum time to wait (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between polls (default from config)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "wait for this endpoint instead of the runtime")
	return cmd
}
