package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/cli/watcher"
	"github.com/rzbill/agentdeploy/pkg/endpoint"
	"github.com/rzbill/agentdeploy/pkg/types"
)

type endpointOptions struct {
	description string
	noWait      bool
}

func newEndpointCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "endpoint",
		Aliases: []string{"endpoints", "ep"},
		Short:   "Manage runtime endpoints",
		Long: `Create, repoint, inspect and delete the named endpoints of a runtime.

The DEFAULT endpoint is managed by the service and cannot be repointed or
deleted.`,
	}

	cmd.AddCommand(
		newEndpointCreateCmd(c),
		newEndpointUpdateCmd(c),
		newEndpointGetCmd(c),
		newEndpointListCmd(c),
		newEndpointDeleteCmd(c),
	)
	return cmd
}

func addEndpointFlags(cmd *cobra.Command, opts *endpointOptions) {
	cmd.Flags().StringVar(&opts.description, "description", "", "endpoint description")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "return without waiting for the endpoint to become READY")
}

func newEndpointCreateCmd(c *cli) *cobra.Command {
	opts := &endpointOptions{}
	cmd := &cobra.Command{
		Use:   "create <runtime-id|name:NAME> <version> [endpoint-name]",
		Short: "Create an endpoint pointing at a version",
		Long: `Create an endpoint pointing at a runtime version. Without a name one is
generated from the runtime id and the current time.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := types.ParseVersion(args[1])
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 3 {
				name = args[2]
			}
			return c.runEndpointChange(cmd, args[0], name, version, opts, true)
		},
	}
	addEndpointFlags(cmd, opts)
	return cmd
}

func newEndpointUpdateCmd(c *cli) *cobra.Command {
	opts := &endpointOptions{}
	cmd := &cobra.Command{
		Use:   "update <runtime-id|name:NAME> <endpoint-name> <version>",
		Short: "Repoint an endpoint at another version",
		Long: `Repoint an endpoint. When the version does not exist the command fails
and the endpoint keeps serving its previous version.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := types.ParseVersion(args[2])
			if err != nil {
				return err
			}
			return c.runEndpointChange(cmd, args[0], args[1], version, opts, false)
		},
	}
	addEndpointFlags(cmd, opts)
	return cmd
}

func (c *cli) runEndpointChange(cmd *cobra.Command, runtimeArg, name string, version types.Version, opts *endpointOptions, create bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	b, err := c.backend(ctx, false)
	if err != nil {
		return err
	}
	id, err := b.resolveRuntime(ctx, runtimeArg)
	if err != nil {
		return err
	}

	var ep *types.Endpoint
	if create {
		if name == "" {
			name = endpoint.GeneratedName(id, time.Now())
		}
		ep, err = b.endpoints.Create(ctx, id, name, version, opts.description)
	} else {
		ep, err = b.endpoints.Update(ctx, id, name, version, opts.description)
	}
	if err != nil {
		return err
	}

	if !opts.noWait {
		wait := c.waitOptions()
		if !c.structured() {
			fmt.Fprintf(out, "Waiting for endpoint %s to serve version %s\n", name, version)
			wait.OnPoll = watcher.PollPrinter(out)
		}
		ep, err = b.endpoints.WaitReady(ctx, id, name, version, wait)
		if err != nil {
			return err
		}
	}

	if c.structured() {
		return c.writeStructured(out, ep)
	}
	writeEndpoint(out, ep)
	return nil
}

func writeEndpoint(w io.Writer, ep *types.Endpoint) {
	fmt.Fprintln(w, format.Label("Endpoint", ep.Name))
	fmt.Fprintln(w, format.Label("ARN", ep.ARN))
	fmt.Fprintln(w, format.Label("Runtime", string(ep.RuntimeID)))
	fmt.Fprintln(w, format.Label("Live version", ep.LiveVersion.String()))
	if !ep.TargetVersion.IsZero() && ep.TargetVersion != ep.LiveVersion {
		fmt.Fprintln(w, format.Label("Target version", ep.TargetVersion.String()))
	}
	fmt.Fprintln(w, format.Label("Status", format.StatusLabel(string(ep.Status))))
	if ep.FailureReason != "" {
		fmt.Fprintln(w, format.Label("Reason", ep.FailureReason))
	}
	if ep.Description != "" {
		fmt.Fprintln(w, format.Label("Description", ep.Description))
	}
}

func newEndpointGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <runtime-id|name:NAME> <endpoint-name>",
		Short: "Show one endpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := c.backend(ctx, false)
			if err != nil {
				return err
			}
			id, err := b.resolveRuntime(ctx, args[0])
			if err != nil {
				return err
			}
			ep, err := b.endpoints.Get(ctx, id, args[1])
			if err != nil {
				return err
			}
			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), ep)
			}
			writeEndpoint(cmd.OutOrStdout(), ep)
			return nil
		},
	}
}

func newEndpointListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list <runtime-id|name:NAME>",
		Aliases: []string{"ls"},
		Short:   "List the endpoints of a runtime",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := c.backend(ctx, false)
			if err != nil {
				return err
			}
			id, err := b.resolveRuntime(ctx, args[0])
			if err != nil {
				return err
			}
			list, err := b.endpoints.List(ctx, id)
			if err != nil {
				return err
			}
			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), list)
			}
			return NewResourceTable(cmd.OutOrStdout()).RenderEndpoints(list)
		},
	}
}

func newEndpointDeleteCmd(c *cli) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "delete <runtime-id|name:NAME> <endpoint-name>",
		Short: "Delete an endpoint",
		Args:  cobra.ExactArgs(2),
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
			name := args[1]
			if err := b.endpoints.Delete(ctx, id, name); err != nil {
				return err
			}
			if noWait {
				fmt.Fprintf(out, "Endpoint %s deletion started\n", name)
				return nil
			}
			opts := c.deleteWaitOptions()
			if !c.structured() {
				opts.OnPoll = watcher.PollPrinter(out)
			}
			if err := b.endpoints.WaitDeleted(ctx, id, name, opts); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Endpoint %s deleted\n", format.StatusSymbol(true), name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once deletion has started")
	return cmd
}
