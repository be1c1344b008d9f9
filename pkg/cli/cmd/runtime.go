package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/cli/utils"
	"github.com/rzbill/agentdeploy/pkg/cli/watcher"
	"github.com/rzbill/agentdeploy/pkg/types"
)

func newRuntimeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runtime",
		Aliases: []string{"runtimes", "rt"},
		Short:   "Manage agent runtimes",
		Long: `Create, update, inspect and delete agent runtimes.

Runtimes are addressed by id, or by name with the name: prefix:
  agentdeploy runtime get support_agent-AbC123
  agentdeploy runtime get name:support_agent`,
	}

	cmd.AddCommand(
		newRuntimeCreateCmd(c),
		newRuntimeUpdateCmd(c),
		newRuntimeGetCmd(c),
		newRuntimeListCmd(c),
		newRuntimeDeleteCmd(c),
	)
	return cmd
}

func addBundleFlags(cmd *cobra.Command, opts *deployOptions) {
	flags := cmd.Flags()
	flags.StringVar(&opts.sourceDir, "source", "", "agent source directory (default from config)")
	flags.StringVar(&opts.promptFile, "prompt", "", "system prompt file to include in the bundle")
	flags.StringVar(&opts.zipFile, "zip", "", "use a prebuilt bundle instead of packaging")
	flags.StringVar(&opts.imageURI, "image", "", "use a container image instead of a code bundle")
	flags.BoolVar(&opts.installDeps, "install-deps", false, "install requirements into the bundle")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "run against an in-memory copy of the current state")
	flags.StringArrayVar(&opts.env, "env", nil, "runtime environment variable KEY=VALUE (repeatable)")
	flags.StringVar(&opts.description, "description", "", "runtime version description")
	cmd.MarkFlagsMutuallyExclusive("zip", "image")
}

func newRuntimeCreateCmd(c *cli) *cobra.Command {
	opts := &deployOptions{create: true}
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a runtime at version 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDeploy(cmd, args[0], "", opts)
		},
	}
	addBundleFlags(cmd, opts)
	return cmd
}

func newRuntimeUpdateCmd(c *cli) *cobra.Command {
	opts := &deployOptions{update: true}
	cmd := &cobra.Command{
		Use:   "update <id|name:NAME>",
		Short: "Publish the next version of a runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident, err := types.ParseIdentifier(args[0], false)
			if err != nil {
				return err
			}
			name, ok := ident.Name()
			if !ok {
				// Updates are matched by name, so look the id up first.
				b, err := c.backend(cmd.Context(), opts.dryRun)
				if err != nil {
					return err
				}
				if err := b.seed(cmd.Context(), ident); err != nil {
					return err
				}
				id, _ := ident.ID()
				rt, err := b.runtimes.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				name = rt.Name
			}
			return c.runDeploy(cmd, name, "", opts)
		},
	}
	addBundleFlags(cmd, opts)
	return cmd
}

func newRuntimeGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id|name:NAME>",
		Short: "Show a runtime and its endpoints",
		Args:  cobra.ExactArgs(1),
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
			rt, err := b.runtimes.Get(ctx, id)
			if err != nil {
				return err
			}
			endpoints, err := b.endpoints.List(ctx, id)
			if err != nil {
				return err
			}

			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), struct {
					types.Runtime `yaml:",inline"`
					Endpoints     []types.Endpoint `json:"endpoints" yaml:"endpoints"`
				}{*rt, endpoints})
			}
			writeRuntime(cmd.OutOrStdout(), rt)
			fmt.Fprintln(cmd.OutOrStdout())
			return NewResourceTable(cmd.OutOrStdout()).RenderEndpoints(endpoints)
		},
	}
}

func writeRuntime(w io.Writer, rt *types.Runtime) {
	fmt.Fprintln(w, format.Label("Name", rt.Name))
	fmt.Fprintln(w, format.Label("ID", string(rt.ID)))
	fmt.Fprintln(w, format.Label("ARN", rt.ARN))
	fmt.Fprintln(w, format.Label("Version", rt.Version.String()))
	fmt.Fprintln(w, format.Label("Status", format.StatusLabel(string(rt.Status))))
	if rt.FailureReason != "" {
		fmt.Fprintln(w, format.Label("Reason", rt.FailureReason))
	}
	fmt.Fprintln(w, format.Label("Artifact", rt.Config.Artifact.String()))
	if rt.Config.RoleARN != "" {
		fmt.Fprintln(w, format.Label("Role", rt.Config.RoleARN))
	}
	if len(rt.Config.EntryPoint) > 0 {
		fmt.Fprintln(w, format.Label("Entry point", strings.Join(rt.Config.EntryPoint, " ")))
	}
	if rt.Config.Description != "" {
		fmt.Fprintln(w, format.Label("Description", rt.Config.Description))
	}
	for _, k := range utils.SortedKeys(rt.Config.Env) {
		fmt.Fprintln(w, format.Label("Env", k+"="+rt.Config.Env[k]))
	}
	if !rt.UpdatedAt.IsZero() {
		fmt.Fprintln(w, format.Label("Updated", rt.UpdatedAt.Format(time.RFC3339)))
	}
}

func newRuntimeListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List runtimes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.backend(cmd.Context(), false)
			if err != nil {
				return err
			}
			list, err := b.runtimes.List(cmd.Context())
			if err != nil {
				return err
			}
			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), list)
			}
			return NewResourceTable(cmd.OutOrStdout()).RenderRuntimes(list)
		},
	}
}

func newRuntimeDeleteCmd(c *cli) *cobra.Command {
	var noWait bool
	cmd := &cobra.Command{
		Use:   "delete <id|name:NAME>",
		Short: "Delete a runtime that has no endpoints besides DEFAULT",
		Long: `Delete a runtime. The command refuses while endpoints other than DEFAULT
exist; use cleanup to remove them together with the runtime.`,
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
			if err := b.runtimes.Delete(ctx, id); err != nil {
				return err
			}
			if noWait {
				fmt.Fprintf(out, "Runtime %s deletion started\n", id)
				return nil
			}
			opts := c.deleteWaitOptions()
			if !c.structured() {
				opts.OnPoll = watcher.PollPrinter(out)
			}
			if err := b.runtimes.WaitDeleted(ctx, id, opts); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Runtime %s deleted\n", format.StatusSymbol(true), id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "return once deletion has started")
	return cmd
}
