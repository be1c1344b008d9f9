package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/cli/watcher"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// confirmWord must be typed to confirm a cleanup.
const confirmWord = "DELETE"

var errCleanupAborted = errors.New("cleanup aborted")

func newCleanupCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "cleanup <runtime-id|name:NAME>",
		Short: "Delete a runtime together with all of its endpoints",
		Long: `Delete every endpoint of a runtime except DEFAULT, wait until each is
gone, then delete the runtime and wait for that too.

This cannot be undone. Unless --force is given the command asks you to type
DELETE to confirm.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCleanup(cmd, args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}

func (c *cli) runCleanup(cmd *cobra.Command, arg string, force bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	b, err := c.backend(ctx, false)
	if err != nil {
		return err
	}
	id, err := b.resolveRuntime(ctx, arg)
	if err != nil {
		return err
	}
	rt, err := b.runtimes.Get(ctx, id)
	if err != nil {
		return err
	}
	names, err := b.endpoints.Names(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, format.Warning("This permanently deletes runtime %s (%s)", rt.Name, id))
	for _, n := range names {
		if !types.IsReservedEndpoint(n) {
			fmt.Fprintf(out, "  - endpoint %s\n", n)
		}
	}

	if !force {
		if f, ok := c.stdin.(*os.File); ok && !format.IsTerminal(f) {
			return fmt.Errorf("%w: stdin is not a terminal, pass --force to confirm", errCleanupAborted)
		}
		ok, err := confirm(c.stdin, out, fmt.Sprintf("Type %s to confirm: ", confirmWord))
		if err != nil {
			return err
		}
		if !ok {
			return errCleanupAborted
		}
	}

	wait := c.deleteWaitOptions()
	if !c.structured() {
		wait.OnPoll = watcher.PollPrinter(out)
	}
	err = b.endpoints.DeleteAll(ctx, id, wait, func(name string) {
		fmt.Fprintf(out, "%s Endpoint %s deleted\n", format.StatusSymbol(true), name)
	})
	if err != nil {
		return err
	}

	if err := b.runtimes.Delete(ctx, id); err != nil {
		return err
	}
	if err := b.runtimes.WaitDeleted(ctx, id, wait); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s Runtime %s deleted\n", format.StatusSymbol(true), id)
	return nil
}

// confirm prints prompt and reports whether the next line is confirmWord.
func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == confirmWord, nil
}
