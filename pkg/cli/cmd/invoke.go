package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/invoke"
)

func newInvokeCmd(c *cli) *cobra.Command {
	var (
		endpoint  string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "invoke <runtime-arn> [prompt]",
		Short: "Send a prompt to a deployed agent",
		Long: `Invoke an agent through one of its endpoints. The prompt is read from
stdin when not given as an argument. A session id is generated when none is
given; reuse it to continue the conversation.`,
		Example: `  agentdeploy invoke arn:aws:bedrock-agentcore:us-west-2:123456789012:runtime/demo-AbC123 "hello" --endpoint prod`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			prompt := ""
			if len(args) == 2 {
				prompt = args[1]
			} else {
				data, err := io.ReadAll(io.LimitReader(c.stdin, invoke.MaxResponseBytes))
				if err != nil {
					return fmt.Errorf("failed to read prompt: %w", err)
				}
				prompt = strings.TrimSpace(string(data))
			}

			b, err := c.backend(ctx, false)
			if err != nil {
				return err
			}
			if b.invoker == nil {
				return errors.New("invocation is not available with this backend")
			}
			resp, err := b.invoker.Invoke(ctx, invoke.Request{
				RuntimeARN: args[0],
				Endpoint:   endpoint,
				Prompt:     prompt,
				SessionID:  sessionID,
			})
			if err != nil {
				return err
			}

			if c.structured() {
				return c.writeStructured(out, resp)
			}
			fmt.Fprintln(out, resp.Pretty())
			fmt.Fprintln(cmd.ErrOrStderr(), format.Dim("session: %s", resp.SessionID))
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "endpoint to invoke (default DEFAULT)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue (at least 33 characters)")
	return cmd
}
