package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/journal"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit int
		prune int
		id    string
	)
	cmd := &cobra.Command{
		Use:   "history [runtime-name]",
		Short: "Show recorded deployments",
		Long: `List the deployments recorded in the local journal, newest first. The
journal is an audit trail of this machine's deployments only.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.Journal.Enabled {
				return errors.New("the deployment journal is disabled (journal.enabled: false)")
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			store, err := journal.Open(c.cfg.Journal.Dir, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if id != "" {
				rec, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if c.structured() {
					return c.writeStructured(cmd.OutOrStdout(), rec)
				}
				writeRecord(cmd.OutOrStdout(), rec)
				return nil
			}

			if prune > 0 {
				if name == "" {
					return errors.New("--prune requires a runtime name")
				}
				if _, err := store.Prune(cmd.Context(), name, prune); err != nil {
					return err
				}
			}

			records, err := store.List(cmd.Context(), name, limit)
			if err != nil {
				return err
			}
			if c.structured() {
				return c.writeStructured(cmd.OutOrStdout(), records)
			}
			return NewResourceTable(cmd.OutOrStdout()).RenderHistory(records)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records (0 for all)")
	cmd.Flags().StringVar(&id, "id", "", "show one record in full")
	cmd.Flags().IntVar(&prune, "prune", 0, "keep only the newest N records of the runtime")
	return cmd
}

func writeRecord(w io.Writer, rec *journal.Record) {
	fmt.Fprintln(w, format.Label("ID", rec.ID))
	fmt.Fprintln(w, format.Label("Runtime", fmt.Sprintf("%s (%s)", rec.RuntimeName, rec.RuntimeID)))
	fmt.Fprintln(w, format.Label("Environment", string(rec.Environment)))
	fmt.Fprintln(w, format.Label("Version", rec.Version.String()))
	if rec.Endpoint != "" {
		fmt.Fprintln(w, format.Label("Endpoint", rec.Endpoint))
	}
	if rec.Artifact != "" {
		fmt.Fprintln(w, format.Label("Artifact", rec.Artifact))
	}
	fmt.Fprintln(w, format.Label("Result", format.StatusLabel(rec.FinalState)))
	if rec.FailedState != "" {
		fmt.Fprintln(w, format.Label("Failed in", rec.FailedState))
		fmt.Fprintln(w, format.Label("Error", rec.Error))
	}
	fmt.Fprintln(w, format.Label("Started", rec.StartedAt.Format(time.RFC3339)))
	fmt.Fprintln(w, format.Label("Duration", rec.Duration().Round(time.Second).String()))
}
