package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/journal"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/utils"
)

// ResourceTable renders lists of runtimes, endpoints and journal records.
type ResourceTable struct {
	Headers []string
	Out     io.Writer
	Now     func() time.Time

	tableRenderer *pterm.TablePrinter
}

// NewResourceTable creates a table writing to w.
func NewResourceTable(w io.Writer) *ResourceTable {
	table := pterm.DefaultTable.WithHasHeader(true).
		WithHeaderStyle(pterm.NewStyle(pterm.FgCyan, pterm.Bold)).
		WithWriter(w)

	return &ResourceTable{
		Out:           w,
		Now:           time.Now,
		tableRenderer: table,
	}
}

func (t *ResourceTable) render(rows [][]string) error {
	return t.tableRenderer.WithData(rows).Render()
}

// RenderRuntimes renders a table of runtimes.
func (t *ResourceTable) RenderRuntimes(list []types.RuntimeSummary) error {
	if len(list) == 0 {
		fmt.Fprintln(t.Out, "No runtimes found")
		return nil
	}
	headers := t.Headers
	if len(headers) == 0 {
		headers = []string{"NAME", "ID", "VERSION", "STATUS", "UPDATED"}
	}
	rows := [][]string{headers}
	for _, r := range list {
		rows = append(rows, []string{
			r.Name,
			string(r.ID),
			r.Version.String(),
			format.StatusLabel(string(r.Status)),
			formatAge(r.UpdatedAt, t.Now()),
		})
	}
	return t.render(rows)
}

// RenderEndpoints renders a table of endpoints.
func (t *ResourceTable) RenderEndpoints(list []types.Endpoint) error {
	if len(list) == 0 {
		fmt.Fprintln(t.Out, "No endpoints found")
		return nil
	}
	headers := t.Headers
	if len(headers) == 0 {
		headers = []string{"NAME", "LIVE", "TARGET", "STATUS", "DESCRIPTION"}
	}
	rows := [][]string{headers}
	for _, ep := range list {
		target := ep.TargetVersion.String()
		if target == "" || ep.TargetVersion == ep.LiveVersion {
			target = "-"
		}
		rows = append(rows, []string{
			ep.Name,
			ep.LiveVersion.String(),
			target,
			format.StatusLabel(string(ep.Status)),
			utils.Truncate(ep.Description, 48),
		})
	}
	return t.render(rows)
}

// RenderHistory renders journal records.
func (t *ResourceTable) RenderHistory(records []journal.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(t.Out, "No deployments recorded")
		return nil
	}
	headers := t.Headers
	if len(headers) == 0 {
		headers = []string{"STARTED", "RUNTIME", "VERSION", "ENDPOINT", "RESULT", "DURATION", "ERROR"}
	}
	rows := [][]string{headers}
	for _, r := range records {
		result := r.FinalState
		if r.FailedState != "" {
			result = fmt.Sprintf("%s (%s)", r.FinalState, r.FailedState)
		}
		rows = append(rows, []string{
			formatAge(r.StartedAt, t.Now()),
			r.RuntimeName,
			r.Version.String(),
			r.Endpoint,
			format.StatusLabel(result),
			r.Duration().Round(time.Second).String(),
			utils.Truncate(r.Error, 40),
		})
	}
	return t.render(rows)
}

// formatAge formats the time since t as a short age string
func formatAge(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}

	duration := now.Sub(t)
	if duration < time.Minute {
		return "Just now"
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else if duration < 30*24*time.Hour {
		return fmt.Sprintf("%dd", int(duration.Hours()/24))
	} else if duration < 365*24*time.Hour {
		return fmt.Sprintf("%dmo", int(duration.Hours()/24/30))
	}
	return fmt.Sprintf("%dy", int(duration.Hours()/24/365))
}
