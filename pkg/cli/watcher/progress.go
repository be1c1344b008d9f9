package watcher

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/deploy"
)

var stageTitles = map[deploy.State]string{
	deploy.StatePending:        "Checking deployment settings",
	deploy.StatePackaging:      "Packaging agent",
	deploy.StatePublishing:     "Publishing bundle",
	deploy.StateResourceUpsert: "Creating or updating runtime",
	deploy.StateWaitingReady:   "Waiting for runtime to become READY",
	deploy.StateAliasUpsert:    "Pointing endpoint at new version",
	deploy.StateWaitingAlias:   "Waiting for endpoint to become READY",
}

// StageTitle returns the human label of a pipeline state.
func StageTitle(s deploy.State) string {
	if t, ok := stageTitles[s]; ok {
		return t
	}
	return string(s)
}

// Progress prints a deployment as it runs. It implements deploy.Observer.
type Progress struct {
	mu  sync.Mutex
	out io.Writer

	step  int
	steps int
}

var _ deploy.Observer = (*Progress)(nil)

// NewProgress returns a Progress writing to w. withEndpoint sets whether
// the two endpoint stages are counted.
func NewProgress(w io.Writer, withEndpoint bool) *Progress {
	steps := 4
	if withEndpoint {
		steps = 6
	}
	return &Progress{out: w, steps: steps}
}

// OnTransition implements deploy.Observer.
func (p *Progress) OnTransition(runtimeName string, t deploy.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch t.To {
	case deploy.StateDone:
		fmt.Fprintf(p.out, "%s %s\n", format.StatusSymbol(true), format.Success("Deployment of %s complete", runtimeName))
	case deploy.StateFailed:
		fmt.Fprintf(p.out, "%s %s\n", format.StatusSymbol(false), format.Error("%s failed: %s", StageTitle(t.From), t.Detail))
	default:
		p.step++
		fmt.Fprintf(p.out, "%s %s\n", format.Dim("[%d/%d]", p.step, p.steps), format.Header("%s", StageTitle(t.To)))
	}
}

// OnPoll implements deploy.Observer.
func (p *Progress) OnPoll(_ deploy.State, attempt int, status string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printPoll(p.out, attempt, status, elapsed)
}

// OnFinish implements deploy.Observer.
func (p *Progress) OnFinish(res *deploy.Result, err error) {
	if res == nil || err != nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	WriteSummary(p.out, res)
}

// WriteSummary prints the identifiers a deployment produced.
func WriteSummary(w io.Writer, res *deploy.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, format.Label("Runtime", fmt.Sprintf("%s (%s)", res.RuntimeName, res.RuntimeID)))
	fmt.Fprintln(w, format.Label("ARN", res.RuntimeARN))
	fmt.Fprintln(w, format.Label("Version", res.Version.String()))
	fmt.Fprintln(w, format.Label("Artifact", res.Artifact.String()))
	if res.EndpointName != "" {
		fmt.Fprintln(w, format.Label("Endpoint", res.EndpointName))
		fmt.Fprintln(w, format.Label("Endpoint ARN", res.EndpointARN))
	}
	fmt.Fprintln(w, format.Label("Environment", string(res.Environment)))
	fmt.Fprintln(w, format.Label("Duration", res.Duration().Round(time.Second).String()))
}

// PollPrinter returns a waiter OnPoll callback printing to w.
func PollPrinter(w io.Writer) func(attempt int, status string, elapsed time.Duration) {
	var mu sync.Mutex
	return func(attempt int, status string, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		printPoll(w, attempt, status, elapsed)
	}
}

func printPoll(w io.Writer, attempt int, status string, elapsed time.Duration) {
	fmt.Fprintf(w, "    %s %s %s\n",
		format.Dim("#%d", attempt),
		format.StatusLabel(status),
		format.Dim("(%s)", elapsed.Round(time.Second)))
}
