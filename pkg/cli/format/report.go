package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/rzbill/agentdeploy/pkg/types"
)

var (
	hintColor    = color.New(color.FgYellow, color.Italic)
	headingColor = color.New(color.FgHiWhite, color.Bold)
	errorTag     = color.New(color.FgRed, color.Bold)
)

// CheckStatus is the outcome of a single preflight check.
type CheckStatus string

const (
	CheckPass CheckStatus = "PASS"
	CheckWarn CheckStatus = "WARN"
	CheckFail CheckStatus = "FAIL"
)

// CheckLine is one row of a check report.
type CheckLine struct {
	Name   string
	Status CheckStatus
	Detail string
	Hint   string
}

// TerminalWidth returns the width of stdout, or 80 when unknown.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// WriteCheckReport prints a check report and returns the number of failures.
func WriteCheckReport(w io.Writer, title string, lines []CheckLine) int {
	fmt.Fprintln(w, headingColor.Sprint(title))
	fmt.Fprintln(w, dimColor.Sprint(strings.Repeat("─", min(TerminalWidth(), 60))))

	failures := 0
	for _, l := range lines {
		var sym string
		switch l.Status {
		case CheckPass:
			sym = StatusSymbol(true)
		case CheckWarn:
			sym = warningColor.Sprint("!")
		default:
			sym = StatusSymbol(false)
			failures++
		}
		fmt.Fprintf(w, "%s %-28s %s\n", sym, l.Name, l.Detail)
		if l.Hint != "" && l.Status != CheckPass {
			fmt.Fprintf(w, "    %s\n", hintColor.Sprint("hint: "+l.Hint))
		}
	}

	fmt.Fprintln(w)
	if failures == 0 {
		fmt.Fprintln(w, Success("All checks passed"))
	} else {
		fmt.Fprintln(w, Error("%d check(s) failed", failures))
	}
	return failures
}

// ErrorHint suggests a next step for well-known failure kinds.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrAccessDenied):
		return "check the caller's IAM permissions and the runtime execution role"
	case errors.Is(err, types.ErrReservedEndpoint):
		return "the DEFAULT endpoint is managed by the service and cannot be changed"
	case errors.Is(err, types.ErrEndpointsRemain):
		return "delete the runtime's endpoints first, or use 'agentdeploy cleanup'"
	case errors.Is(err, types.ErrVersionSkew):
		return "another deployment may be running against this runtime; retry"
	case errors.Is(err, types.ErrNotFound):
		return "list existing resources with 'agentdeploy runtime list'"
	case errors.Is(err, types.ErrPrecondition):
		return "run 'agentdeploy check' to verify the environment"
	default:
		return ""
	}
}

// PrintError writes err and any hint to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", errorTag.Sprint("Error:"), err)
	if hint := ErrorHint(err); hint != "" {
		fmt.Fprintf(w, "  %s\n", hintColor.Sprint("hint: "+hint))
	}
}
