// Package format holds the terminal presentation helpers shared by the
// agentdeploy commands.
package format

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor   = color.New(color.FgGreen)
	warningColor   = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	infoColor      = color.New(color.FgCyan)
	highlightColor = color.New(color.FgCyan, color.Bold)
	headerColor    = color.New(color.FgBlue, color.Bold)
	dimColor       = color.New(color.FgHiBlack)

	statusGood    = color.New(color.FgGreen, color.Bold)
	statusPending = color.New(color.FgYellow, color.Bold)
	statusBad     = color.New(color.FgRed, color.Bold)
)

func init() {
	if _, ok := os.LookupEnv("AGENTDEPLOY_NO_COLOR"); ok {
		color.NoColor = true
	}
	if _, ok := os.LookupEnv("AGENTDEPLOY_FORCE_COLOR"); ok {
		color.NoColor = false
	}
}

// EnableColor enables or disables colored output globally.
func EnableColor(enable bool) {
	color.NoColor = !enable
}

// IsColorEnabled returns whether colored output is enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// Success formats a message in green.
func Success(format string, a ...interface{}) string {
	return successColor.Sprintf(format, a...)
}

// Warning formats a message in yellow.
func Warning(format string, a ...interface{}) string {
	return warningColor.Sprintf(format, a...)
}

// Error formats a message in red.
func Error(format string, a ...interface{}) string {
	return errorColor.Sprintf(format, a...)
}

// Info formats a message in cyan.
func Info(format string, a ...interface{}) string {
	return infoColor.Sprintf(format, a...)
}

// Highlight formats a message in bold cyan.
func Highlight(format string, a ...interface{}) string {
	return highlightColor.Sprintf(format, a...)
}

// Header formats a message in bold blue.
func Header(format string, a ...interface{}) string {
	return headerColor.Sprintf(format, a...)
}

// Dim formats a message in grey.
func Dim(format string, a ...interface{}) string {
	return dimColor.Sprintf(format, a...)
}

// StatusSymbol returns a check mark or a cross.
func StatusSymbol(ok bool) string {
	if ok {
		return successColor.Sprint("✓")
	}
	return errorColor.Sprint("✗")
}

// Label formats "key: value" with a styled key.
func Label(key, value string) string {
	return fmt.Sprintf("%s %s", highlightColor.Sprint(key+":"), value)
}

// StatusLabel colors a runtime, endpoint or stage status.
func StatusLabel(status string) string {
	switch strings.ToUpper(status) {
	case "READY", "DONE", "SUCCEEDED", "PASS":
		return statusGood.Sprint(status)
	case "CREATING", "UPDATING", "DELETING", "PACKAGING", "PUBLISHING",
		"RESOURCE_UPSERT", "WAITING_READY", "ALIAS_UPSERT", "WAITING_ALIAS", "WARN":
		return statusPending.Sprint(status)
	case "CREATE_FAILED", "UPDATE_FAILED", "DELETE_FAILED", "FAILED", "FAIL":
		return statusBad.Sprint(status)
	default:
		return status
	}
}
