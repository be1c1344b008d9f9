// Package version reports build information for the agentdeploy binary.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X github.com/rzbill/agentdeploy/pkg/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

// ShortCommit returns the first eight characters of the commit SHA.
func ShortCommit() string {
	if len(Commit) > 8 {
		return Commit[:8]
	}
	return Commit
}

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("agentdeploy %s (%s) built %s %s/%s",
		Version, ShortCommit(), BuildTime, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is appended to AWS SDK requests.
func UserAgent() string {
	return "agentdeploy/" + Version
}

// Map returns version information as a map for structured output.
func Map() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
