package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/agentdeploy/pkg/deploy"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// GitHubOutputEnv names the file GitHub Actions reads step outputs from.
const GitHubOutputEnv = "GITHUB_OUTPUT"

// writeStructured prints v as json or yaml according to the output flag.
func (c *cli) writeStructured(w io.Writer, v interface{}) error {
	switch c.opts.output {
	case "json":
		return outputJSON(w, v)
	case "yaml":
		return outputYAML(w, v)
	default:
		return fmt.Errorf("unsupported output format: %s", c.opts.output)
	}
}

// outputJSON outputs v in JSON format
func outputJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// outputYAML outputs v in YAML format
func outputYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	_, err = fmt.Fprint(w, string(data))
	return err
}

// gitHubOutputs are the step outputs of a deployment. The version is only
// published for production deployments.
func gitHubOutputs(res *deploy.Result) []string {
	lines := []string{"runtime_id=" + string(res.RuntimeID)}
	if res.RuntimeARN != "" {
		lines = append(lines, "runtime_arn="+res.RuntimeARN)
	}
	if res.EndpointName != "" {
		lines = append(lines, "endpoint_name="+res.EndpointName)
	}
	if res.Environment == types.EnvironmentProduction && !res.Version.IsZero() {
		lines = append(lines, "version="+res.Version.String())
	}
	return lines
}

// appendGitHubOutput appends the deployment outputs to path.
func appendGitHubOutput(path string, res *deploy.Result) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, strings.Join(gitHubOutputs(res), "\n")); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
