package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/agentdeploy/internal/config"
	"github.com/rzbill/agentdeploy/pkg/deploy"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// testEnv runs commands against one shared in-memory backend.
type testEnv struct {
	t       *testing.T
	dir     string
	cfgFile string
	backend *backend
	stdin   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(GitHubOutputEnv, "")

	dir := t.TempDir()
	src := filepath.Join(dir, "agent")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "agent.py"), []byte("print('hi')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.txt"), []byte("You are helpful.\n"), 0o644))

	cfgFile := filepath.Join(dir, "agentdeploy.yaml")
	cfg := `aws:
  region: us-east-1
runtime:
  role_arn: arn:aws:iam::123456789012:role/agent-runtime
  bucket: b
package:
  source_dir: ` + src + `
wait:
  interval: 1s
  delete_interval: 1s
  timeout: 10s
journal:
  enabled: false
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o600))
	return &testEnv{t: t, dir: dir, cfgFile: cfgFile}
}

// factory hands out the shared backend. Dry runs get a fresh in-memory
// backend reading from it, the way they read from the real services.
func (e *testEnv) factory(_ context.Context, cfg *config.Config, logger log.Logger, dryRun bool) (*backend, error) {
	if e.backend == nil {
		e.backend = newMemoryBackend(cfg, logger, nil)
		e.backend.dryRun = false
	}
	if dryRun {
		return newMemoryBackend(cfg, logger, e.backend.cp), nil
	}
	return e.backend, nil
}

func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	c := &cli{newBackend: e.factory, stdin: strings.NewReader(e.stdin)}
	root := newRootCmd(c)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", e.cfgFile, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *testEnv) bundle() string {
	e.t.Helper()
	path := filepath.Join(e.dir, "bundle.zip")
	_, err := e.run("package", "--output", path, "--prompt", filepath.Join(e.dir, "prompt.txt"))
	require.NoError(e.t, err)
	return path
}

func TestDeployCreatesThenUpdates(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()

	out, err := env.run("deploy", "demo", "prod", "--prod", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	var first deploy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, deploy.StateDone, first.State)
	assert.Equal(t, types.Version(1), first.Version)
	assert.True(t, first.Created)
	assert.Equal(t, "b", first.Artifact.Bucket)
	assert.Equal(t, "demo/v1/code.zip", first.Artifact.Key)

	out, err = env.run("deploy", "demo", "prod", "--prod", "--update", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	var second deploy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, types.Version(2), second.Version)
	assert.False(t, second.Created)

	out, err = env.run("endpoint", "get", "name:demo", "prod", "-o", "json")
	require.NoError(t, err)
	var ep types.Endpoint
	require.NoError(t, json.Unmarshal([]byte(out), &ep))
	assert.Equal(t, types.Version(2), ep.LiveVersion)
	assert.Equal(t, types.EndpointStatusReady, ep.Status)
	assert.Equal(t, "Production endpoint - Version 2", ep.Description)
}

func TestDeployTextOutput(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("deploy", "demo", "--prompt", filepath.Join(env.dir, "prompt.txt"))
	require.NoError(t, err)
	assert.Contains(t, out, "[1/4]")
	assert.Contains(t, out, "Deployment of demo complete")
	assert.NotContains(t, out, "[5/")
}

func TestDeployModeConflicts(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()

	_, err := env.run("deploy", "demo", "--update", "--zip", zip, "-o", "json")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = env.run("deploy", "demo", "--create", "--zip", zip, "-o", "json")
	require.NoError(t, err)

	_, err = env.run("deploy", "demo", "--create", "--zip", zip, "-o", "json")
	assert.ErrorIs(t, err, types.ErrAlreadyExists)

	_, err = env.run("deploy", "demo", "--create", "--update")
	assert.Error(t, err)
}

func TestDryRunStartsFromCurrentState(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()

	out, err := env.run("deploy", "demo", "prod", "--prod", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	var live deploy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &live))

	out, err = env.run("deploy", "demo", "prod", "--prod", "--update", "--dry-run", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	var dry deploy.Result
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.Equal(t, deploy.StateDone, dry.State)
	assert.Equal(t, live.RuntimeID, dry.RuntimeID)
	assert.Equal(t, types.Version(2), dry.Version)
	assert.False(t, dry.Created)
	assert.False(t, dry.EndpointCreated)

	_, err = env.run("runtime", "update", "name:demo", "--dry-run", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	_, err = env.run("runtime", "update", string(live.RuntimeID), "--dry-run", "--zip", zip, "-o", "json")
	require.NoError(t, err)

	out, err = env.run("deploy", "other", "--dry-run", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.True(t, dry.Created)
	assert.Equal(t, types.Version(1), dry.Version)

	// Nothing above reached the live control plane.
	out, err = env.run("runtime", "get", "name:demo", "-o", "json")
	require.NoError(t, err)
	var rt types.Runtime
	require.NoError(t, json.Unmarshal([]byte(out), &rt))
	assert.Equal(t, types.Version(1), rt.Version)

	out, err = env.run("runtime", "list", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, `"other"`)
}

func TestDeployRejectsDefaultEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("deploy", "demo", "DEFAULT", "--zip", env.bundle())
	assert.ErrorIs(t, err, types.ErrReservedEndpoint)
}

func TestDeployWritesGitHubOutput(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()
	path := filepath.Join(env.dir, "github_output")
	t.Setenv(GitHubOutputEnv, path)

	_, err := env.run("deploy", "demo", "prod", "--prod", "--zip", zip, "--github-output", "-o", "json")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "runtime_id=demo-")
	assert.Contains(t, string(data), "endpoint_name=prod\n")
	assert.Contains(t, string(data), "version=1\n")
}

func TestRuntimeAndEndpointCommands(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()

	_, err := env.run("runtime", "create", "demo", "--zip", zip, "-o", "json")
	require.NoError(t, err)
	_, err = env.run("runtime", "update", "name:demo", "--zip", zip, "-o", "json")
	require.NoError(t, err)

	out, err := env.run("runtime", "list", "-o", "json")
	require.NoError(t, err)
	var list []types.RuntimeSummary
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "demo", list[0].Name)
	assert.Equal(t, types.Version(2), list[0].Version)

	_, err = env.run("endpoint", "create", "name:demo", "1", "canary", "-o", "json")
	require.NoError(t, err)

	// Repointing to a version that does not exist leaves the endpoint alone.
	_, err = env.run("endpoint", "update", "name:demo", "canary", "9")
	assert.ErrorIs(t, err, types.ErrNotFound)
	out, err = env.run("endpoint", "get", "name:demo", "canary", "-o", "json")
	require.NoError(t, err)
	var ep types.Endpoint
	require.NoError(t, json.Unmarshal([]byte(out), &ep))
	assert.Equal(t, types.Version(1), ep.LiveVersion)

	_, err = env.run("endpoint", "update", "name:demo", "canary", "2", "-o", "json")
	require.NoError(t, err)

	_, err = env.run("runtime", "delete", "name:demo")
	assert.ErrorIs(t, err, types.ErrEndpointsRemain)

	_, err = env.run("endpoint", "delete", "name:demo", "DEFAULT")
	assert.ErrorIs(t, err, types.ErrReservedEndpoint)

	out, err = env.run("endpoint", "delete", "name:demo", "canary")
	require.NoError(t, err)
	assert.Contains(t, out, "Endpoint canary deleted")

	out, err = env.run("runtime", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t)
	zip := env.bundle()
	_, err := env.run("deploy", "demo", "prod", "--zip", zip, "-o", "json")
	require.NoError(t, err)

	env.stdin = "no\n"
	_, err = env.run("cleanup", "name:demo")
	assert.ErrorIs(t, err, errCleanupAborted)

	env.stdin = "DELETE\n"
	out, err := env.run("cleanup", "name:demo")
	require.NoError(t, err)
	assert.Contains(t, out, "Endpoint prod deleted")
	assert.Contains(t, out, "deleted")

	out, err = env.run("runtime", "list", "-o", "json")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestWaitCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("deploy", "demo", "--zip", env.bundle(), "-o", "json")
	require.NoError(t, err)

	out, err := env.run("wait", "name:demo", "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, "is READY at version 1")

	_, err = env.run("wait", "name:missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestInvokeWithoutDataPlane(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("invoke", "arn:aws:bedrock-agentcore:us-east-1:123456789012:runtime/demo-x", "hi")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run("check", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "Artifact bucket")
}

func TestVersionAndConfigCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("version", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)

	out, err = env.run("config", "path")
	require.NoError(t, err)
	assert.Equal(t, env.cfgFile+"\n", out)

	out, err = env.run("config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "role_arn: arn:aws:iam::123456789012:role/agent-runtime")

	path := filepath.Join(env.dir, "new", "agentdeploy.yaml")
	_, err = env.run("config", "init", "--path", path, "--bucket", "artifacts")
	require.NoError(t, err)
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "artifacts", loaded.Runtime.Bucket)
	assert.Equal(t, 10*time.Second, loaded.Wait.Interval)

	_, err = env.run("config", "init", "--path", path)
	assert.Error(t, err)

	_, err = env.run("config", "validate")
	assert.NoError(t, err)
}

func TestUnsupportedOutput(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("version", "-o", "xml")
	assert.True(t, types.IsValidationError(err))
}

func TestGitHubOutputs(t *testing.T) {
	res := &deploy.Result{
		RuntimeID:    "demo-abc",
		RuntimeARN:   "arn:aws:bedrock-agentcore:us-east-1:1:runtime/demo-abc",
		EndpointName: "prod",
		Environment:  types.EnvironmentProduction,
		Version:      3,
	}
	assert.Equal(t, []string{
		"runtime_id=demo-abc",
		"runtime_arn=arn:aws:bedrock-agentcore:us-east-1:1:runtime/demo-abc",
		"endpoint_name=prod",
		"version=3",
	}, gitHubOutputs(res))

	res.Environment = types.EnvironmentPreview
	res.EndpointName = ""
	res.RuntimeARN = ""
	assert.Equal(t, []string{"runtime_id=demo-abc"}, gitHubOutputs(res))
}

func TestAppendGitHubOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(path, []byte("existing=1\n"), 0o644))

	res := &deploy.Result{RuntimeID: "demo-abc", Environment: types.EnvironmentPreview}
	require.NoError(t, appendGitHubOutput(path, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing=1\nruntime_id=demo-abc\n", string(data))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", maskToken(""))
	assert.Equal(t, "*****", maskToken("short"))
	assert.Equal(t, "AKIA********", maskToken("AKIAABCDEFGH"))
}

func TestConfirm(t *testing.T) {
	out := &bytes.Buffer{}
	ok, err := confirm(strings.NewReader("DELETE\n"), out, "? ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "? ", out.String())

	ok, err = confirm(strings.NewReader("delete"), io.Discard, "? ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "Unknown"},
		{now.Add(-10 * time.Second), "Just now"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-48 * time.Hour), "2d"},
		{now.Add(-60 * 24 * time.Hour), "2mo"},
		{now.Add(-800 * 24 * time.Hour), "2y"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAge(tt.at, now))
	}
}
