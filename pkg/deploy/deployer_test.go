package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/controlplane/memory"
	"github.com/rzbill/agentdeploy/pkg/endpoint"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/packager"
	"github.com/rzbill/agentdeploy/pkg/runtime"
	"github.com/rzbill/agentdeploy/pkg/storage"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

type recorder struct {
	NopObserver
	states   []State
	polls    int
	finished *Result
	err      error
}

func (r *recorder) OnTransition(_ string, t Transition) { r.states = append(r.states, t.To) }

func (r *recorder) OnPoll(State, int, string, time.Duration) { r.polls++ }

func (r *recorder) OnFinish(res *Result, err error) {
	r.finished = res
	r.err = err
}

type harness struct {
	cp        *memory.ControlPlane
	store     *storage.MemoryStore
	runtimes  *runtime.Manager
	endpoints *endpoint.Manager
	obs       *recorder
	deployer  *Deployer
	bundle    string
}

func newHarness(t *testing.T, cpOpts []memory.Option, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		cp:    memory.New(cpOpts...),
		store: storage.NewMemoryStore("b"),
		obs:   &recorder{},
	}
	logger := log.NewNopLogger()
	h.runtimes = runtime.NewManager(h.cp, logger)
	h.endpoints = endpoint.NewManager(h.cp, logger)

	h.bundle = filepath.Join(t.TempDir(), "code.zip")
	require.NoError(t, os.WriteFile(h.bundle, []byte("PK bundle"), 0o644))

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	settings := Settings{
		Bucket:       "b",
		RoleARN:      "arn:aws:iam::123456789012:role/AgentRole",
		Network:      types.NetworkModePublic,
		Protocol:     types.ServerProtocolHTTP,
		Runtime:      types.PythonRuntime311,
		EntryPoint:   []string{"agent.py"},
		RuntimeWait:  waiter.Options{Interval: 10 * time.Second, Timeout: 300 * time.Second, Clock: clock},
		EndpointWait: waiter.Options{Interval: 10 * time.Second, Timeout: 300 * time.Second, Clock: clock},
	}
	opts = append([]Option{WithObserver(h.obs), WithLogger(logger), WithNow(clock.Now)}, opts...)
	h.deployer = New(nil, h.store, h.runtimes, h.endpoints, settings, opts...)
	return h
}

func (h *harness) request(endpointName string, env types.Environment) Request {
	return Request{
		RuntimeName:  "demo",
		EndpointName: endpointName,
		Environment:  env,
		Bundle:       BundleSource{Path: h.bundle},
	}
}

func TestDeployCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []memory.Option{memory.WithConvergePolls(2)})

	res, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, types.Version(1), res.Version)
	assert.Equal(t, types.CodeArtifact("b", "demo/v1/code.zip"), res.Artifact)
	assert.Equal(t, []State{StatePackaging, StatePublishing, StateResourceUpsert, StateWaitingReady, StateDone}, h.obs.states)
	assert.Equal(t, 3, h.obs.polls)
	assert.Same(t, res, h.obs.finished)

	h.obs.states = nil
	res, err = h.deployer.Deploy(ctx, h.request("prod", types.EnvironmentProduction))
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.EndpointCreated)
	assert.Equal(t, types.Version(2), res.Version)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{
		StatePackaging, StatePublishing, StateResourceUpsert, StateWaitingReady,
		StateAliasUpsert, StateWaitingAlias, StateDone,
	}, h.obs.states)

	_, ok := h.store.Get(types.CodeArtifact("b", "demo/v2/code.zip"))
	assert.True(t, ok)

	ep, err := h.endpoints.Get(ctx, res.RuntimeID, "prod")
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), ep.ResolvedVersion())
	assert.Equal(t, "Production endpoint - Version 2", ep.Description)
}

func TestEndToEndVersionsAndEndpoint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	require.NoError(t, err)
	require.Equal(t, types.Version(1), res.Version)
	id := res.RuntimeID

	_, err = h.endpoints.Create(ctx, id, "prod", 1, "")
	require.NoError(t, err)

	res, err = h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	require.NoError(t, err)
	require.Equal(t, types.Version(2), res.Version)

	clock := &fakeClock{}
	_, err = h.endpoints.WaitReady(ctx, id, "prod", 1, waiter.Options{Clock: clock})
	require.NoError(t, err)
	_, err = h.endpoints.Update(ctx, id, "prod", 2, "")
	require.NoError(t, err)
	ep, err := h.endpoints.WaitReady(ctx, id, "prod", 2, waiter.Options{Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), ep.ResolvedVersion())

	_, err = h.endpoints.Update(ctx, id, "prod", 7, "")
	require.ErrorIs(t, err, types.ErrNotFound)
	ep, err = h.endpoints.Get(ctx, id, "prod")
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), ep.ResolvedVersion())
}

func TestPreviewDescription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	res, err := h.deployer.Deploy(ctx, h.request("pr_42", types.EnvironmentPreview))
	require.NoError(t, err)
	ep, err := h.endpoints.Get(ctx, res.RuntimeID, "pr_42")
	require.NoError(t, err)
	assert.Equal(t, "PR endpoint for demo", ep.Description)

	res, err = h.deployer.Deploy(ctx, h.request("pr_42", types.EnvironmentPreview))
	require.NoError(t, err)
	assert.Equal(t, types.Version(2), res.Version)
	ep, err = h.endpoints.Get(ctx, res.RuntimeID, "pr_42")
	require.NoError(t, err)
	assert.Equal(t, "PR endpoint for demo", ep.Description)
	assert.Equal(t, types.Version(2), ep.ResolvedVersion())
}

func TestModeConflicts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	req := h.request("", types.EnvironmentPreview)
	req.Mode = ModeUpdate
	_, err := h.deployer.Deploy(ctx, req)
	require.ErrorIs(t, err, types.ErrNotFound)
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StatePackaging, stage.State)
	assert.Equal(t, StateFailed, h.obs.finished.State)
	assert.Equal(t, StatePackaging, h.obs.finished.FailedState)

	req.Mode = ModeCreate
	_, err = h.deployer.Deploy(ctx, req)
	require.NoError(t, err)

	_, err = h.deployer.Deploy(ctx, req)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
	assert.Equal(t, 1, h.cp.Calls(controlplane.OpCreateRuntime))
}

func TestRuntimeFailureStopsWithoutRollback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.cp.FailNextRuntime("entry point crashed")

	res, err := h.deployer.Deploy(ctx, h.request("prod", types.EnvironmentProduction))
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StateWaitingReady, stage.State)

	var failure *waiter.FailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "entry point crashed", failure.Reason)

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateWaitingReady, res.FailedState)
	assert.Zero(t, h.cp.Calls(controlplane.OpCreateEndpoint))

	_, published := h.store.Get(types.CodeArtifact("b", "demo/v1/code.zip"))
	assert.True(t, published)
}

func TestWaitTimeout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []memory.Option{memory.WithConvergePolls(1000)})

	_, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	var timeout *waiter.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "CREATING", timeout.LastState)
}

func TestEndpointFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.cp.FailNextEndpoint("quota exceeded")

	res, err := h.deployer.Deploy(ctx, h.request("prod", types.EnvironmentProduction))
	var stage *StageError
	require.ErrorAs(t, err, &stage)
	assert.Equal(t, StateWaitingAlias, stage.State)
	assert.Equal(t, types.Version(1), res.Version)
}

func TestPreflightRunsBeforeMutation(t *testing.T) {
	ctx := context.Background()
	boom := &types.PreconditionError{What: "bucket", Detail: "missing"}
	h := newHarness(t, nil, WithPreflight(func(context.Context) error { return boom }))

	_, err := h.deployer.Deploy(ctx, h.request("prod", types.EnvironmentProduction))
	assert.ErrorIs(t, err, types.ErrPrecondition)
	assert.Zero(t, h.cp.Calls(controlplane.OpCreateRuntime))
	assert.Empty(t, h.store.Keys("b"))
}

func TestContainerArtifactSkipsUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	req := h.request("", types.EnvironmentPreview)
	req.Bundle = BundleSource{ImageURI: "123456789012.dkr.ecr.us-west-2.amazonaws.com/agent:1"}

	res, err := h.deployer.Deploy(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, types.ArtifactKindContainer, res.Artifact.Kind())
	assert.Empty(t, h.store.Keys("b"))

	rt, err := h.runtimes.Get(ctx, res.RuntimeID)
	require.NoError(t, err)
	assert.Equal(t, req.Bundle.ImageURI, rt.Config.Artifact.ImageURI)
}

type stubBuilder struct {
	path string
	opts packager.Options
}

func (s *stubBuilder) Build(_ context.Context, opts packager.Options) (*packager.Bundle, error) {
	s.opts = opts
	return &packager.Bundle{Path: s.path, Size: 9, Digest: "abc"}, nil
}

func TestBuilderIsUsedWithoutPrebuiltBundle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	b := &stubBuilder{path: h.bundle}
	h.deployer.builder = b

	req := h.request("", types.EnvironmentPreview)
	req.Bundle = BundleSource{Build: packager.Options{SourceDir: "agent", EntryPoint: "agent.py"}}
	res, err := h.deployer.Deploy(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "agent", b.opts.SourceDir)
	assert.Equal(t, "abc", res.Bundle.Digest)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	_, err := h.deployer.Deploy(ctx, h.request(types.DefaultEndpointName, types.EnvironmentProduction))
	assert.ErrorIs(t, err, types.ErrReservedEndpoint)

	req := h.request("", types.EnvironmentPreview)
	req.Mode = "sideways"
	_, err = h.deployer.Deploy(ctx, req)
	assert.ErrorIs(t, err, types.ErrValidation)

	req = h.request("", "staging")
	_, err = h.deployer.Deploy(ctx, req)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Nil(t, h.obs.finished)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, nil)

	_, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestEndpointDescription(t *testing.T) {
	assert.Equal(t, "Production endpoint - Version 3", EndpointDescription(types.EnvironmentProduction, "demo", 3, true))
	assert.Equal(t, "Production endpoint - Version 3", EndpointDescription(types.EnvironmentProduction, "demo", 3, false))
	assert.Equal(t, "PR endpoint for demo", EndpointDescription(types.EnvironmentPreview, "demo", 3, true))
	assert.Empty(t, EndpointDescription(types.EnvironmentPreview, "demo", 3, false))
}

// unreadableStore accepts uploads that never become visible.
type unreadableStore struct{ *storage.MemoryStore }

func (unreadableStore) Exists(context.Context, types.ArtifactRef) (bool, error) { return false, nil }

func TestPublishedBundleIsVerified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	d := New(nil, unreadableStore{h.store}, h.runtimes, h.endpoints, h.deployer.settings,
		WithObserver(h.obs), WithLogger(log.NewNopLogger()))

	_, err := d.Deploy(ctx, h.request("", types.EnvironmentPreview))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StatePublishing, stageErr.State)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Equal(t, 0, h.cp.Calls(controlplane.OpCreateRuntime))
}

func TestMissingSettingsAreReported(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.deployer.settings.RoleARN = ""

	res, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	var pre *types.PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "execution role", pre.What)
	require.NotNil(t, res)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StatePending, res.FailedState)

	require.NotNil(t, h.obs.finished)
	assert.Equal(t, []State{StateFailed}, h.obs.states)
	assert.Equal(t, err, h.obs.err)
	assert.Equal(t, 0, h.cp.Calls(controlplane.OpListRuntimes))
}

func TestFinishIsLogged(t *testing.T) {
	ctx := context.Background()
	logger, rec := log.NewRecordingLogger()
	h := newHarness(t, nil, WithLogger(logger))

	_, err := h.deployer.Deploy(ctx, h.request("", types.EnvironmentPreview))
	require.NoError(t, err)

	var finished *log.RecordedEntry
	for _, e := range rec.Entries() {
		if e.Message == "deployment finished" {
			e := e
			finished = &e
		}
	}
	require.NotNil(t, finished)
	assert.Equal(t, true, finished.Fields["created"])
	assert.Equal(t, "DONE", finished.Fields[log.StageKey])
	assert.Contains(t, finished.Fields, "elapsed")
}
