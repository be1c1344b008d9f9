// Package deploy runs the deployment pipeline: package the agent, publish
// the bundle, create or update the runtime, wait for it, then point an
// endpoint at the new version and wait for that too.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/agentdeploy/pkg/endpoint"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/packager"
	"github.com/rzbill/agentdeploy/pkg/runtime"
	"github.com/rzbill/agentdeploy/pkg/storage"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/utils"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

// Builder builds code bundles.
type Builder interface {
	Build(ctx context.Context, opts packager.Options) (*packager.Bundle, error)
}

// Settings are the account-level parameters every deployment shares.
type Settings struct {
	Bucket     string
	RoleARN    string
	Network    types.NetworkMode
	Protocol   types.ServerProtocol
	Runtime    types.PythonRuntime
	EntryPoint []string
	Env        map[string]string

	RuntimeWait  waiter.Options
	EndpointWait waiter.Options
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(d *Deployer) { d.observers = append(d.observers, o) }
}

// WithPreflight registers a check that runs before any mutating call.
func WithPreflight(check func(ctx context.Context) error) Option {
	return func(d *Deployer) { d.preflight = check }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(d *Deployer) { d.logger = l }
}

// WithNow overrides the clock used for transition timestamps.
func WithNow(now func() time.Time) Option {
	return func(d *Deployer) { d.now = now }
}

// Deployer runs deployments. It is not safe for concurrent deployments of
// the same runtime name.
type Deployer struct {
	builder   Builder
	store     storage.ObjectStore
	runtimes  *runtime.Manager
	endpoints *endpoint.Manager
	settings  Settings

	observers observers
	preflight func(ctx context.Context) error
	logger    log.Logger
	now       func() time.Time
}

// New creates a Deployer.
func New(builder Builder, store storage.ObjectStore, runtimes *runtime.Manager, endpoints *endpoint.Manager, settings Settings, opts ...Option) *Deployer {
	d := &Deployer{
		builder:   builder,
		store:     store,
		runtimes:  runtimes,
		endpoints: endpoints,
		settings:  settings,
		logger:    log.GetDefaultLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("deploy")
	return d
}

// run carries the state of one deployment through the pipeline.
type run struct {
	d      *Deployer
	req    Request
	res    *Result
	exists bool
	bundle string
}

func (r *run) enter(to State, detail string) {
	t := Transition{From: r.res.State, To: to, At: r.d.now(), Detail: detail}
	r.res.State = to
	r.res.Transitions = append(r.res.Transitions, t)
	r.d.logger.Debug("state transition", log.Runtime(r.req.RuntimeName), log.Str("from", string(t.From)), log.Stage(to))
	r.d.observers.transition(r.req.RuntimeName, t)
}

func (r *run) fail(err error) error {
	failed := r.res.State
	r.res.FailedState = failed
	r.enter(StateFailed, err.Error())
	return &StageError{State: failed, Err: err}
}

// Deploy runs the pipeline. The first failing step moves the deployment to
// FAILED and aborts it. Nothing is rolled back: a published bundle or a new
// runtime version stays in place.
func (d *Deployer) Deploy(ctx context.Context, req Request) (res *Result, err error) {
	if req.Mode == "" {
		req.Mode = ModeAuto
	}
	if req.Environment == "" {
		req.Environment = types.EnvironmentPreview
	}
	if err := d.validate(req); err != nil {
		return nil, err
	}

	r := &run{
		d:   d,
		req: req,
		res: &Result{
			RuntimeName:  req.RuntimeName,
			EndpointName: req.EndpointName,
			Environment:  req.Environment,
			State:        StatePending,
			StartedAt:    d.now(),
		},
	}
	defer func() {
		r.res.FinishedAt = d.now()
		d.logger.Info("deployment finished",
			log.Runtime(req.RuntimeName),
			log.Stage(r.res.State),
			log.Bool("created", r.res.Created),
			log.Duration("elapsed", r.res.Duration()))
		d.observers.finish(r.res, err)
	}()

	if err := d.preconditions(req); err != nil {
		return r.res, r.fail(err)
	}

	steps := []struct {
		state State
		fn    func(context.Context) error
	}{
		{StatePackaging, r.packaging},
		{StatePublishing, r.publishing},
		{StateResourceUpsert, r.upsertRuntime},
		{StateWaitingReady, r.waitRuntime},
		{StateAliasUpsert, r.upsertEndpoint},
		{StateWaitingAlias, r.waitEndpoint},
	}
	for _, step := range steps {
		if req.EndpointName == "" && (step.state == StateAliasUpsert || step.state == StateWaitingAlias) {
			break
		}
		r.enter(step.state, "")
		if err := ctx.Err(); err != nil {
			return r.res, r.fail(err)
		}
		if err := step.fn(ctx); err != nil {
			return r.res, r.fail(err)
		}
	}
	r.enter(StateDone, "")
	return r.res, nil
}

func (d *Deployer) validate(req Request) error {
	if err := types.ValidateRuntimeName(req.RuntimeName); err != nil {
		return err
	}
	if req.EndpointName != "" {
		if err := types.ValidateEndpointName(req.EndpointName); err != nil {
			return err
		}
		if types.IsReservedEndpoint(req.EndpointName) {
			return fmt.Errorf("cannot deploy to %s: %w", req.EndpointName, types.ErrReservedEndpoint)
		}
	}
	switch req.Mode {
	case ModeAuto, ModeCreate, ModeUpdate:
	default:
		return types.NewValidationError("unknown deployment mode %q", req.Mode)
	}
	switch req.Environment {
	case types.EnvironmentProduction, types.EnvironmentPreview:
	default:
		return types.NewValidationError("unknown environment %q", req.Environment)
	}
	return nil
}

// preconditions checks the account settings a deployment needs. Failures
// here are reported to observers like any other failed deployment.
func (d *Deployer) preconditions(req Request) error {
	if req.Bundle.ImageURI == "" && d.settings.Bucket == "" {
		return &types.PreconditionError{What: "bucket", Detail: "no artifact bucket configured"}
	}
	if d.settings.RoleARN == "" {
		return &types.PreconditionError{What: "execution role", Detail: "no runtime role ARN configured"}
	}
	return nil
}

// packaging runs the preflight checks, resolves whether the runtime
// exists, then produces the bundle.
func (r *run) packaging(ctx context.Context) error {
	if r.d.preflight != nil {
		if err := r.d.preflight(ctx); err != nil {
			return err
		}
	}

	id, err := r.d.runtimes.Find(ctx, r.req.RuntimeName)
	switch {
	case err == nil:
		r.exists = true
		r.res.RuntimeID = id
	case errors.Is(err, types.ErrNotFound):
		r.exists = false
	default:
		return err
	}
	if r.exists && r.req.Mode == ModeCreate {
		return fmt.Errorf("runtime %q (%s): %w", r.req.RuntimeName, id, types.ErrAlreadyExists)
	}
	if !r.exists && r.req.Mode == ModeUpdate {
		return fmt.Errorf("runtime %q: %w", r.req.RuntimeName, types.ErrNotFound)
	}

	src := r.req.Bundle
	switch {
	case src.ImageURI != "":
		r.res.Artifact = types.ContainerArtifact(src.ImageURI)
		return nil
	case src.Path != "":
		digest, size, err := utils.FileDigest(src.Path)
		if err != nil {
			return &types.PreconditionError{What: "bundle", Detail: err.Error()}
		}
		if size > types.MaxBundleBytes {
			return &types.PreconditionError{What: "bundle size", Detail: fmt.Sprintf("%s exceeds the %s limit", utils.HumanBytes(size), utils.HumanBytes(types.MaxBundleBytes))}
		}
		r.res.Bundle = &packager.Bundle{Path: src.Path, Size: size, Digest: digest}
	default:
		if r.d.builder == nil {
			return errors.New("no bundle given and no packager configured")
		}
		b, err := r.d.builder.Build(ctx, src.Build)
		if err != nil {
			return err
		}
		r.res.Bundle = b
	}
	r.bundle = r.res.Bundle.Path
	return nil
}

// publishing computes the target version and uploads the bundle under
// <name>/v<version>/code.zip.
func (r *run) publishing(ctx context.Context) error {
	version := types.Version(1)
	if r.exists {
		next, err := r.d.runtimes.NextVersion(ctx, r.res.RuntimeID)
		if err != nil {
			return err
		}
		version = next
	}
	r.res.Version = version

	if r.res.Artifact.Kind() == types.ArtifactKindContainer && r.res.Artifact.ImageURI != "" {
		r.d.logger.Debug("container artifact, nothing to publish", log.Str("image", r.res.Artifact.ImageURI))
		return nil
	}

	ref := types.CodeArtifact(r.d.settings.Bucket, types.ArtifactKey(r.req.RuntimeName, version))
	if err := r.d.store.Upload(ctx, ref, r.bundle); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ref, err)
	}
	ok, err := r.d.store.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to verify %s: %w", ref, err)
	}
	if !ok {
		return fmt.Errorf("published bundle %s is not readable: %w", ref, types.ErrNotFound)
	}
	r.res.Artifact = ref
	return nil
}

func (r *run) config() types.RuntimeConfig {
	s := r.d.settings
	return types.RuntimeConfig{
		Artifact:    r.res.Artifact,
		RoleARN:     s.RoleARN,
		Network:     s.Network,
		Protocol:    s.Protocol,
		Runtime:     s.Runtime,
		EntryPoint:  s.EntryPoint,
		Description: r.req.Description,
		Env:         s.Env,
	}
}

func (r *run) upsertRuntime(ctx context.Context) error {
	var (
		rt  *types.Runtime
		err error
	)
	if r.exists {
		rt, err = r.d.runtimes.Update(ctx, r.res.RuntimeID, runtime.UpdateRequest{Config: r.config()})
	} else {
		rt, err = r.d.runtimes.Create(ctx, runtime.CreateRequest{Name: r.req.RuntimeName, Config: r.config()})
		r.res.Created = err == nil
	}
	if rt != nil {
		r.res.RuntimeID = rt.ID
		r.res.RuntimeARN = rt.ARN
	}
	if err != nil {
		return err
	}
	if rt.Version != r.res.Version {
		return &runtime.VersionSkewError{ID: rt.ID, Expected: r.res.Version, Got: rt.Version}
	}
	return nil
}

func (r *run) waitRuntime(ctx context.Context) error {
	opts := r.d.settings.RuntimeWait
	opts.OnPoll = func(attempt int, status string, elapsed time.Duration) {
		r.d.observers.poll(StateWaitingReady, attempt, status, elapsed)
	}
	rt, err := r.d.runtimes.WaitReady(ctx, r.res.RuntimeID, opts)
	if err != nil {
		return err
	}
	if rt.ARN != "" {
		r.res.RuntimeARN = rt.ARN
	}
	return nil
}

func (r *run) upsertEndpoint(ctx context.Context) error {
	describe := func(create bool) string {
		return EndpointDescription(r.req.Environment, r.req.RuntimeName, r.res.Version, create)
	}
	ep, created, err := r.d.endpoints.Upsert(ctx, r.res.RuntimeID, r.req.EndpointName, r.res.Version, describe)
	if err != nil {
		return err
	}
	r.res.EndpointCreated = created
	r.res.EndpointARN = ep.ARN
	return nil
}

func (r *run) waitEndpoint(ctx context.Context) error {
	opts := r.d.settings.EndpointWait
	opts.OnPoll = func(attempt int, status string, elapsed time.Duration) {
		r.d.observers.poll(StateWaitingAlias, attempt, status, elapsed)
	}
	ep, err := r.d.endpoints.WaitReady(ctx, r.res.RuntimeID, r.req.EndpointName, r.res.Version, opts)
	if err != nil {
		return err
	}
	if ep.ARN != "" {
		r.res.EndpointARN = ep.ARN
	}
	return nil
}
