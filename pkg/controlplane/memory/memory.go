// Package memory is an in-process control plane. It keeps version
// counters and endpoint routing the way the service does and lets tests
// script how long resources take to converge and whether they fail.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// Option configures a ControlPlane.
type Option func(*ControlPlane)

// WithConvergePolls sets how many Get calls after a mutation still report
// the in-progress status. Zero means the first Get reports the outcome.
func WithConvergePolls(n int) Option {
	return func(c *ControlPlane) { c.convergePolls = n }
}

// WithRegion sets the region used in generated ARNs.
func WithRegion(region string) Option {
	return func(c *ControlPlane) { c.region = region }
}

// WithAccount sets the account id used in generated ARNs.
func WithAccount(account string) Option {
	return func(c *ControlPlane) { c.account = account }
}

// WithNow overrides the time source for timestamps.
func WithNow(now func() time.Time) Option {
	return func(c *ControlPlane) { c.now = now }
}

type runtimeRecord struct {
	rt        types.Runtime
	versions  map[types.Version]types.RuntimeConfig
	pending   int
	settle    types.RuntimeStatus
	reason    string
	endpoints map[string]*endpointRecord
}

type endpointRecord struct {
	ep      types.Endpoint
	pending int
	settle  types.EndpointStatus
	reason  string
}

// ControlPlane implements controlplane.ControlPlane in memory.
type ControlPlane struct {
	mu sync.Mutex

	region        string
	account       string
	convergePolls int
	now           func() time.Time

	seq      int
	runtimes map[types.RuntimeID]*runtimeRecord
	injected map[string]error

	failRuntime  string
	failEndpoint string

	calls map[string]int
}

var _ controlplane.ControlPlane = (*ControlPlane)(nil)

// New creates an empty in-memory control plane.
func New(opts ...Option) *ControlPlane {
	c := &ControlPlane{
		region:   "us-west-2",
		account:  "000000000000",
		now:      time.Now,
		runtimes: make(map[types.RuntimeID]*runtimeRecord),
		injected: make(map[string]error),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InjectError makes the next call of op fail with err.
func (c *ControlPlane) InjectError(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injected[op] = err
}

// FailNextRuntime makes the next runtime create or update settle in its
// failed state with the given reason.
func (c *ControlPlane) FailNextRuntime(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRuntime = reason
}

// FailNextEndpoint makes the next endpoint create or update settle in its
// failed state with the given reason.
func (c *ControlPlane) FailNextEndpoint(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failEndpoint = reason
}

// BumpVersion publishes a new version out of band, as a concurrent
// deployment would.
func (c *ControlPlane) BumpVersion(id types.RuntimeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runtimes[id]
	if !ok {
		return controlplane.NotFound(controlplane.OpUpdateRuntime, "runtime %s not found", id)
	}
	next := r.rt.Version.Next()
	r.versions[next] = r.rt.Config
	r.rt.Version = next
	return nil
}

// Seed stores a copy of rt and its endpoints as they are, replacing any
// runtime with the same id. Versions the endpoints route to are kept so
// they can be repointed.
func (c *ControlPlane) Seed(rt types.Runtime, endpoints []types.Endpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &runtimeRecord{
		rt:        rt,
		versions:  map[types.Version]types.RuntimeConfig{rt.Version: rt.Config},
		endpoints: make(map[string]*endpointRecord, len(endpoints)),
	}
	for _, ep := range endpoints {
		for _, v := range []types.Version{ep.LiveVersion, ep.TargetVersion} {
			if _, ok := r.versions[v]; !ok && !v.IsZero() {
				r.versions[v] = rt.Config
			}
		}
		r.endpoints[ep.Name] = &endpointRecord{ep: ep}
	}
	c.runtimes[rt.ID] = r
}

// Calls returns how many times op was called.
func (c *ControlPlane) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// begin records the call and returns an injected error, if any. Callers
// hold c.mu.
func (c *ControlPlane) begin(ctx context.Context, op string) error {
	c.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := c.injected[op]; ok {
		delete(c.injected, op)
		return err
	}
	return nil
}

func (c *ControlPlane) runtimeARN(id types.RuntimeID) string {
	return fmt.Sprintf("arn:aws:bedrock-agentcore:%s:%s:runtime/%s", c.region, c.account, id)
}

func (c *ControlPlane) endpointARN(id types.RuntimeID, name string) string {
	return fmt.Sprintf("%s/runtime-endpoint/%s", c.runtimeARN(id), name)
}

// startRuntime moves r into an in-progress status that settles after the
// configured number of polls.
func (c *ControlPlane) startRuntime(r *runtimeRecord, status, failed types.RuntimeStatus) {
	r.rt.Status = status
	r.rt.FailureReason = ""
	r.pending = c.convergePolls
	r.settle = types.RuntimeStatusReady
	r.reason = ""
	if c.failRuntime != "" {
		r.settle = failed
		r.reason = c.failRuntime
		c.failRuntime = ""
	}
}

func (c *ControlPlane) startEndpoint(e *endpointRecord, status, failed types.EndpointStatus) {
	e.ep.Status = status
	e.ep.FailureReason = ""
	e.pending = c.convergePolls
	e.settle = types.EndpointStatusReady
	e.reason = ""
	if c.failEndpoint != "" {
		e.settle = failed
		e.reason = c.failEndpoint
		c.failEndpoint = ""
	}
}

func validateConfig(op string, cfg types.RuntimeConfig) error {
	if err := cfg.Artifact.Validate(); err != nil {
		return controlplane.NewAPIError(op, controlplane.CodeValidation, err.Error())
	}
	if cfg.RoleARN == "" {
		return controlplane.NewAPIError(op, controlplane.CodeValidation, "roleArn is required")
	}
	return nil
}

// CreateRuntime creates version 1 of a runtime and its DEFAULT endpoint.
func (c *ControlPlane) CreateRuntime(ctx context.Context, in controlplane.CreateRuntimeInput) (*types.Runtime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpCreateRuntime
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	if err := types.ValidateRuntimeName(in.Name); err != nil {
		return nil, controlplane.NewAPIError(op, controlplane.CodeValidation, err.Error())
	}
	if err := validateConfig(op, in.Config); err != nil {
		return nil, err
	}
	for _, r := range c.runtimes {
		if r.rt.Name == in.Name {
			return nil, controlplane.Conflict(op, "runtime %s already exists", in.Name)
		}
	}

	c.seq++
	id := types.RuntimeID(fmt.Sprintf("%s-%010d", in.Name, c.seq))
	now := c.now()
	r := &runtimeRecord{
		rt: types.Runtime{
			ID:        id,
			Name:      in.Name,
			ARN:       c.runtimeARN(id),
			Version:   1,
			Config:    in.Config,
			CreatedAt: now,
			UpdatedAt: now,
		},
		versions:  map[types.Version]types.RuntimeConfig{1: in.Config},
		endpoints: make(map[string]*endpointRecord),
	}
	c.startRuntime(r, types.RuntimeStatusCreating, types.RuntimeStatusCreateFailed)
	r.endpoints[types.DefaultEndpointName] = &endpointRecord{
		ep: types.Endpoint{
			Name:        types.DefaultEndpointName,
			ARN:         c.endpointARN(id, types.DefaultEndpointName),
			RuntimeID:   id,
			LiveVersion: 1,
			Status:      types.EndpointStatusReady,
		},
	}
	c.runtimes[id] = r

	out := r.rt
	return &out, nil
}

// UpdateRuntime publishes the next version of a runtime. The DEFAULT
// endpoint follows the new version.
func (c *ControlPlane) UpdateRuntime(ctx context.Context, in controlplane.UpdateRuntimeInput) (*types.Runtime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpUpdateRuntime
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, ok := c.runtimes[in.ID]
	if !ok {
		return nil, controlplane.NotFound(op, "runtime %s not found", in.ID)
	}
	if r.rt.Status.IsInProgress() {
		return nil, controlplane.Conflict(op, "runtime %s is %s", in.ID, r.rt.Status)
	}
	if err := validateConfig(op, in.Config); err != nil {
		return nil, err
	}

	next := r.rt.Version.Next()
	r.versions[next] = in.Config
	r.rt.Version = next
	r.rt.Config = in.Config
	r.rt.UpdatedAt = c.now()
	c.startRuntime(r, types.RuntimeStatusUpdating, types.RuntimeStatusUpdateFailed)
	if d, ok := r.endpoints[types.DefaultEndpointName]; ok {
		d.ep.LiveVersion = next
	}

	out := r.rt
	return &out, nil
}

// GetRuntime returns the runtime, advancing its simulated convergence by
// one poll.
func (c *ControlPlane) GetRuntime(ctx context.Context, id types.RuntimeID) (*types.Runtime, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpGetRuntime
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, ok := c.runtimes[id]
	if !ok {
		return nil, controlplane.NotFound(op, "runtime %s not found", id)
	}

	if r.pending > 0 {
		r.pending--
	} else if r.settle != "" {
		if r.settle == types.RuntimeStatusDeleted {
			delete(c.runtimes, id)
			return nil, controlplane.NotFound(op, "runtime %s not found", id)
		}
		r.rt.Status = r.settle
		r.rt.FailureReason = r.reason
		r.settle = ""
	}

	out := r.rt
	return &out, nil
}

// ListRuntimes returns every runtime ordered by name.
func (c *ControlPlane) ListRuntimes(ctx context.Context) ([]types.RuntimeSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, controlplane.OpListRuntimes); err != nil {
		return nil, err
	}
	out := make([]types.RuntimeSummary, 0, len(c.runtimes))
	for _, r := range c.runtimes {
		out = append(out, types.RuntimeSummary{
			ID:          r.rt.ID,
			Name:        r.rt.Name,
			ARN:         r.rt.ARN,
			Version:     r.rt.Version,
			Status:      r.rt.Status,
			Description: r.rt.Config.Description,
			UpdatedAt:   r.rt.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteRuntime starts deleting a runtime. It disappears once the
// deletion has converged.
func (c *ControlPlane) DeleteRuntime(ctx context.Context, id types.RuntimeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpDeleteRuntime
	if err := c.begin(ctx, op); err != nil {
		return err
	}
	r, ok := c.runtimes[id]
	if !ok {
		return controlplane.NotFound(op, "runtime %s not found", id)
	}
	r.rt.Status = types.RuntimeStatusDeleting
	r.pending = c.convergePolls
	r.settle = types.RuntimeStatusDeleted
	return nil
}

func (c *ControlPlane) lookupRuntime(op string, id types.RuntimeID) (*runtimeRecord, error) {
	r, ok := c.runtimes[id]
	if !ok {
		return nil, controlplane.NotFound(op, "runtime %s not found", id)
	}
	return r, nil
}

// CreateEndpoint points a new endpoint at an existing version.
func (c *ControlPlane) CreateEndpoint(ctx context.Context, in controlplane.EndpointInput) (*types.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpCreateEndpoint
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, err := c.lookupRuntime(op, in.RuntimeID)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateEndpointName(in.Name); err != nil {
		return nil, controlplane.NewAPIError(op, controlplane.CodeValidation, err.Error())
	}
	if _, exists := r.endpoints[in.Name]; exists {
		return nil, controlplane.Conflict(op, "endpoint %s already exists", in.Name)
	}
	if _, ok := r.versions[in.Version]; !ok {
		return nil, controlplane.NotFound(op, "version %s of runtime %s not found", in.Version, in.RuntimeID)
	}

	e := &endpointRecord{
		ep: types.Endpoint{
			Name:          in.Name,
			ARN:           c.endpointARN(in.RuntimeID, in.Name),
			RuntimeID:     in.RuntimeID,
			TargetVersion: in.Version,
			Description:   in.Description,
		},
	}
	c.startEndpoint(e, types.EndpointStatusCreating, types.EndpointStatusCreateFailed)
	r.endpoints[in.Name] = e

	out := e.ep
	return &out, nil
}

// UpdateEndpoint repoints an endpoint. A missing version leaves the
// endpoint untouched.
func (c *ControlPlane) UpdateEndpoint(ctx context.Context, in controlplane.EndpointInput) (*types.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpUpdateEndpoint
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, err := c.lookupRuntime(op, in.RuntimeID)
	if err != nil {
		return nil, err
	}
	e, ok := r.endpoints[in.Name]
	if !ok {
		return nil, controlplane.NotFound(op, "endpoint %s not found", in.Name)
	}
	if types.IsReservedEndpoint(in.Name) {
		return nil, controlplane.NewAPIError(op, controlplane.CodeValidation, "the DEFAULT endpoint cannot be updated")
	}
	if _, ok := r.versions[in.Version]; !ok {
		return nil, controlplane.NotFound(op, "version %s of runtime %s not found", in.Version, in.RuntimeID)
	}

	e.ep.TargetVersion = in.Version
	if in.Description != "" {
		e.ep.Description = in.Description
	}
	c.startEndpoint(e, types.EndpointStatusUpdating, types.EndpointStatusUpdateFailed)

	out := e.ep
	return &out, nil
}

// GetEndpoint returns an endpoint, advancing its simulated convergence by
// one poll.
func (c *ControlPlane) GetEndpoint(ctx context.Context, id types.RuntimeID, name string) (*types.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpGetEndpoint
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, err := c.lookupRuntime(op, id)
	if err != nil {
		return nil, err
	}
	e, ok := r.endpoints[name]
	if !ok {
		return nil, controlplane.NotFound(op, "endpoint %s not found", name)
	}

	if e.pending > 0 {
		e.pending--
	} else if e.settle != "" {
		switch e.settle {
		case types.EndpointStatusDeleted:
			delete(r.endpoints, name)
			return nil, controlplane.NotFound(op, "endpoint %s not found", name)
		case types.EndpointStatusReady:
			e.ep.LiveVersion = e.ep.TargetVersion
		}
		e.ep.Status = e.settle
		e.ep.FailureReason = e.reason
		e.settle = ""
	}

	out := e.ep
	return &out, nil
}

// ListEndpoints returns the runtime's endpoints, DEFAULT included, ordered
// by name.
func (c *ControlPlane) ListEndpoints(ctx context.Context, id types.RuntimeID) ([]types.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpListEndpoints
	if err := c.begin(ctx, op); err != nil {
		return nil, err
	}
	r, err := c.lookupRuntime(op, id)
	if err != nil {
		return nil, err
	}
	out := make([]types.Endpoint, 0, len(r.endpoints))
	for _, e := range r.endpoints {
		out = append(out, e.ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteEndpoint starts deleting an endpoint.
func (c *ControlPlane) DeleteEndpoint(ctx context.Context, id types.RuntimeID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	const op = controlplane.OpDeleteEndpoint
	if err := c.begin(ctx, op); err != nil {
		return err
	}
	r, err := c.lookupRuntime(op, id)
	if err != nil {
		return err
	}
	e, ok := r.endpoints[name]
	if !ok {
		return controlplane.NotFound(op, "endpoint %s not found", name)
	}
	if types.IsReservedEndpoint(name) {
		return controlplane.NewAPIError(op, controlplane.CodeValidation, "the DEFAULT endpoint cannot be deleted")
	}
	e.ep.Status = types.EndpointStatusDeleting
	e.pending = c.convergePolls
	e.settle = types.EndpointStatusDeleted
	return nil
}
