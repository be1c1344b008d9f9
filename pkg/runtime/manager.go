// Package runtime manages the lifecycle of versioned agent runtimes.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

// CreateRequest describes a new runtime.
type CreateRequest struct {
	Name   string
	Config types.RuntimeConfig
}

// UpdateRequest describes the next version of an existing runtime.
type UpdateRequest struct {
	Config types.RuntimeConfig
}

// VersionSkewError is returned when an update produced a version other
// than prior+1, which means another writer touched the runtime.
type VersionSkewError struct {
	ID       types.RuntimeID
	Expected types.Version
	Got      types.Version
}

func (e *VersionSkewError) Error() string {
	return fmt.Sprintf("runtime %s: expected version %s after update, got %s", e.ID, e.Expected, e.Got)
}

func (e *VersionSkewError) Unwrap() error { return types.ErrVersionSkew }

// EndpointsRemainError lists the endpoints blocking a runtime deletion.
type EndpointsRemainError struct {
	ID    types.RuntimeID
	Names []string
}

func (e *EndpointsRemainError) Error() string {
	return fmt.Sprintf("runtime %s still has endpoints: %s", e.ID, strings.Join(e.Names, ", "))
}

func (e *EndpointsRemainError) Unwrap() error { return types.ErrEndpointsRemain }

// Manager wraps the control plane with the runtime invariants: unique
// names, strictly increasing versions and endpoint-free deletion.
type Manager struct {
	cp     controlplane.ControlPlane
	logger log.Logger
}

// NewManager creates a Manager.
func NewManager(cp controlplane.ControlPlane, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Manager{cp: cp, logger: logger.WithComponent("runtime")}
}

// Create creates version 1 of a new runtime. It fails with
// ErrAlreadyExists when the name is taken.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*types.Runtime, error) {
	if err := types.ValidateRuntimeName(req.Name); err != nil {
		return nil, err
	}
	if err := req.Config.Artifact.Validate(); err != nil {
		return nil, err
	}

	id, err := m.Find(ctx, req.Name)
	switch {
	case err == nil:
		return nil, fmt.Errorf("runtime %q (%s): %w", req.Name, id, types.ErrAlreadyExists)
	case !errors.Is(err, types.ErrNotFound):
		return nil, err
	}

	rt, err := m.cp.CreateRuntime(ctx, controlplane.CreateRuntimeInput{Name: req.Name, Config: req.Config})
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime %q: %w", req.Name, err)
	}
	m.logger.Info("runtime created", log.Runtime(req.Name), log.Str("runtime_id", string(rt.ID)), log.Version(rt.Version))
	return rt, nil
}

// Update publishes the next version of a runtime and checks that the
// control plane advanced the version by exactly one.
func (m *Manager) Update(ctx context.Context, id types.RuntimeID, req UpdateRequest) (*types.Runtime, error) {
	if err := req.Config.Artifact.Validate(); err != nil {
		return nil, err
	}

	prior, err := m.cp.GetRuntime(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime %s: %w", id, err)
	}

	rt, err := m.cp.UpdateRuntime(ctx, controlplane.UpdateRuntimeInput{ID: id, Config: req.Config})
	if err != nil {
		return nil, fmt.Errorf("failed to update runtime %s: %w", id, err)
	}
	if rt.Name == "" {
		rt.Name = prior.Name
	}

	if expected := prior.Version.Next(); rt.Version != expected {
		return rt, &VersionSkewError{ID: id, Expected: expected, Got: rt.Version}
	}
	m.logger.Info("runtime updated", log.Str("runtime_id", string(id)), log.Version(rt.Version))
	return rt, nil
}

// Find returns the id of the runtime with the given name.
func (m *Manager) Find(ctx context.Context, name string) (types.RuntimeID, error) {
	list, err := m.cp.ListRuntimes(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list runtimes: %w", err)
	}
	for _, r := range list {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("runtime %q: %w", name, types.ErrNotFound)
}

// Resolve turns an identifier into a runtime id.
func (m *Manager) Resolve(ctx context.Context, ident types.Identifier) (types.RuntimeID, error) {
	switch ident.Kind() {
	case types.IdentifierByID:
		id, _ := ident.ID()
		return id, nil
	case types.IdentifierByName:
		name, _ := ident.Name()
		return m.Find(ctx, name)
	default:
		return "", types.NewValidationError("empty runtime identifier")
	}
}

// Get returns the latest version of a runtime.
func (m *Manager) Get(ctx context.Context, id types.RuntimeID) (*types.Runtime, error) {
	rt, err := m.cp.GetRuntime(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get runtime %s: %w", id, err)
	}
	return rt, nil
}

// List returns every runtime.
func (m *Manager) List(ctx context.Context) ([]types.RuntimeSummary, error) {
	list, err := m.cp.ListRuntimes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runtimes: %w", err)
	}
	return list, nil
}

// NextVersion returns the version the next update will produce.
func (m *Manager) NextVersion(ctx context.Context, id types.RuntimeID) (types.Version, error) {
	rt, err := m.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return rt.Version.Next(), nil
}

// Delete deletes a runtime. It refuses while any endpoint other than
// DEFAULT exists. Deletion cannot be undone.
func (m *Manager) Delete(ctx context.Context, id types.RuntimeID) error {
	endpoints, err := m.cp.ListEndpoints(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list endpoints of %s: %w", id, err)
	}

	var remaining []string
	for _, ep := range endpoints {
		if !types.IsReservedEndpoint(ep.Name) {
			remaining = append(remaining, ep.Name)
		}
	}
	if len(remaining) > 0 {
		sort.Strings(remaining)
		return &EndpointsRemainError{ID: id, Names: remaining}
	}

	if err := m.cp.DeleteRuntime(ctx, id); err != nil {
		return fmt.Errorf("failed to delete runtime %s: %w", id, err)
	}
	m.logger.Info("runtime deletion started", log.Str("runtime_id", string(id)))
	return nil
}

// WaitReady blocks until the runtime is READY or fails.
func (m *Manager) WaitReady(ctx context.Context, id types.RuntimeID, opts waiter.Options) (*types.Runtime, error) {
	return waiter.Poll(ctx, waiter.RuntimeReady(m.cp, id), opts)
}

// WaitDeleted blocks until the runtime is gone.
func (m *Manager) WaitDeleted(ctx context.Context, id types.RuntimeID, opts waiter.Options) error {
	if opts.Interval == 0 {
		opts.Interval = waiter.DefaultDeleteInterval
	}
	_, err := waiter.Poll(ctx, waiter.RuntimeDeleted(m.cp, id), opts)
	return err
}
