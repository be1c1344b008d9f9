// Package endpoint manages named endpoints (aliases) that route traffic
// to one version of a runtime.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/waiter"
)

// Manager creates, repoints and deletes endpoints.
type Manager struct {
	cp     controlplane.ControlPlane
	logger log.Logger
}

// NewManager creates a Manager.
func NewManager(cp controlplane.ControlPlane, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Manager{cp: cp, logger: logger.WithComponent("endpoint")}
}

// Create points a new endpoint at version. It fails with ErrAlreadyExists
// when the name is taken.
func (m *Manager) Create(ctx context.Context, id types.RuntimeID, name string, version types.Version, description string) (*types.Endpoint, error) {
	if err := validate(name, version); err != nil {
		return nil, err
	}
	ep, err := m.cp.CreateEndpoint(ctx, controlplane.EndpointInput{
		RuntimeID:   id,
		Name:        name,
		Version:     version,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint %q: %w", name, err)
	}
	m.logger.Info("endpoint created", log.Endpoint(name), log.Version(version))
	return ep, nil
}

// Update repoints an existing endpoint. When version does not exist the
// call fails with ErrNotFound and the endpoint keeps its previous target.
func (m *Manager) Update(ctx context.Context, id types.RuntimeID, name string, version types.Version, description string) (*types.Endpoint, error) {
	if err := validate(name, version); err != nil {
		return nil, err
	}
	if types.IsReservedEndpoint(name) {
		return nil, fmt.Errorf("cannot repoint %s: %w", name, types.ErrReservedEndpoint)
	}
	ep, err := m.cp.UpdateEndpoint(ctx, controlplane.EndpointInput{
		RuntimeID:   id,
		Name:        name,
		Version:     version,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update endpoint %q: %w", name, err)
	}
	m.logger.Info("endpoint updated", log.Endpoint(name), log.Version(version))
	return ep, nil
}

// Get returns one endpoint.
func (m *Manager) Get(ctx context.Context, id types.RuntimeID, name string) (*types.Endpoint, error) {
	ep, err := m.cp.GetEndpoint(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint %q: %w", name, err)
	}
	return ep, nil
}

// List returns every endpoint of a runtime, DEFAULT included.
func (m *Manager) List(ctx context.Context, id types.RuntimeID) ([]types.Endpoint, error) {
	list, err := m.cp.ListEndpoints(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints of %s: %w", id, err)
	}
	return list, nil
}

// Names returns the endpoint names of a runtime.
func (m *Manager) Names(ctx context.Context, id types.RuntimeID) ([]string, error) {
	list, err := m.List(ctx, id)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, ep := range list {
		names = append(names, ep.Name)
	}
	return names, nil
}

// Delete deletes an endpoint. DEFAULT is rejected with ErrReservedEndpoint.
func (m *Manager) Delete(ctx context.Context, id types.RuntimeID, name string) error {
	if types.IsReservedEndpoint(name) {
		return fmt.Errorf("cannot delete %s: %w", name, types.ErrReservedEndpoint)
	}
	if err := m.cp.DeleteEndpoint(ctx, id, name); err != nil {
		return fmt.Errorf("failed to delete endpoint %q: %w", name, err)
	}
	m.logger.Info("endpoint deletion started", log.Endpoint(name))
	return nil
}

// Upsert creates the endpoint or repoints it when it already exists. The
// returned bool reports whether it was created. describe, when set, gives
// the description for the call; an empty description on update keeps the
// current one.
func (m *Manager) Upsert(ctx context.Context, id types.RuntimeID, name string, version types.Version, describe func(create bool) string) (*types.Endpoint, bool, error) {
	names, err := m.Names(ctx, id)
	if err != nil {
		return nil, false, err
	}
	description := func(create bool) string {
		if describe == nil {
			return ""
		}
		return describe(create)
	}
	for _, n := range names {
		if n == name {
			ep, err := m.Update(ctx, id, name, version, description(false))
			return ep, false, err
		}
	}
	ep, err := m.Create(ctx, id, name, version, description(true))
	return ep, true, err
}

// WaitReady blocks until the endpoint is READY and serving version.
func (m *Manager) WaitReady(ctx context.Context, id types.RuntimeID, name string, version types.Version, opts waiter.Options) (*types.Endpoint, error) {
	return waiter.Poll(ctx, waiter.EndpointReady(m.cp, id, name, version), opts)
}

// WaitDeleted blocks until the endpoint is gone.
func (m *Manager) WaitDeleted(ctx context.Context, id types.RuntimeID, name string, opts waiter.Options) error {
	if opts.Interval == 0 {
		opts.Interval = waiter.DefaultDeleteInterval
	}
	_, err := waiter.Poll(ctx, waiter.EndpointDeleted(m.cp, id, name), opts)
	return err
}

// DeleteAll deletes every endpoint except DEFAULT and waits for each to
// disappear. It stops at the first failure.
func (m *Manager) DeleteAll(ctx context.Context, id types.RuntimeID, opts waiter.Options, onDeleted func(name string)) error {
	names, err := m.Names(ctx, id)
	if err != nil {
		return err
	}
	for _, name := range names {
		if types.IsReservedEndpoint(name) {
			continue
		}
		if err := m.Delete(ctx, id, name); err != nil && !errors.Is(err, types.ErrNotFound) {
			return err
		}
		if err := m.WaitDeleted(ctx, id, name, opts); err != nil {
			return fmt.Errorf("endpoint %q was not deleted: %w", name, err)
		}
		if onDeleted != nil {
			onDeleted(name)
		}
	}
	return nil
}

// GeneratedName returns the name used when a deployment does not name its
// endpoint: endpoint_<runtime-id>_<unix-seconds>, made safe for the
// service's naming rule.
func GeneratedName(id types.RuntimeID, now time.Time) string {
	suffix := fmt.Sprintf("_%d", now.Unix())
	base := "endpoint_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, string(id))
	if limit := types.MaxNameLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

func validate(name string, version types.Version) error {
	if err := types.ValidateEndpointName(name); err != nil {
		return err
	}
	if version.IsZero() {
		return types.NewValidationError("endpoint %q: version is required", name)
	}
	return nil
}
