package waiter

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/agentdeploy/pkg/types"
)

// RuntimeGetter reads a runtime by id.
type RuntimeGetter interface {
	GetRuntime(ctx context.Context, id types.RuntimeID) (*types.Runtime, error)
}

// EndpointGetter reads an endpoint by runtime id and name.
type EndpointGetter interface {
	GetEndpoint(ctx context.Context, id types.RuntimeID, name string) (*types.Endpoint, error)
}

// RuntimeReady waits for a runtime to become READY. CREATE_FAILED and
// UPDATE_FAILED end the wait immediately.
func RuntimeReady(cp RuntimeGetter, id types.RuntimeID) Condition[*types.Runtime] {
	return Condition[*types.Runtime]{
		Fetch: func(ctx context.Context) (*types.Runtime, error) {
			return cp.GetRuntime(ctx, id)
		},
		Done: func(rt *types.Runtime) bool {
			return rt.Status == types.RuntimeStatusReady
		},
		Failed: func(rt *types.Runtime) (bool, string) {
			return rt.Status == types.RuntimeStatusCreateFailed || rt.Status == types.RuntimeStatusUpdateFailed, rt.FailureReason
		},
		Describe: describeRuntime,
	}
}

// RuntimeDeleted waits until the runtime can no longer be found.
// DELETE_FAILED ends the wait immediately.
func RuntimeDeleted(cp RuntimeGetter, id types.RuntimeID) Condition[*types.Runtime] {
	return Condition[*types.Runtime]{
		Fetch: func(ctx context.Context) (*types.Runtime, error) {
			return cp.GetRuntime(ctx, id)
		},
		Done: func(rt *types.Runtime) bool {
			return rt.Status == types.RuntimeStatusDeleted
		},
		Failed: func(rt *types.Runtime) (bool, string) {
			return rt.Status == types.RuntimeStatusDeleteFailed, rt.FailureReason
		},
		Describe: describeRuntime,
		Tolerate: func(err error) (*types.Runtime, bool) {
			if errors.Is(err, types.ErrNotFound) {
				return &types.Runtime{ID: id, Status: types.RuntimeStatusDeleted}, true
			}
			return nil, false
		},
	}
}

// EndpointReady waits for an endpoint to become READY and serve version.
// A zero version accepts any version.
func EndpointReady(cp EndpointGetter, id types.RuntimeID, name string, version types.Version) Condition[*types.Endpoint] {
	return Condition[*types.Endpoint]{
		Fetch: func(ctx context.Context) (*types.Endpoint, error) {
			return cp.GetEndpoint(ctx, id, name)
		},
		Done: func(ep *types.Endpoint) bool {
			if ep.Status != types.EndpointStatusReady {
				return false
			}
			return version.IsZero() || ep.LiveVersion == version
		},
		Failed: func(ep *types.Endpoint) (bool, string) {
			return ep.Status.IsFailed(), ep.FailureReason
		},
		Describe: describeEndpoint,
	}
}

// EndpointDeleted waits until the endpoint can no longer be found.
func EndpointDeleted(cp EndpointGetter, id types.RuntimeID, name string) Condition[*types.Endpoint] {
	return Condition[*types.Endpoint]{
		Fetch: func(ctx context.Context) (*types.Endpoint, error) {
			return cp.GetEndpoint(ctx, id, name)
		},
		Done: func(ep *types.Endpoint) bool {
			return ep.Status == types.EndpointStatusDeleted
		},
		Describe: describeEndpoint,
		Tolerate: func(err error) (*types.Endpoint, bool) {
			if errors.Is(err, types.ErrNotFound) {
				return &types.Endpoint{Name: name, RuntimeID: id, Status: types.EndpointStatusDeleted}, true
			}
			return nil, false
		},
	}
}

func describeRuntime(rt *types.Runtime) string {
	return string(rt.Status)
}

func describeEndpoint(ep *types.Endpoint) string {
	if ep.Status == types.EndpointStatusUpdating && !ep.TargetVersion.IsZero() {
		return fmt.Sprintf("%s (%s -> %s)", ep.Status, ep.LiveVersion, ep.TargetVersion)
	}
	return string(ep.Status)
}
