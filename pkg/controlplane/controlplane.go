// Package controlplane defines the calls agentdeploy makes against the
// managed agent runtime service.
package controlplane

import (
	"context"
	"fmt"

	"github.com/rzbill/agentdeploy/pkg/types"
)

// Error codes reported by the service. The memory fake reports the same
// codes so callers see identical errors in tests and in production.
const (
	CodeNotFound     = "ResourceNotFoundException"
	CodeConflict     = "ConflictException"
	CodeAccessDenied = "AccessDeniedException"
	CodeValidation   = "ValidationException"
	CodeThrottling   = "ThrottlingException"
	CodeQuota        = "ServiceQuotaExceededException"
)

// CreateRuntimeInput is the payload of a runtime create call.
type CreateRuntimeInput struct {
	Name        string
	Config      types.RuntimeConfig
	ClientToken string
}

// UpdateRuntimeInput is the payload of a runtime update call. An update
// always produces a new version.
type UpdateRuntimeInput struct {
	ID          types.RuntimeID
	Config      types.RuntimeConfig
	ClientToken string
}

// EndpointInput is the payload of endpoint create and update calls.
type EndpointInput struct {
	RuntimeID   types.RuntimeID
	Name        string
	Version     types.Version
	Description string
	ClientToken string
}

// ControlPlane is the runtime service API. Every call is a single remote
// request; none of them retry.
type ControlPlane interface {
	CreateRuntime(ctx context.Context, in CreateRuntimeInput) (*types.Runtime, error)
	UpdateRuntime(ctx context.Context, in UpdateRuntimeInput) (*types.Runtime, error)
	GetRuntime(ctx context.Context, id types.RuntimeID) (*types.Runtime, error)
	ListRuntimes(ctx context.Context) ([]types.RuntimeSummary, error)
	DeleteRuntime(ctx context.Context, id types.RuntimeID) error

	CreateEndpoint(ctx context.Context, in EndpointInput) (*types.Endpoint, error)
	UpdateEndpoint(ctx context.Context, in EndpointInput) (*types.Endpoint, error)
	GetEndpoint(ctx context.Context, id types.RuntimeID, name string) (*types.Endpoint, error)
	ListEndpoints(ctx context.Context, id types.RuntimeID) ([]types.Endpoint, error)
	DeleteEndpoint(ctx context.Context, id types.RuntimeID, name string) error
}

// sentinels maps provider codes onto the error kinds callers test for.
var sentinels = map[string]error{
	CodeNotFound:     types.ErrNotFound,
	CodeConflict:     types.ErrAlreadyExists,
	CodeAccessDenied: types.ErrAccessDenied,
	CodeValidation:   types.ErrValidation,
}

// NewAPIError builds an APIError for op, wrapping the sentinel that
// matches code when there is one.
func NewAPIError(op, code, message string) *types.APIError {
	return &types.APIError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     sentinels[code],
	}
}

// NotFound is shorthand for a ResourceNotFoundException APIError.
func NotFound(op, format string, args ...interface{}) *types.APIError {
	return NewAPIError(op, CodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict is shorthand for a ConflictException APIError.
func Conflict(op, format string, args ...interface{}) *types.APIError {
	return NewAPIError(op, CodeConflict, fmt.Sprintf(format, args...))
}

// Service operation names, used as APIError.Op.
const (
	OpCreateRuntime  = "CreateAgentRuntime"
	OpUpdateRuntime  = "UpdateAgentRuntime"
	OpGetRuntime     = "GetAgentRuntime"
	OpListRuntimes   = "ListAgentRuntimes"
	OpDeleteRuntime  = "DeleteAgentRuntime"
	OpCreateEndpoint = "CreateAgentRuntimeEndpoint"
	OpUpdateEndpoint = "UpdateAgentRuntimeEndpoint"
	OpGetEndpoint    = "GetAgentRuntimeEndpoint"
	OpListEndpoints  = "ListAgentRuntimeEndpoints"
	OpDeleteEndpoint = "DeleteAgentRuntimeEndpoint"
)
