package types

import "time"

// RuntimeStatus is the lifecycle status the control plane reports for a
// runtime.
type RuntimeStatus string

const (
	RuntimeStatusCreating     RuntimeStatus = "CREATING"
	RuntimeStatusCreateFailed RuntimeStatus = "CREATE_FAILED"
	RuntimeStatusUpdating     RuntimeStatus = "UPDATING"
	RuntimeStatusUpdateFailed RuntimeStatus = "UPDATE_FAILED"
	RuntimeStatusReady        RuntimeStatus = "READY"
	RuntimeStatusDeleting     RuntimeStatus = "DELETING"
	RuntimeStatusDeleteFailed RuntimeStatus = "DELETE_FAILED"

	// RuntimeStatusDeleted is never reported by the service. Waiters
	// produce it when the runtime can no longer be found.
	RuntimeStatusDeleted RuntimeStatus = "DELETED"
)

// IsFailed reports whether the status is a terminal failure.
func (s RuntimeStatus) IsFailed() bool {
	switch s {
	case RuntimeStatusCreateFailed, RuntimeStatusUpdateFailed, RuntimeStatusDeleteFailed:
		return true
	}
	return false
}

// IsInProgress reports whether an asynchronous operation is running.
func (s RuntimeStatus) IsInProgress() bool {
	switch s {
	case RuntimeStatusCreating, RuntimeStatusUpdating, RuntimeStatusDeleting:
		return true
	}
	return false
}

// RuntimeConfig is the part of a runtime that create and update send.
type RuntimeConfig struct {
	Artifact    ArtifactRef       `json:"artifact" yaml:"artifact"`
	RoleARN     string            `json:"roleArn" yaml:"roleArn"`
	Network     NetworkMode       `json:"networkMode" yaml:"networkMode"`
	Protocol    ServerProtocol    `json:"protocol" yaml:"protocol"`
	Runtime     PythonRuntime     `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	EntryPoint  []string          `json:"entryPoint,omitempty" yaml:"entryPoint,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Runtime is a versioned agent deployment as recorded by the control plane.
type Runtime struct {
	ID            RuntimeID     `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	ARN           string        `json:"arn" yaml:"arn"`
	Version       Version       `json:"version" yaml:"version"`
	Status        RuntimeStatus `json:"status" yaml:"status"`
	FailureReason string        `json:"failureReason,omitempty" yaml:"failureReason,omitempty"`
	Config        RuntimeConfig `json:"config" yaml:"config"`
	CreatedAt     time.Time     `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// RuntimeSummary is one entry of a runtime listing.
type RuntimeSummary struct {
	ID          RuntimeID     `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	ARN         string        `json:"arn" yaml:"arn"`
	Version     Version       `json:"version" yaml:"version"`
	Status      RuntimeStatus `json:"status" yaml:"status"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}
