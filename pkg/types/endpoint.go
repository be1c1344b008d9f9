package types

// EndpointStatus is the lifecycle status of a runtime endpoint.
type EndpointStatus string

const (
	EndpointStatusCreating     EndpointStatus = "CREATING"
	EndpointStatusCreateFailed EndpointStatus = "CREATE_FAILED"
	EndpointStatusUpdating     EndpointStatus = "UPDATING"
	EndpointStatusUpdateFailed EndpointStatus = "UPDATE_FAILED"
	EndpointStatusReady        EndpointStatus = "READY"
	EndpointStatusDeleting     EndpointStatus = "DELETING"

	// EndpointStatusDeleted is produced by waiters once the endpoint is gone.
	EndpointStatusDeleted EndpointStatus = "DELETED"
)

// IsFailed reports whether the status is a terminal failure.
func (s EndpointStatus) IsFailed() bool {
	return s == EndpointStatusCreateFailed || s == EndpointStatusUpdateFailed
}

// Endpoint is a named, repointable reference to one version of a runtime.
// LiveVersion is what traffic reaches now; TargetVersion is set while an
// update is converging.
type Endpoint struct {
	Name          string         `json:"name" yaml:"name"`
	ARN           string         `json:"arn" yaml:"arn"`
	RuntimeID     RuntimeID      `json:"runtimeId" yaml:"runtimeId"`
	LiveVersion   Version        `json:"liveVersion" yaml:"liveVersion"`
	TargetVersion Version        `json:"targetVersion,omitempty" yaml:"targetVersion,omitempty"`
	Status        EndpointStatus `json:"status" yaml:"status"`
	FailureReason string         `json:"failureReason,omitempty" yaml:"failureReason,omitempty"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// ResolvedVersion is the version the endpoint routes to once converged.
func (e *Endpoint) ResolvedVersion() Version {
	if !e.TargetVersion.IsZero() {
		return e.TargetVersion
	}
	return e.LiveVersion
}

// IsReservedEndpoint reports whether name is the service-managed endpoint.
func IsReservedEndpoint(name string) bool {
	return name == DefaultEndpointName
}
