package deploy

import (
	"fmt"
	"time"

	"github.com/rzbill/agentdeploy/pkg/packager"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// State is a step of the deployment pipeline.
type State string

const (
	StatePending        State = "PENDING"
	StatePackaging      State = "PACKAGING"
	StatePublishing     State = "PUBLISHING"
	StateResourceUpsert State = "RESOURCE_UPSERT"
	StateWaitingReady   State = "WAITING_READY"
	StateAliasUpsert    State = "ALIAS_UPSERT"
	StateWaitingAlias   State = "WAITING_ALIAS"
	StateDone           State = "DONE"
	StateFailed         State = "FAILED"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Mode selects whether a deployment creates or updates its runtime.
type Mode string

const (
	// ModeAuto updates the runtime when it exists and creates it otherwise.
	ModeAuto   Mode = "auto"
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// BundleSource says where the artifact comes from. Exactly one of Build,
// Path and ImageURI is used, checked in the order ImageURI, Path, Build.
type BundleSource struct {
	Build    packager.Options
	Path     string
	ImageURI string
}

// Request is one deployment.
type Request struct {
	RuntimeName string
	// EndpointName is optional. Without it the pipeline stops once the
	// runtime is READY.
	EndpointName string
	Mode         Mode
	Environment  types.Environment
	Bundle       BundleSource
	Description  string
}

// Transition records one state change.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// Result describes a deployment, complete or not. On failure it holds
// whatever was known when the pipeline stopped.
type Result struct {
	RuntimeName     string            `json:"runtimeName"`
	RuntimeID       types.RuntimeID   `json:"runtimeId,omitempty"`
	RuntimeARN      string            `json:"runtimeArn,omitempty"`
	Version         types.Version     `json:"version,omitempty"`
	EndpointName    string            `json:"endpointName,omitempty"`
	EndpointARN     string            `json:"endpointArn,omitempty"`
	Environment     types.Environment `json:"environment"`
	Artifact        types.ArtifactRef `json:"artifact"`
	Bundle          *packager.Bundle  `json:"bundle,omitempty"`
	Created         bool              `json:"created"`
	EndpointCreated bool              `json:"endpointCreated"`
	State           State             `json:"state"`
	FailedState     State             `json:"failedState,omitempty"`
	Transitions     []Transition      `json:"transitions"`
	StartedAt       time.Time         `json:"startedAt"`
	FinishedAt      time.Time         `json:"finishedAt"`
}

// Duration is the wall time of the deployment.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageError wraps the error that moved a deployment to FAILED.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deployment failed in %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// EndpointDescription is the description written on the endpoint. A
// preview endpoint is described when created; an empty result leaves the
// current description in place.
func EndpointDescription(env types.Environment, runtimeName string, version types.Version, create bool) string {
	if env == types.EnvironmentProduction {
		return fmt.Sprintf("Production endpoint - Version %s", version)
	}
	if !create {
		return ""
	}
	return fmt.Sprintf("PR endpoint for %s", runtimeName)
}
