// Package agentcore implements controlplane.ControlPlane on top of the
// Bedrock AgentCore control API.
package agentcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	bac "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	bactypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// API is the subset of the AgentCore control client used here.
type API interface {
	CreateAgentRuntime(ctx context.Context, in *bac.CreateAgentRuntimeInput, optFns ...func(*bac.Options)) (*bac.CreateAgentRuntimeOutput, error)
	UpdateAgentRuntime(ctx context.Context, in *bac.UpdateAgentRuntimeInput, optFns ...func(*bac.Options)) (*bac.UpdateAgentRuntimeOutput, error)
	GetAgentRuntime(ctx context.Context, in *bac.GetAgentRuntimeInput, optFns ...func(*bac.Options)) (*bac.GetAgentRuntimeOutput, error)
	ListAgentRuntimes(ctx context.Context, in *bac.ListAgentRuntimesInput, optFns ...func(*bac.Options)) (*bac.ListAgentRuntimesOutput, error)
	DeleteAgentRuntime(ctx context.Context, in *bac.DeleteAgentRuntimeInput, optFns ...func(*bac.Options)) (*bac.DeleteAgentRuntimeOutput, error)

	CreateAgentRuntimeEndpoint(ctx context.Context, in *bac.CreateAgentRuntimeEndpointInput, optFns ...func(*bac.Options)) (*bac.CreateAgentRuntimeEndpointOutput, error)
	UpdateAgentRuntimeEndpoint(ctx context.Context, in *bac.UpdateAgentRuntimeEndpointInput, optFns ...func(*bac.Options)) (*bac.UpdateAgentRuntimeEndpointOutput, error)
	GetAgentRuntimeEndpoint(ctx context.Context, in *bac.GetAgentRuntimeEndpointInput, optFns ...func(*bac.Options)) (*bac.GetAgentRuntimeEndpointOutput, error)
	ListAgentRuntimeEndpoints(ctx context.Context, in *bac.ListAgentRuntimeEndpointsInput, optFns ...func(*bac.Options)) (*bac.ListAgentRuntimeEndpointsOutput, error)
	DeleteAgentRuntimeEndpoint(ctx context.Context, in *bac.DeleteAgentRuntimeEndpointInput, optFns ...func(*bac.Options)) (*bac.DeleteAgentRuntimeEndpointOutput, error)
}

// ControlPlane talks to the AgentCore control API.
type ControlPlane struct {
	api    API
	logger log.Logger
}

var _ controlplane.ControlPlane = (*ControlPlane)(nil)

// New wraps an AgentCore control client.
func New(api API, logger log.Logger) *ControlPlane {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &ControlPlane{api: api, logger: logger.WithComponent("agentcore")}
}

// NewFromConfig builds the client from a shared SDK config.
func NewFromConfig(cfg aws.Config, logger log.Logger) *ControlPlane {
	return New(bac.NewFromConfig(cfg), logger)
}

// translate converts provider errors into APIErrors wrapping the matching
// sentinel. Non-API errors such as context cancellation pass through.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return controlplane.NewAPIError(op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s: %w", op, err)
}

func clientToken(token string) *string {
	if token == "" {
		token = uuid.NewString()
	}
	return aws.String(token)
}

func parseVersion(op string, s *string) (types.Version, error) {
	if s == nil || *s == "" {
		return 0, nil
	}
	v, err := types.ParseVersion(*s)
	if err != nil {
		return 0, fmt.Errorf("%s: unexpected version %q: %w", op, *s, err)
	}
	return v, nil
}

// artifact builds the runtime artifact union from an ArtifactRef.
func artifact(cfg types.RuntimeConfig) bactypes.AgentRuntimeArtifact {
	if cfg.Artifact.Kind() == types.ArtifactKindContainer {
		return &bactypes.AgentRuntimeArtifactMemberContainerConfiguration{
			Value: bactypes.ContainerConfiguration{ContainerUri: aws.String(cfg.Artifact.ImageURI)},
		}
	}
	return &bactypes.AgentRuntimeArtifactMemberCodeConfiguration{
		Value: bactypes.CodeConfiguration{
			Code: &bactypes.CodeMemberS3{
				Value: bactypes.S3Location{
					Bucket: aws.String(cfg.Artifact.Bucket),
					Prefix: aws.String(cfg.Artifact.Key),
				},
			},
			Runtime:    bactypes.AgentManagedRuntimeType(cfg.Runtime),
			EntryPoint: cfg.EntryPoint,
		},
	}
}

// artifactRef is the inverse of artifact.
func artifactRef(a bactypes.AgentRuntimeArtifact) types.ArtifactRef {
	switch v := a.(type) {
	case *bactypes.AgentRuntimeArtifactMemberContainerConfiguration:
		return types.ContainerArtifact(aws.ToString(v.Value.ContainerUri))
	case *bactypes.AgentRuntimeArtifactMemberCodeConfiguration:
		if s3, ok := v.Value.Code.(*bactypes.CodeMemberS3); ok {
			return types.CodeArtifact(aws.ToString(s3.Value.Bucket), aws.ToString(s3.Value.Prefix))
		}
	}
	return types.ArtifactRef{}
}

func network(mode types.NetworkMode) *bactypes.NetworkConfiguration {
	if mode == "" {
		mode = types.NetworkModePublic
	}
	return &bactypes.NetworkConfiguration{NetworkMode: bactypes.NetworkMode(mode)}
}

func protocol(p types.ServerProtocol) *bactypes.ProtocolConfiguration {
	if p == "" {
		return nil
	}
	return &bactypes.ProtocolConfiguration{ServerProtocol: bactypes.ServerProtocol(p)}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// CreateRuntime creates a runtime.
func (c *ControlPlane) CreateRuntime(ctx context.Context, in controlplane.CreateRuntimeInput) (*types.Runtime, error) {
	const op = controlplane.OpCreateRuntime
	c.logger.Debug("creating runtime", log.Runtime(in.Name), log.Str("artifact", in.Config.Artifact.String()))

	out, err := c.api.CreateAgentRuntime(ctx, &bac.CreateAgentRuntimeInput{
		AgentRuntimeName:      aws.String(in.Name),
		AgentRuntimeArtifact:  artifact(in.Config),
		RoleArn:               aws.String(in.Config.RoleARN),
		NetworkConfiguration:  network(in.Config.Network),
		ProtocolConfiguration: protocol(in.Config.Protocol),
		Description:           optionalString(in.Config.Description),
		EnvironmentVariables:  in.Config.Env,
		ClientToken:           clientToken(in.ClientToken),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	version, err := parseVersion(op, out.AgentRuntimeVersion)
	if err != nil {
		return nil, err
	}
	return &types.Runtime{
		ID:        types.RuntimeID(aws.ToString(out.AgentRuntimeId)),
		Name:      in.Name,
		ARN:       aws.ToString(out.AgentRuntimeArn),
		Version:   version,
		Status:    types.RuntimeStatus(out.Status),
		Config:    in.Config,
		CreatedAt: aws.ToTime(out.CreatedAt),
	}, nil
}

// UpdateRuntime publishes a new version of a runtime.
func (c *ControlPlane) UpdateRuntime(ctx context.Context, in controlplane.UpdateRuntimeInput) (*types.Runtime, error) {
	const op = controlplane.OpUpdateRuntime
	c.logger.Debug("updating runtime", log.Str("runtime_id", string(in.ID)), log.Str("artifact", in.Config.Artifact.String()))

	out, err := c.api.UpdateAgentRuntime(ctx, &bac.UpdateAgentRuntimeInput{
		AgentRuntimeId:        aws.String(string(in.ID)),
		AgentRuntimeArtifact:  artifact(in.Config),
		RoleArn:               aws.String(in.Config.RoleARN),
		NetworkConfiguration:  network(in.Config.Network),
		ProtocolConfiguration: protocol(in.Config.Protocol),
		Description:           optionalString(in.Config.Description),
		EnvironmentVariables:  in.Config.Env,
		ClientToken:           clientToken(in.ClientToken),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	version, err := parseVersion(op, out.AgentRuntimeVersion)
	if err != nil {
		return nil, err
	}
	return &types.Runtime{
		ID:        types.RuntimeID(aws.ToString(out.AgentRuntimeId)),
		ARN:       aws.ToString(out.AgentRuntimeArn),
		Version:   version,
		Status:    types.RuntimeStatus(out.Status),
		Config:    in.Config,
		CreatedAt: aws.ToTime(out.CreatedAt),
		UpdatedAt: aws.ToTime(out.LastUpdatedAt),
	}, nil
}

// GetRuntime fetches the latest version of a runtime.
func (c *ControlPlane) GetRuntime(ctx context.Context, id types.RuntimeID) (*types.Runtime, error) {
	const op = controlplane.OpGetRuntime
	out, err := c.api.GetAgentRuntime(ctx, &bac.GetAgentRuntimeInput{AgentRuntimeId: aws.String(string(id))})
	if err != nil {
		return nil, translate(op, err)
	}

	version, err := parseVersion(op, out.AgentRuntimeVersion)
	if err != nil {
		return nil, err
	}
	rt := &types.Runtime{
		ID:      types.RuntimeID(aws.ToString(out.AgentRuntimeId)),
		Name:    aws.ToString(out.AgentRuntimeName),
		ARN:     aws.ToString(out.AgentRuntimeArn),
		Version: version,
		Status:  types.RuntimeStatus(out.Status),
		Config: types.RuntimeConfig{
			Artifact:    artifactRef(out.AgentRuntimeArtifact),
			RoleARN:     aws.ToString(out.RoleArn),
			Description: aws.ToString(out.Description),
			Env:         out.EnvironmentVariables,
		},
		CreatedAt: aws.ToTime(out.CreatedAt),
		UpdatedAt: aws.ToTime(out.LastUpdatedAt),
	}
	if out.NetworkConfiguration != nil {
		rt.Config.Network = types.NetworkMode(out.NetworkConfiguration.NetworkMode)
	}
	if out.ProtocolConfiguration != nil {
		rt.Config.Protocol = types.ServerProtocol(out.ProtocolConfiguration.ServerProtocol)
	}
	return rt, nil
}

// ListRuntimes pages through every runtime in the region.
func (c *ControlPlane) ListRuntimes(ctx context.Context) ([]types.RuntimeSummary, error) {
	const op = controlplane.OpListRuntimes
	var (
		result []types.RuntimeSummary
		token  *string
	)
	for {
		out, err := c.api.ListAgentRuntimes(ctx, &bac.ListAgentRuntimesInput{NextToken: token})
		if err != nil {
			return nil, translate(op, err)
		}
		for _, r := range out.AgentRuntimes {
			version, err := parseVersion(op, r.AgentRuntimeVersion)
			if err != nil {
				return nil, err
			}
			result = append(result, types.RuntimeSummary{
				ID:          types.RuntimeID(aws.ToString(r.AgentRuntimeId)),
				Name:        aws.ToString(r.AgentRuntimeName),
				ARN:         aws.ToString(r.AgentRuntimeArn),
				Version:     version,
				Status:      types.RuntimeStatus(r.Status),
				Description: aws.ToString(r.Description),
				UpdatedAt:   aws.ToTime(r.LastUpdatedAt),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return result, nil
		}
		token = out.NextToken
	}
}

// DeleteRuntime starts deleting a runtime.
func (c *ControlPlane) DeleteRuntime(ctx context.Context, id types.RuntimeID) error {
	c.logger.Debug("deleting runtime", log.Str("runtime_id", string(id)))
	_, err := c.api.DeleteAgentRuntime(ctx, &bac.DeleteAgentRuntimeInput{AgentRuntimeId: aws.String(string(id))})
	return translate(controlplane.OpDeleteRuntime, err)
}

// CreateEndpoint creates an endpoint pointing at a version.
func (c *ControlPlane) CreateEndpoint(ctx context.Context, in controlplane.EndpointInput) (*types.Endpoint, error) {
	const op = controlplane.OpCreateEndpoint
	c.logger.Debug("creating endpoint", log.Endpoint(in.Name), log.Version(in.Version))

	out, err := c.api.CreateAgentRuntimeEndpoint(ctx, &bac.CreateAgentRuntimeEndpointInput{
		AgentRuntimeId:      aws.String(string(in.RuntimeID)),
		Name:                aws.String(in.Name),
		AgentRuntimeVersion: aws.String(in.Version.String()),
		Description:         optionalString(in.Description),
		ClientToken:         clientToken(in.ClientToken),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	target, err := parseVersion(op, out.TargetVersion)
	if err != nil {
		return nil, err
	}
	return &types.Endpoint{
		Name:          in.Name,
		ARN:           aws.ToString(out.AgentRuntimeEndpointArn),
		RuntimeID:     in.RuntimeID,
		TargetVersion: target,
		Status:        types.EndpointStatus(out.Status),
		Description:   in.Description,
	}, nil
}

// UpdateEndpoint repoints an endpoint at a version.
func (c *ControlPlane) UpdateEndpoint(ctx context.Context, in controlplane.EndpointInput) (*types.Endpoint, error) {
	const op = controlplane.OpUpdateEndpoint
	c.logger.Debug("updating endpoint", log.Endpoint(in.Name), log.Version(in.Version))

	out, err := c.api.UpdateAgentRuntimeEndpoint(ctx, &bac.UpdateAgentRuntimeEndpointInput{
		AgentRuntimeId:      aws.String(string(in.RuntimeID)),
		EndpointName:        aws.String(in.Name),
		AgentRuntimeVersion: aws.String(in.Version.String()),
		Description:         optionalString(in.Description),
		ClientToken:         clientToken(in.ClientToken),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	live, err := parseVersion(op, out.LiveVersion)
	if err != nil {
		return nil, err
	}
	target, err := parseVersion(op, out.TargetVersion)
	if err != nil {
		return nil, err
	}
	return &types.Endpoint{
		Name:          in.Name,
		ARN:           aws.ToString(out.AgentRuntimeEndpointArn),
		RuntimeID:     in.RuntimeID,
		LiveVersion:   live,
		TargetVersion: target,
		Status:        types.EndpointStatus(out.Status),
		Description:   in.Description,
	}, nil
}

// GetEndpoint fetches an endpoint.
func (c *ControlPlane) GetEndpoint(ctx context.Context, id types.RuntimeID, name string) (*types.Endpoint, error) {
	const op = controlplane.OpGetEndpoint
	out, err := c.api.GetAgentRuntimeEndpoint(ctx, &bac.GetAgentRuntimeEndpointInput{
		AgentRuntimeId: aws.String(string(id)),
		EndpointName:   aws.String(name),
	})
	if err != nil {
		return nil, translate(op, err)
	}

	live, err := parseVersion(op, out.LiveVersion)
	if err != nil {
		return nil, err
	}
	target, err := parseVersion(op, out.TargetVersion)
	if err != nil {
		return nil, err
	}
	return &types.Endpoint{
		Name:          aws.ToString(out.Name),
		ARN:           aws.ToString(out.AgentRuntimeEndpointArn),
		RuntimeID:     id,
		LiveVersion:   live,
		TargetVersion: target,
		Status:        types.EndpointStatus(out.Status),
		Description:   aws.ToString(out.Description),
	}, nil
}

// ListEndpoints pages through a runtime's endpoints.
func (c *ControlPlane) ListEndpoints(ctx context.Context, id types.RuntimeID) ([]types.Endpoint, error) {
	const op = controlplane.OpListEndpoints
	var (
		result []types.Endpoint
		token  *string
	)
	for {
		out, err := c.api.ListAgentRuntimeEndpoints(ctx, &bac.ListAgentRuntimeEndpointsInput{
			AgentRuntimeId: aws.String(string(id)),
			NextToken:      token,
		})
		if err != nil {
			return nil, translate(op, err)
		}
		for _, e := range out.RuntimeEndpoints {
			live, err := parseVersion(op, e.LiveVersion)
			if err != nil {
				return nil, err
			}
			target, err := parseVersion(op, e.TargetVersion)
			if err != nil {
				return nil, err
			}
			result = append(result, types.Endpoint{
				Name:          aws.ToString(e.Name),
				ARN:           aws.ToString(e.AgentRuntimeEndpointArn),
				RuntimeID:     id,
				LiveVersion:   live,
				TargetVersion: target,
				Status:        types.EndpointStatus(e.Status),
				Description:   aws.ToString(e.Description),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return result, nil
		}
		token = out.NextToken
	}
}

// DeleteEndpoint starts deleting an endpoint.
func (c *ControlPlane) DeleteEndpoint(ctx context.Context, id types.RuntimeID, name string) error {
	c.logger.Debug("deleting endpoint", log.Endpoint(name))
	_, err := c.api.DeleteAgentRuntimeEndpoint(ctx, &bac.DeleteAgentRuntimeEndpointInput{
		AgentRuntimeId: aws.String(string(id)),
		EndpointName:   aws.String(name),
	})
	return translate(controlplane.OpDeleteEndpoint, err)
}
