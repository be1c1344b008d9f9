// Package invoke sends a prompt to a deployed agent through one of its
// endpoints.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/rzbill/agentdeploy/pkg/controlplane"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// MinSessionIDLength is the shortest session id the service accepts.
const MinSessionIDLength = 33

// MaxResponseBytes caps how much of a response body is read.
const MaxResponseBytes = 10 << 20

// API is the subset of the data plane client used here.
type API interface {
	InvokeAgentRuntime(ctx context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// Request is one invocation.
type Request struct {
	RuntimeARN string
	// Endpoint is the qualifier. Empty means DEFAULT.
	Endpoint  string
	Prompt    string
	SessionID string
}

// Response is the agent's reply.
type Response struct {
	SessionID   string `json:"sessionId"`
	ContentType string `json:"contentType,omitempty"`
	Body        string `json:"body"`
}

// Client invokes agents.
type Client struct {
	api    API
	logger log.Logger
}

// New creates a Client.
func New(api API, logger log.Logger) *Client {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Client{api: api, logger: logger.WithComponent("invoke")}
}

// NewFromConfig creates a Client from an SDK config.
func NewFromConfig(cfg aws.Config, logger log.Logger) *Client {
	return New(bedrockagentcore.NewFromConfig(cfg), logger)
}

// NewSessionID returns a random session id long enough for the service.
func NewSessionID() string {
	return "session-" + uuid.NewString()
}

// Payload returns the JSON body sent to the agent.
func Payload(prompt string) ([]byte, error) {
	return json.Marshal(map[string]string{"prompt": prompt})
}

// Invoke sends req.Prompt and returns the response body as text.
func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	if !strings.HasPrefix(req.RuntimeARN, "arn:") {
		return nil, types.NewValidationError("%q is not a runtime ARN", req.RuntimeARN)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, types.NewValidationError("prompt is required")
	}
	session := req.SessionID
	if session == "" {
		session = NewSessionID()
	}
	if len(session) < MinSessionIDLength {
		return nil, types.NewValidationError("session id must be at least %d characters", MinSessionIDLength)
	}
	qualifier := req.Endpoint
	if qualifier == "" {
		qualifier = types.DefaultEndpointName
	}

	payload, err := Payload(req.Prompt)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("invoking agent", log.Str("arn", req.RuntimeARN), log.Endpoint(qualifier), log.Str("session", session))

	out, err := c.api.InvokeAgentRuntime(ctx, &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn:  aws.String(req.RuntimeARN),
		Qualifier:        aws.String(qualifier),
		RuntimeSessionId: aws.String(session),
		ContentType:      aws.String("application/json"),
		Accept:           aws.String("application/json"),
		Payload:          payload,
	})
	if err != nil {
		return nil, translate(err)
	}

	res := &Response{SessionID: session, ContentType: aws.ToString(out.ContentType)}
	if s := aws.ToString(out.RuntimeSessionId); s != "" {
		res.SessionID = s
	}
	if out.Response != nil {
		defer out.Response.Close()
		body, err := io.ReadAll(io.LimitReader(out.Response, MaxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read agent response: %w", err)
		}
		res.Body = string(body)
	}
	return res, nil
}

// Pretty returns the body indented when it is JSON and unchanged
// otherwise.
func (r *Response) Pretty() string {
	var v interface{}
	if err := json.Unmarshal([]byte(r.Body), &v); err != nil {
		return r.Body
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return r.Body
	}
	return string(b)
}

const opInvoke = "InvokeAgentRuntime"

func translate(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return controlplane.NewAPIError(opInvoke, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s: %w", opInvoke, err)
}
