package types

// DefaultEndpointName is the endpoint the service creates and manages for
// every runtime. It always tracks the latest version and is never deleted
// by this tool.
const DefaultEndpointName = "DEFAULT"

// Environment selects how a deployment labels its endpoint.
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentPreview    Environment = "preview"
)

// NetworkMode is the runtime network configuration.
type NetworkMode string

const (
	NetworkModePublic NetworkMode = "PUBLIC"
	NetworkModeVPC    NetworkMode = "VPC"
)

// ServerProtocol is the protocol the agent entry point speaks.
type ServerProtocol string

const (
	ServerProtocolHTTP ServerProtocol = "HTTP"
	ServerProtocolMCP  ServerProtocol = "MCP"
	ServerProtocolA2A  ServerProtocol = "A2A"
)

// PythonRuntime is the managed interpreter a code bundle runs on.
type PythonRuntime string

const (
	PythonRuntime310 PythonRuntime = "PYTHON_3_10"
	PythonRuntime311 PythonRuntime = "PYTHON_3_11"
	PythonRuntime312 PythonRuntime = "PYTHON_3_12"
	PythonRuntime313 PythonRuntime = "PYTHON_3_13"
)

// MaxBundleBytes is the largest code bundle the service accepts.
const MaxBundleBytes = 250 << 20
