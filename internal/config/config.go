package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. AGENTDEPLOY_RUNTIME_BUCKET.
const EnvPrefix = "AGENTDEPLOY"

// DefaultRegion is used when neither the config nor the environment names one.
const DefaultRegion = "us-west-2"

type AWS struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`
	// S3Endpoint points the object store at an S3-compatible service.
	S3Endpoint   string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style" yaml:"use_path_style"`
}

// HasStaticCredentials reports whether both halves of a key pair are set.
func (a AWS) HasStaticCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

type Runtime struct {
	RoleARN    string `mapstructure:"role_arn" yaml:"role_arn"`
	Bucket     string `mapstructure:"bucket" yaml:"bucket"`
	EntryPoint string `mapstructure:"entry_point" yaml:"entry_point"`
	Python     string `mapstructure:"python" yaml:"python"`
	Network    string `mapstructure:"network" yaml:"network"`
	Protocol   string `mapstructure:"protocol" yaml:"protocol"`
	ImageURI   string `mapstructure:"image_uri" yaml:"image_uri"`

	// Env holds KEY=VALUE entries; viper lowercases map keys.
	Env []string `mapstructure:"env" yaml:"env"`
}

type Package struct {
	SourceDir     string `mapstructure:"source_dir" yaml:"source_dir"`
	PromptFile    string `mapstructure:"prompt_file" yaml:"prompt_file"`
	Requirements  string `mapstructure:"requirements" yaml:"requirements"`
	InstallDeps   bool   `mapstructure:"install_deps" yaml:"install_deps"`
	Platform      string `mapstructure:"platform" yaml:"platform"`
	PythonVersion string `mapstructure:"python_version" yaml:"python_version"`
	Installer     string `mapstructure:"installer" yaml:"installer"`
}

type Wait struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
	DeleteInterval time.Duration `mapstructure:"delete_interval" yaml:"delete_interval"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type Journal struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

type Config struct {
	AWS     AWS        `mapstructure:"aws" yaml:"aws"`
	Runtime Runtime    `mapstructure:"runtime" yaml:"runtime"`
	Package Package    `mapstructure:"package" yaml:"package"`
	Wait    Wait       `mapstructure:"wait" yaml:"wait"`
	Journal Journal    `mapstructure:"journal" yaml:"journal"`
	Log     log.Config `mapstructure:"log" yaml:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

func Default() *Config {
	return &Config{
		AWS: AWS{Region: DefaultRegion},
		Runtime: Runtime{
			EntryPoint: "agent.py",
			Python:     string(types.PythonRuntime311),
			Network:    string(types.NetworkModePublic),
			Protocol:   string(types.ServerProtocolHTTP),
		},
		Package: Package{
			SourceDir:     "agent",
			Requirements:  "requirements.txt",
			Platform:      "aarch64-manylinux2014",
			PythonVersion: "3.11",
			Installer:     "uv",
		},
		Wait: Wait{
			Interval:       10 * time.Second,
			DeleteInterval: 5 * time.Second,
			Timeout:        300 * time.Second,
		},
		Journal: Journal{Enabled: true, Dir: defaultJournalDir()},
		Log:     log.DefaultConfig(),
	}
}

func defaultJournalDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return filepath.Join(".agentdeploy", "journal")
	}
	return filepath.Join(home, ".agentdeploy", "journal")
}

// envAliases are the conventional variables honoured after the
// AGENTDEPLOY_ ones.
var envAliases = map[string][]string{
	"aws.region":            {"AWS_REGION", "AWS_DEFAULT_REGION"},
	"aws.profile":           {"AWS_PROFILE"},
	"aws.access_key_id":     {"AWS_ACCESS_KEY_ID"},
	"aws.secret_access_key": {"AWS_SECRET_ACCESS_KEY"},
	"aws.session_token":     {"AWS_SESSION_TOKEN"},
	"runtime.role_arn":      {EnvPrefix + "_ROLE_ARN"},
	"runtime.bucket":        {EnvPrefix + "_BUCKET"},
}

// Load reads the configuration. An empty path searches ./agentdeploy.yaml
// then $HOME/.agentdeploy/config.yaml; a missing file is not an error. A
// .env file in the working directory is loaded into the environment first
// without overriding variables that are already set. Environment variables
// override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("agentdeploy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentdeploy"))
		}
	}

	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{key, envName(key)}, aliases...)
		if err := v.BindEnv(names...); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every key so AutomaticEnv can override keys the
// config file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]interface{}{
		"aws.region":             d.AWS.Region,
		"aws.profile":            d.AWS.Profile,
		"aws.access_key_id":      d.AWS.AccessKeyID,
		"aws.secret_access_key":  d.AWS.SecretAccessKey,
		"aws.session_token":      d.AWS.SessionToken,
		"aws.s3_endpoint":        d.AWS.S3Endpoint,
		"aws.use_path_style":     d.AWS.UsePathStyle,
		"runtime.role_arn":       d.Runtime.RoleARN,
		"runtime.bucket":         d.Runtime.Bucket,
		"runtime.entry_point":    d.Runtime.EntryPoint,
		"runtime.python":         d.Runtime.Python,
		"runtime.network":        d.Runtime.Network,
		"runtime.protocol":       d.Runtime.Protocol,
		"runtime.image_uri":      d.Runtime.ImageURI,
		"package.source_dir":     d.Package.SourceDir,
		"package.prompt_file":    d.Package.PromptFile,
		"package.requirements":   d.Package.Requirements,
		"package.install_deps":   d.Package.InstallDeps,
		"package.platform":       d.Package.Platform,
		"package.python_version": d.Package.PythonVersion,
		"package.installer":      d.Package.Installer,
		"wait.interval":          d.Wait.Interval,
		"wait.delete_interval":   d.Wait.DeleteInterval,
		"wait.timeout":           d.Wait.Timeout,
		"journal.enabled":        d.Journal.Enabled,
		"journal.dir":            d.Journal.Dir,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
		"log.no_color":           d.Log.NoColor,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks the settings every deployment needs. Missing role or
// bucket are reported as precondition failures.
func (c *Config) Validate() error {
	var problems []string
	if c.AWS.Region == "" {
		problems = append(problems, "aws.region is required")
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		problems = append(problems, "aws.access_key_id and aws.secret_access_key must be set together")
	}
	switch types.NetworkMode(c.Runtime.Network) {
	case types.NetworkModePublic, types.NetworkModeVPC:
	default:
		problems = append(problems, fmt.Sprintf("runtime.network %q is not PUBLIC or VPC", c.Runtime.Network))
	}
	switch types.ServerProtocol(c.Runtime.Protocol) {
	case types.ServerProtocolHTTP, types.ServerProtocolMCP, types.ServerProtocolA2A:
	default:
		problems = append(problems, fmt.Sprintf("runtime.protocol %q is not HTTP, MCP or A2A", c.Runtime.Protocol))
	}
	if _, err := c.RuntimeEnv(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Wait.Interval <= 0 || c.Wait.Timeout <= 0 {
		problems = append(problems, "wait.interval and wait.timeout must be positive")
	}
	if len(problems) > 0 {
		return types.NewValidationError("invalid configuration: %s", strings.Join(problems, "; "))
	}

	if c.Runtime.RoleARN == "" {
		return &types.PreconditionError{What: "execution role", Detail: "set runtime.role_arn or " + EnvPrefix + "_ROLE_ARN"}
	}
	if c.Runtime.Bucket == "" && c.Runtime.ImageURI == "" {
		return &types.PreconditionError{What: "bucket", Detail: "set runtime.bucket or " + EnvPrefix + "_BUCKET"}
	}
	return nil
}

// EntryPoint returns the runtime entry point as the service expects it.
func (c *Config) EntryPoint() []string {
	if c.Runtime.EntryPoint == "" {
		return nil
	}
	return strings.Fields(c.Runtime.EntryPoint)
}

// RuntimeEnv parses runtime.env into a map.
func (c *Config) RuntimeEnv() (map[string]string, error) {
	if len(c.Runtime.Env) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(c.Runtime.Env))
	for _, kv := range c.Runtime.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("runtime.env entry %q is not KEY=VALUE", kv)
		}
		env[k] = v
	}
	return env, nil
}
