package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/pkg/cli/utils"
	"github.com/rzbill/agentdeploy/pkg/cli/watcher"
	"github.com/rzbill/agentdeploy/pkg/deploy"
	"github.com/rzbill/agentdeploy/pkg/journal"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/packager"
	"github.com/rzbill/agentdeploy/pkg/preflight"
	"github.com/rzbill/agentdeploy/pkg/types"
)

type deployOptions struct {
	prod         bool
	create       bool
	update       bool
	sourceDir    string
	promptFile   string
	zipFile      string
	imageURI     string
	installDeps  bool
	dryRun       bool
	githubOutput bool
	env          []string
	description  string
}

func newDeployCmd(c *cli) *cobra.Command {
	opts := &deployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy <runtime-name> [endpoint-name]",
		Short: "Package, publish and roll out an agent",
		Long: `Deploy packages the agent, uploads the bundle, creates or updates the
runtime and waits for it to become READY. When an endpoint name is given the
endpoint is then pointed at the new version and awaited too.

Without --create or --update the runtime is updated when it exists and
created otherwise.`,
		Example: `  # Preview deployment of a new version
  agentdeploy deploy support-agent preview_pr42

  # Production rollout
  agentdeploy deploy support-agent prod --prod --update

  # Deploy a prebuilt bundle
  agentdeploy deploy support-agent --zip build/agent.zip`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpointName := ""
			if len(args) == 2 {
				endpointName = args[1]
			}
			return c.runDeploy(cmd, args[0], endpointName, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.prod, "prod", false, "label the endpoint as a production deployment")
	flags.BoolVar(&opts.create, "create", false, "fail unless the runtime is new")
	flags.BoolVar(&opts.update, "update", false, "fail unless the runtime already exists")
	flags.StringVar(&opts.sourceDir, "source", "", "agent source directory (default from config)")
	flags.StringVar(&opts.promptFile, "prompt", "", "system prompt file to include in the bundle")
	flags.StringVar(&opts.zipFile, "zip", "", "deploy a prebuilt bundle instead of packaging")
	flags.StringVar(&opts.imageURI, "image", "", "deploy a container image instead of a code bundle")
	flags.BoolVar(&opts.installDeps, "install-deps", false, "install requirements into the bundle")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "run against an in-memory copy of the current state")
	flags.BoolVar(&opts.githubOutput, "github-output", false, "append outputs to $GITHUB_OUTPUT")
	flags.StringArrayVar(&opts.env, "env", nil, "runtime environment variable KEY=VALUE (repeatable)")
	flags.StringVar(&opts.description, "description", "", "runtime version description")
	cmd.MarkFlagsMutuallyExclusive("create", "update")
	cmd.MarkFlagsMutuallyExclusive("zip", "image")

	return cmd
}

func (o *deployOptions) mode() deploy.Mode {
	switch {
	case o.create:
		return deploy.ModeCreate
	case o.update:
		return deploy.ModeUpdate
	default:
		return deploy.ModeAuto
	}
}

func (o *deployOptions) environment() types.Environment {
	if o.prod {
		return types.EnvironmentProduction
	}
	return types.EnvironmentPreview
}

func (c *cli) runDeploy(cmd *cobra.Command, runtimeName, endpointName string, opts *deployOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if opts.imageURI != "" {
		c.cfg.Runtime.ImageURI = opts.imageURI
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	settings, err := c.deploySettings(opts.env)
	if err != nil {
		return err
	}

	b, err := c.backend(ctx, opts.dryRun)
	if err != nil {
		return err
	}
	if err := b.seed(ctx, types.ByName(runtimeName)); err != nil {
		return err
	}

	target := preflight.Target{
		RoleARN:  c.cfg.Runtime.RoleARN,
		Bucket:   c.cfg.Runtime.Bucket,
		ImageURI: c.cfg.Runtime.ImageURI,
	}
	deployOpts := []deploy.Option{
		deploy.WithLogger(c.logger),
		deploy.WithPreflight(func(ctx context.Context) error {
			return b.checker.Required(ctx, target)
		}),
	}
	if !c.structured() {
		deployOpts = append(deployOpts, deploy.WithObserver(watcher.NewProgress(out, endpointName != "")))
	}
	if c.cfg.Journal.Enabled && !b.dryRun {
		store, err := journal.Open(c.cfg.Journal.Dir, c.logger)
		if err != nil {
			c.logger.Warn("deployment journal unavailable", log.Err(err))
		} else {
			defer store.Close()
			deployOpts = append(deployOpts, deploy.WithObserver(journal.NewRecorder(store, c.logger)))
		}
	}

	if b.dryRun && !c.structured() {
		fmt.Fprintln(out, "Dry run: using an in-memory copy of the control plane, nothing is changed")
	}

	d := deploy.New(c.newPackager(), b.store, b.runtimes, b.endpoints, settings, deployOpts...)
	res, deployErr := d.Deploy(ctx, deploy.Request{
		RuntimeName:  runtimeName,
		EndpointName: endpointName,
		Mode:         opts.mode(),
		Environment:  opts.environment(),
		Description:  opts.description,
		Bundle:       c.bundleSource(opts),
	})
	if res == nil {
		return deployErr
	}

	if c.structured() {
		if err := c.writeStructured(out, res); err != nil {
			return err
		}
	}
	if deployErr != nil {
		return deployErr
	}

	if path := os.Getenv(GitHubOutputEnv); path != "" && (opts.githubOutput || !b.dryRun) {
		if err := appendGitHubOutput(path, res); err != nil {
			return err
		}
	} else if opts.githubOutput {
		return errors.New("--github-output requires " + GitHubOutputEnv + " to be set")
	}
	return nil
}

// deploySettings assembles the account-level deployment parameters from
// the config and any --env flags.
func (c *cli) deploySettings(extraEnv []string) (deploy.Settings, error) {
	env, err := c.cfg.RuntimeEnv()
	if err != nil {
		return deploy.Settings{}, types.WrapValidationError(err, "invalid runtime.env")
	}
	flagEnv, err := utils.ParseKeyValues(extraEnv)
	if err != nil {
		return deploy.Settings{}, err
	}
	return deploy.Settings{
		Bucket:       c.cfg.Runtime.Bucket,
		RoleARN:      c.cfg.Runtime.RoleARN,
		Network:      types.NetworkMode(c.cfg.Runtime.Network),
		Protocol:     types.ServerProtocol(c.cfg.Runtime.Protocol),
		Runtime:      types.PythonRuntime(c.cfg.Runtime.Python),
		EntryPoint:   c.cfg.EntryPoint(),
		Env:          utils.MergeKeyValues(env, flagEnv),
		RuntimeWait:  c.waitOptions(),
		EndpointWait: c.waitOptions(),
	}, nil
}

func (c *cli) bundleSource(opts *deployOptions) deploy.BundleSource {
	if c.cfg.Runtime.ImageURI != "" {
		return deploy.BundleSource{ImageURI: c.cfg.Runtime.ImageURI}
	}
	if opts.zipFile != "" {
		return deploy.BundleSource{Path: opts.zipFile}
	}
	return deploy.BundleSource{Build: c.packageOptions(opts.sourceDir, opts.promptFile, opts.installDeps, "")}
}

// packageOptions fills packager options from flags, falling back to the
// config.
func (c *cli) packageOptions(sourceDir, promptFile string, installDeps bool, output string) packager.Options {
	pkg := c.cfg.Package
	if sourceDir == "" {
		sourceDir = pkg.SourceDir
	}
	if promptFile == "" {
		promptFile = pkg.PromptFile
	}
	requirements := ""
	if pkg.Requirements != "" {
		requirements = pkg.Requirements
		if !filepath.IsAbs(requirements) {
			requirements = filepath.Join(sourceDir, requirements)
		}
	}
	return packager.Options{
		SourceDir:    sourceDir,
		EntryPoint:   entryFile(c.cfg.EntryPoint()),
		PromptFile:   promptFile,
		InstallDeps:  installDeps || pkg.InstallDeps,
		Requirements: requirements,
		OutputPath:   output,
	}
}

func (c *cli) newPackager() *packager.Packager {
	installer := &packager.UVInstaller{
		Binary:        c.cfg.Package.Installer,
		Platform:      c.cfg.Package.Platform,
		PythonVersion: c.cfg.Package.PythonVersion,
		Logger:        c.logger,
	}
	return packager.New(installer, c.logger)
}

// entryFile is the script named by the entry point.
func entryFile(entryPoint []string) string {
	if len(entryPoint) == 0 {
		return ""
	}
	return entryPoint[len(entryPoint)-1]
}
