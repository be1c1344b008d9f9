package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rzbill/agentdeploy/internal/config"
	"github.com/rzbill/agentdeploy/pkg/cli/format"
	"github.com/rzbill/agentdeploy/pkg/log"
	"github.com/rzbill/agentdeploy/pkg/types"
	"github.com/rzbill/agentdeploy/pkg/version"
)

// globalOptions are the persistent flags.
type globalOptions struct {
	configFile string
	region     string
	profile    string
	verbose    bool
	output     string
	noColor    bool
}

// cli carries what every command needs. cfg and logger are filled in by
// the root command before any subcommand runs.
type cli struct {
	opts       globalOptions
	cfg        *config.Config
	logger     log.Logger
	newBackend backendFactory
	stdin      io.Reader
}

// NewRootCmd builds the agentdeploy command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&cli{newBackend: newAWSBackend, stdin: os.Stdin})
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentdeploy",
		Short: "Deploy agents to managed agent runtimes",
		Long: `agentdeploy packages an agent, publishes the bundle, creates or updates
a versioned agent runtime and points a named endpoint at the new version,
waiting for each asynchronous step to converge.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.opts.configFile, "config", "", "config file (default is ./agentdeploy.yaml or $HOME/.agentdeploy/config.yaml)")
	flags.StringVar(&c.opts.region, "region", "", "AWS region (overrides the config)")
	flags.StringVar(&c.opts.profile, "profile", "", "AWS shared config profile")
	flags.BoolVarP(&c.opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVarP(&c.opts.output, "output", "o", "text", "output format: text, json or yaml")
	flags.BoolVar(&c.opts.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(
		newDeployCmd(c),
		newRuntimeCmd(c),
		newEndpointCmd(c),
		newCleanupCmd(c),
		newWaitCmd(c),
		newInvokeCmd(c),
		newPackageCmd(c),
		newCheckCmd(c),
		newHistoryCmd(c),
		newConfigCmd(c),
		newVersionCmd(c),
	)
	return cmd
}

// Execute runs the root command and exits 1 on any failure. Interrupts
// cancel the command's context so waits stop promptly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		format.PrintError(os.Stdout, err)
		os.Exit(1)
	}
}

func (c *cli) init(cmd *cobra.Command) error {
	if c.opts.noColor {
		format.EnableColor(false)
	}
	switch c.opts.output {
	case "text", "json", "yaml":
	default:
		return types.NewValidationError("unsupported output format %q", c.opts.output)
	}

	cfg, err := config.Load(c.opts.configFile)
	if err != nil {
		return err
	}
	if c.opts.region != "" {
		cfg.AWS.Region = c.opts.region
	}
	if c.opts.profile != "" {
		cfg.AWS.Profile = c.opts.profile
	}
	if c.opts.verbose {
		cfg.Log.Level = "debug"
	}
	if c.opts.noColor {
		cfg.Log.NoColor = true
	}
	c.cfg = cfg

	c.logger = log.FromConfig(cfg.Log, cmd.ErrOrStderr())
	log.SetDefaultLogger(c.logger)
	if cfg.File != "" {
		c.logger.Debug("using config file", log.Str("path", cfg.File))
	}
	return nil
}

func (c *cli) structured() bool {
	return c.opts.output == "json" || c.opts.output == "yaml"
}
