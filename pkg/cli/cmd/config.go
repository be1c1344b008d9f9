package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rzbill/agentdeploy/internal/config"
)

// DefaultConfigFile is the file config init writes.
const DefaultConfigFile = "agentdeploy.yaml"

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create agentdeploy configuration",
		Long: `Inspect and create agentdeploy configuration.

Settings are read from ./agentdeploy.yaml or $HOME/.agentdeploy/config.yaml,
then overridden by AGENTDEPLOY_* environment variables (a .env file in the
working directory is loaded first) and finally by command-line flags.`,
	}

	cmd.AddCommand(newConfigViewCmd(c))
	cmd.AddCommand(newConfigPathCmd(c))
	cmd.AddCommand(newConfigInitCmd(c))
	cmd.AddCommand(newConfigValidateCmd(c))

	return cmd
}

func newConfigViewCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			masked := maskSecrets(*c.cfg)
			if c.opts.output == "json" {
				return outputJSON(cmd.OutOrStdout(), masked)
			}
			return outputYAML(cmd.OutOrStdout(), masked)
		},
	}
}

func newConfigPathCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.File == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No config file found; using defaults and environment")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.cfg.File)
			return nil
		},
	}
}

func newConfigInitCmd(c *cli) *cobra.Command {
	var (
		path    string
		force   bool
		roleARN string
		bucket  string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, pass --force to overwrite", path)
				}
			}
			cfg := config.Default()
			cfg.AWS.Region = c.cfg.AWS.Region
			cfg.Runtime.RoleARN = roleARN
			cfg.Runtime.Bucket = bucket
			if err := saveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", DefaultConfigFile, "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&roleARN, "role-arn", "", "runtime execution role ARN")
	cmd.Flags().StringVar(&bucket, "bucket", "", "artifact bucket")
	return cmd
}

func newConfigValidateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration has what a deployment needs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
}

// maskSecrets hides credentials before the config is printed.
func maskSecrets(cfg config.Config) config.Config {
	cfg.AWS.AccessKeyID = maskToken(cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = maskToken(cfg.AWS.SecretAccessKey)
	cfg.AWS.SessionToken = maskToken(cfg.AWS.SessionToken)
	return cfg
}

// maskToken masks a secret, keeping the first four characters.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + strings.Repeat("*", len(token)-4)
}

// saveConfig writes cfg as YAML to path.
func saveConfig(path string, cfg *config.Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
