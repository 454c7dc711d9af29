package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/pkg/errors"
)

const defaultConfigFile = "reconciler.yaml"

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect configuration files",
		Long: `Configuration is read from defaults, the file given by --config,
RECONCILER_* environment variables (e.g. RECONCILER_MATCHING_CONFIDENCE_THRESHOLD=80)
and command-line flags, later sources winning.`,
	}

	configCmd.AddCommand(newConfigInitCommand(), newConfigShowCommand(a))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file holding the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigFile
			if len(args) == 1 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return errors.ConfigurationError("config", path, fmt.Errorf("file already exists")).
					WithSuggestion("pass --force to overwrite it")
			}

			if err := config.Default().Save(path); err != nil {
				return errors.FileError("", path, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return initCmd
}

func newConfigShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(a.config)
			if err != nil {
				return errors.InternalComputation(errors.CodeComputationFailed, "config encoding", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
