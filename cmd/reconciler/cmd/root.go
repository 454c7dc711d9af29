package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configKeyAnnotation marks a flag as an override of a configuration key
const configKeyAnnotation = "reconciler_config_key"

// app holds the state shared by the commands of one invocation
type app struct {
	cfgFile string
	verbose bool

	config *config.Config
	logger logger.Logger
}

// NewRootCommand builds the complete command tree
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Bank statement reconciliation tool",
		Long: `Reconciler matches bank statement transactions against internal ledger
records, flags unusual unmatched transactions and summarizes spending by
category. Reports can be printed, exported or saved for later.

Examples:
  reconciler reconcile --bank bank_statement.csv --internal internal_records.csv
  reconciler reconcile -b bank.csv -i ledger.csv --format csv --output report.csv
  reconciler reconcile -b bank.csv -i ledger.csv --save "March close"
  reconciler serve --port 8080
  reconciler reports list
  reconciler config init`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("db", config.Default().Storage.Path, "saved report database path")
	rootCmd.PersistentFlags().String("log-level", string(logger.InfoLevel), "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", string(logger.TextFormat), "log format: text, json")
	bindFlag(rootCmd.PersistentFlags(), "db", "storage.path")
	bindFlag(rootCmd.PersistentFlags(), "log-level", "logging.level")
	bindFlag(rootCmd.PersistentFlags(), "log-format", "logging.format")

	rootCmd.AddCommand(
		newReconcileCommand(a),
		newServeCommand(a),
		newReportsCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the command tree. This is called by main.main().
func Execute() error {
	return NewRootCommand().Execute()
}

// bindFlag records that flag overrides the configuration key
func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// load reads the config file, environment and flags into a.config and
// installs the configured logger
func (a *app) load(cmd *cobra.Command, args []string) error {
	v := viper.New()

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.ConfigurationError("config", a.cfgFile, err).
				WithSuggestion("check the config file path and YAML syntax, or create one with 'reconciler config init'")
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) > 0 && bindErr == nil {
			bindErr = v.BindPFlag(keys[0], f)
		}
	})
	if bindErr != nil {
		return errors.ConfigurationError("flags", cmd.Name(), bindErr)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return errors.ConfigurationError("config", v.ConfigFileUsed(), err)
	}
	if a.verbose {
		cfg.Logging.Level = logger.DebugLevel
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return errors.ConfigurationError("logging", cfg.Logging.Output, err)
	}
	logger.SetGlobalLogger(log)

	a.config = cfg
	a.logger = log.WithComponent("cli")

	if a.verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using config file: %s\n", v.ConfigFileUsed())
	}

	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
