// Package cli implements the gosync command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dl-alexandre/gosync/internal/config"
	"github.com/dl-alexandre/gosync/internal/logging"
	"github.com/dl-alexandre/gosync/internal/types"
	"github.com/dl-alexandre/gosync/internal/utils"
	"github.com/dl-alexandre/gosync/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	debugTransport *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "gosync",
	Short: "Mirror Google Drive into a local directory",
	Long: `gosync keeps a local directory in sync with your Google Drive.

Run 'gosync auth login' once, then 'gosync run' to start the sync daemon.
Every command supports --json for scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}
		return initLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := newOutput()
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			return out.WriteSuccess("version", info)
		}
		fmt.Fprintln(out.w, info.String())
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&globalFlags.Account, "account", "", "Account email to operate on (defaults to the only configured account)")
	flags.StringVar(&globalFlags.ConfigDir, "config-dir", "", "Configuration directory (default $GOSYNC_CONFIG_DIR or ~/.gosync)")
	flags.StringVar((*string)(&globalFlags.OutputFormat), "output", "table", "Output format (json, table)")
	flags.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	flags.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	flags.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	flags.BoolVar(&globalFlags.Debug, "debug", false, "Log every HTTP request")
	flags.StringVar(&globalFlags.LogFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(versionCmd)
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid output format: %s", globalFlags.OutputFormat)).Err()
	}
	return nil
}

// initLogger builds the process logger. The level starts at the configured
// level of the account, when one is known, and --verbose or --debug raise it.
func initLogger() error {
	logConfig := logging.DefaultLogConfig()
	logConfig.OutputFile = globalFlags.LogFile
	logConfig.EnableConsole = !globalFlags.Quiet
	logConfig.EnableDebug = globalFlags.Debug
	logConfig.Level = configuredLevel()
	if globalFlags.Verbose {
		logConfig.Level = logging.DEBUG
	}
	if globalFlags.OutputFormat == types.OutputFormatJSON && !globalFlags.Verbose && !globalFlags.Debug {
		logConfig.EnableConsole = false
	}

	var err error
	logger, debugTransport, err = logging.NewDebugLoggerWithTransport(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func configuredLevel() logging.LogLevel {
	dir, err := configDir()
	if err != nil {
		return logging.INFO
	}
	store, err := config.Open(dir)
	if err != nil {
		return logging.INFO
	}
	account := globalFlags.Account
	if account == "" {
		accounts := store.Accounts()
		if len(accounts) != 1 {
			return logging.INFO
		}
		account = accounts[0]
	}
	return logging.ParseLevel(store.Get(account).LogLevel)
}

// Execute runs the command line with ctx and exits with the code of the
// error taxonomy on failure
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(reportError(newOutput(), commandName(), err))
	}
}

func commandName() string {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil || cmd == rootCmd {
		return "gosync"
	}
	return cmd.CommandPath()
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the process logger
func GetLogger() logging.Logger {
	return logger
}

// configDir resolves --config-dir, then GOSYNC_CONFIG_DIR, then ~/.gosync
func configDir() (string, error) {
	if globalFlags.ConfigDir != "" {
		return globalFlags.ConfigDir, nil
	}
	return config.GetConfigDir()
}
