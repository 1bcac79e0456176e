// Package commands provides the command line application for the integration.
package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mainfreight/integration-jira-cloud/internal/cli"
	"github.com/Mainfreight/integration-jira-cloud/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd   *cobra.Command
	viper *viper.Viper

	config appConfig
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	DownloadPath    string
	ApplicationName string
	SetupOnly       bool
	Troubleshoot    bool
	IngestOnly      bool
	StateDir        string

	scanName   string
	configFile string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " [flags] SCANNAME [CONFIGFILE]",
		Short: "Transform Tenable scan exports into Jira Cloud issues",
		Long: `Downloads a CSV export of a Tenable vulnerability scan and creates or
updates Jira Cloud issues from it: one task per vulnerability and one subtask
per affected host and service.

SCANNAME is the name of the scan as it appears in Tenable. CONFIGFILE is the
integration configuration file, defaulting to ` + constants.DefaultConfigFile + `.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a.config.scanName = args[0]
			a.config.configFile = constants.DefaultConfigFile
			if len(args) > 1 {
				a.config.configFile = args[1]
			}

			return a.run()
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")

	cmd.Flags().StringVar(&app.config.DownloadPath, "download-path", constants.DefaultDownloadPath, "directory to download scan exports into")
	cmd.Flags().StringVar(&app.config.ApplicationName, "application-name", "", "tag created issues with an application label")
	cmd.Flags().BoolVar(&app.config.SetupOnly, "setup-only", false, "performs setup tasks and generates a config file")
	cmd.Flags().BoolVar(&app.config.Troubleshoot, "troubleshoot", false, "outputs some basic troubleshooting data to file as an issue")
	cmd.Flags().BoolVar(&app.config.IngestOnly, "ingest-only", false, "assume scan is already downloaded")
	cmd.Flags().StringVar(&app.config.StateDir, "state-dir", constants.DefaultStatePath, "directory to store per-scan run state")

	if err := cmd.MarkFlagDirname("download-path"); err != nil {
		panic(fmt.Sprintf("failed to mark download-path flag as directory: %v", err))
	}
	if err := cmd.MarkFlagDirname("state-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark state-dir flag as directory: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a *App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

func (a *App) installVersion() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the version of the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("%s\t%s\n", constants.CmdName, constants.Version)
			return nil
		},
	}
	a.cmd.AddCommand(versionCmd)
}

// applyConfigLogLevel maps the config file log level onto the verbosity flag
// when no -v flag was passed.
func (a *App) applyConfigLogLevel(level string) {
	if a.config.Verbosity != 0 || level == "" {
		return
	}

	switch strings.ToLower(level) {
	case "debug":
		a.config.Verbosity = 2
	case "info":
		a.config.Verbosity = 1
	default:
		return
	}
	cli.SetSlog(a.config.Verbosity, a.config.JSONLogs)
	slog.Debug("Log level set from configuration file", "level", level)
}
