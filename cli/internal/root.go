package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/guarzo/studyplan/common"
	"github.com/guarzo/studyplan/modules/api"
	"github.com/guarzo/studyplan/modules/plans"
	"github.com/guarzo/studyplan/modules/session"
)

type contextKey string

const cliContextKey contextKey = "cliContext"

// skipSetup marks commands that run without a loaded config or store.
const skipSetup = "skipSetup"

// CliContext holds what every command needs, built once per invocation.
type CliContext struct {
	Config  *common.Config
	Store   common.Store
	Creds   *common.Credentials
	Client  api.Client
	Session session.Service
	Plans   plans.Service
	Logger  *slog.Logger

	httpClient common.HttpClient
}

// Global flags
var (
	configPath string
	logLevel   string
	logFile    string
	logFormat  string
	alsoStderr bool
)

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	var ctx CliContext

	rootCmd := &cobra.Command{
		Use:           "studyplan",
		Short:         "CLI for the study plan API",
		Long:          `A command line client for the study plan generator API, with automatic credential refresh.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			cfg, err := common.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyLogFlags(cmd, cfg)

			logger, err := common.SetupLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			slog.SetDefault(logger)
			ctx.Logger = logger.With("component", "cli")
			ctx.Logger.Debug("CLI started", "command", cmd.Name(), "api_url", cfg.APIURL)

			if err := ctx.init(cfg); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if ctx.httpClient != nil {
				ctx.httpClient.CloseIdleConnections()
			}
			if ctx.Client != nil && ctx.Logger != nil {
				s := ctx.Client.Stats()
				ctx.Logger.Debug("API usage",
					"calls", s.Calls,
					"failures", s.Failures,
					"refreshes", s.Refreshes,
					"retries", s.Retries,
				)
			}
			return nil
		},
	}

	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newWhoamiCommand())
	rootCmd.AddCommand(newRequestCommands()...)
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newEventsCommand())
	rootCmd.AddCommand(newConfigCommand())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.studyplan.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error); overrides the config file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"Log file path (if specified, logs to file instead of stderr)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&alsoStderr, "alsologtostderr", false,
		"Log to both file and stderr")

	return rootCmd
}

// applyLogFlags lets explicit flags win over the config file.
func applyLogFlags(cmd *cobra.Command, cfg *common.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("alsologtostderr") {
		cfg.Log.AlsoStderr = alsoStderr
	}
}

func (c *CliContext) init(cfg *common.Config) error {
	store, err := common.OpenFileStore(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	c.Config = cfg
	c.Store = store
	c.Creds = common.NewCredentials(store)
	c.httpClient = common.NewHttpClient(cfg.UserAgent, nil, time.Duration(cfg.Timeout))

	client, err := api.NewClientFromConfig(cfg, c.httpClient, c.Creds, c.Logger)
	if err != nil {
		return err
	}
	c.Client = client
	c.Session = session.NewService(c.Creds, c.Logger)
	c.Plans = plans.NewService(client, store, c.Logger)
	return nil
}

// getCliContext extracts the CLI context from the command context
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}
