package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/KeyIP-FamilyExplorer/internal/config"
	"github.com/turtacn/KeyIP-FamilyExplorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/client"
	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const (
	defaultServerAddr = "http://localhost:8080"
	envServerAddr     = "KEYIP_API_URL"
	envAPIKey         = "KEYIP_API_KEY"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	NoColor      bool
	Timeout      time.Duration
	ServerAddr   string
	APIKey       string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Client       *client.Client
	Logger       logging.Logger
	OutputFormat string
	Timeout      time.Duration

	configPath string
	backends   Backends
	cfg        *config.Config
}

// Config loads the service configuration on first use. Only the commands
// that talk to the backing stores directly need it.
func (c *CLIContext) Config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.LoadOrEnv(c.configPath)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// NewRootCommand creates the root cobra command with all global flags and
// subcommands. backends supplies the store-facing commands.
func NewRootCommand(backends Backends) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "explorer",
		Short: "Patent family explorer CLI",
		Long: "explorer drives citation-graph family explorations against the explorer API:\n" +
			"create an exploration from seed patents, expand it generation by generation,\n" +
			"rescore with other weights, override candidate status and archive the result.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, backends)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "service config file, used by ingest, migrate and events")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "table", "output format (table, json, yaml)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&opts.NoColor, "no-color", false, "disable colored output")
	pf.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "per-command timeout")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address (default $"+envServerAddr+" or "+defaultServerAddr+")")
	pf.StringVar(&opts.APIKey, "api-key", "", "API key (default $"+envAPIKey+")")

	cmd.AddCommand(
		newCreateCmd(),
		newExpandCmd(),
		newSiblingsCmd(),
		newRescoreCmd(),
		newStatusCmd(),
		newShowCmd(),
		newListCmd(),
		newPresetsCmd(),
		newRebuildCmd(),
		newArchiveCmd(),
		newIngestCmd(),
		newMigrateCmd(),
		newEventsCmd(),
	)

	return cmd
}

// persistentPreRun initializes the logger and the API client, then stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions, backends Backends) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "table", "json", "yaml":
	default:
		return errors.Newf(errors.ErrCodeValidation, "invalid output format %q (table, json, yaml)", opts.OutputFormat)
	}
	if opts.NoColor {
		color.NoColor = true
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	apiClient, err := initClient(opts, logger)
	if err != nil {
		return fmt.Errorf("client initialization failed: %w", err)
	}

	cliCtx := &CLIContext{
		Client:       apiClient,
		Logger:       logger,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Timeout:      opts.Timeout,
		configPath:   opts.ConfigPath,
		backends:     backends,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cliCtx))
	return nil
}

// initLogger creates a console logger writing to stderr so that stdout stays
// parseable.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// initClient resolves the server address and key from flags, then the
// environment, then the default.
func initClient(opts *RootOptions, logger logging.Logger) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" {
		addr = os.Getenv(envServerAddr)
	}
	if addr == "" {
		addr = defaultServerAddr
	}
	key := opts.APIKey
	if key == "" {
		key = os.Getenv(envAPIKey)
	}
	return client.NewClient(addr, key,
		client.WithTimeout(opts.Timeout),
		client.WithLogger(clientLogger{l: logger.Named("client")}),
		client.WithUserAgent("explorer-cli/"+Version),
	)
}

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.New(errors.ErrCodeInternal, "CLIContext not found in command context")
	}
	return cliCtx, nil
}

// commandContext returns the command context bounded by the global timeout.
func commandContext(cmd *cobra.Command, cc *CLIContext) (context.Context, context.CancelFunc) {
	if cc.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), cc.Timeout)
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand(DefaultBackends())
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintError writes a formatted error message to stderr. API errors keep
// their code and request id.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", red("Error:"), apiErr.Code, apiErr.Message)
		if apiErr.RequestID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "  request id: %s\n", apiErr.RequestID)
		}
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", red("Error:"), err.Error())
}

// clientLogger adapts logging.Logger to the printf-style client logger.
type clientLogger struct{ l logging.Logger }

func (c clientLogger) Debugf(format string, args ...interface{}) {
	c.l.Debug(fmt.Sprintf(format, args...))
}
func (c clientLogger) Infof(format string, args ...interface{}) {
	c.l.Info(fmt.Sprintf(format, args...))
}
func (c clientLogger) Errorf(format string, args ...interface{}) {
	c.l.Error(fmt.Sprintf(format, args...))
}

//Personal.AI order the ending
