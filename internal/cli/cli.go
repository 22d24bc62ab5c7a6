// Package cli implements the jobwatch command line: launching jobs, attaching
// to running ones and rendering their progress until they finish.
package cli

import (
	"jobtracker/internal/config"
	"jobtracker/internal/observability"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// App represents the CLI application with all wired dependencies
type App struct {
	// Root command
	rootCmd *cobra.Command

	// Global flags
	configPath  string
	backend     string
	baseURL     string
	interval    time.Duration
	strictIcons bool
	lenient     bool
	metricsPort string
	verbose     bool

	// logLevel is set from the loaded configuration when not nil
	logLevel *slog.LevelVar

	// Component factories, replaced in tests
	newBackend backendFactory
	newMetrics func() (*observability.Metrics, http.Handler, error)

	versionInfo versionInfo
}

type versionInfo struct {
	Version string
	Commit  string
	Date    string
}

// New creates a new CLI application
func New() *App {
	app := &App{
		newBackend: defaultBackend,
		newMetrics: defaultMetrics,
	}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = versionInfo{Version: version, Commit: commit, Date: date}
}

// SetLogLevel lets the loaded configuration adjust the level of the
// process-wide logger.
func (a *App) SetLogLevel(level *slog.LevelVar) {
	a.logLevel = level
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "jobwatch",
		Short: "Launch asynchronous jobs and follow them to completion",
		Long: `jobwatch starts jobs on a job service (or as local containers), polls
their status and renders per-phase progress until the job finishes.

The exit status is 0 when the job completed and non-zero otherwise.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := a.rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", os.Getenv("JOBTRACKER_CONFIG"),
		"Path to a YAML config file (env JOBTRACKER_CONFIG)")
	flags.StringVar(&a.backend, "backend", "",
		"Status backend: http or docker")
	flags.StringVar(&a.baseURL, "base-url", "",
		"Base URL of the job service")
	flags.DurationVar(&a.interval, "interval", config.DefaultPollInterval,
		"Polling interval")
	flags.BoolVar(&a.strictIcons, "strict-icons", false,
		"Show an unknown icon for unrecognized phase statuses")
	flags.BoolVar(&a.lenient, "lenient-status", false,
		"Match status codes case-insensitively and accept synonyms like SUCCEEDED")
	flags.StringVar(&a.metricsPort, "metrics-port", "",
		"Serve metrics, probes and the session on this port")
	flags.BoolVarP(&a.verbose, "verbose", "v", false,
		"Verbose output")

	a.rootCmd.AddCommand(
		NewLaunchCmd(a),
		NewAttachCmd(a),
		NewStatusCmd(a),
		NewPingCmd(a),
		NewVersionCmd(a),
	)
}

// loadConfig loads the configuration file and environment, then applies the
// flags the user set explicitly.
func (a *App) loadConfig(cmd *cobra.Command) (*config.TrackerConfig, error) {
	flags := cmd.Flags()

	var overrides []config.Override
	if flags.Changed("backend") {
		backend := config.Backend(strings.ToLower(a.backend))
		overrides = append(overrides, func(c *config.TrackerConfig) { c.Backend = backend })
	}
	if flags.Changed("base-url") {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.BaseURL = a.baseURL })
	}
	if flags.Changed("interval") {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.PollInterval = a.interval })
	}
	if flags.Changed("strict-icons") {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.StrictIcons = a.strictIcons })
	}
	if flags.Changed("lenient-status") {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.LenientStatus = a.lenient })
	}
	if flags.Changed("metrics-port") {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.MetricsPort = a.metricsPort })
	}
	if a.verbose {
		overrides = append(overrides, func(c *config.TrackerConfig) { c.LogLevel = "debug" })
	}

	cfg, err := config.Load(a.configPath, overrides...)
	if err != nil {
		return nil, err
	}
	if a.logLevel != nil {
		a.logLevel.Set(cfg.SlogLevel())
	}
	return cfg, nil
}
