// Package cmd implements the pagewire command line.
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pagewire/pagewire/internal/config"
	"github.com/pagewire/pagewire/internal/metrics"
	"github.com/pagewire/pagewire/internal/observability"
	"github.com/pagewire/pagewire/internal/output"
)

// Version info set by main package
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// configKeyAnnotation names the config key a flag overrides. A flag only
// wins when it was set on the command line.
const configKeyAnnotation = "pagewire_config_key"

func bindConfigKey(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, configKeyAnnotation, []string{key})
}

// app carries the state of one invocation.
type app struct {
	cfgFile      string
	verbose      bool
	outputFormat string
	outPath      string
	showMetrics  bool

	v        *viper.Viper
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *metrics.Client
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Rate-limit aware client for the Pagewire document API",
		Long: `pagewire talks to the Pagewire document API, retrying throttled and
failed requests with adaptive backoff and walking cursor-paginated lists.

Use "pagewire serve" to run a local mock of the API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !a.showMetrics || a.registry == nil {
				return nil
			}
			return a.printMetrics(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", fmt.Sprintf("config file (default is %s/config.yaml)", config.DefaultConfigDir()))
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	flags.StringVarP(&a.outputFormat, "output-format", "o", string(output.FormatTable), "output format: table|json|yaml|markdown")
	flags.StringVar(&a.outPath, "out", "", "write output to a file (default stdout)")
	flags.BoolVar(&a.showMetrics, "show-metrics", false, "print client metrics to stderr after the command")
	flags.String("api-url", "", "API base URL")
	flags.String("token", "", "API bearer token")
	flags.String("strategy", "", "retry strategy: conservative|balanced|aggressive")
	flags.Int("max-retries", 0, "maximum retries per request")
	flags.Bool("shared-tracking", false, "share rate limit state between calls and processes")
	flags.String("tracker-backend", "", "shared tracker backend: memory|libsql|redis")
	flags.Int("page-size", 0, "results requested per page (max 100)")
	flags.Int("max-pages", 0, "stop a list walk after this many pages (0 = unlimited)")
	bindConfigKey(flags, "api-url", "api.base_url")
	bindConfigKey(flags, "token", "api.token")
	bindConfigKey(flags, "strategy", "rate_limit.strategy")
	bindConfigKey(flags, "max-retries", "rate_limit.max_retries")
	bindConfigKey(flags, "shared-tracking", "rate_limit.shared_tracking")
	bindConfigKey(flags, "tracker-backend", "rate_limit.tracker_backend")
	bindConfigKey(flags, "page-size", "pagination.page_size")
	bindConfigKey(flags, "max-pages", "pagination.max_pages")

	root.AddCommand(
		newVersionCmd(),
		newSearchCmd(a),
		newPagesCmd(a),
		newBlocksCmd(a),
		newDatabasesCmd(a),
		newUsersCmd(a),
		newCommentsCmd(a),
		newRateLimitCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute runs the command line. main maps the returned error to an exit
// code with ExitCodeFor.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) initConfig(cmd *cobra.Command) error {
	observability.InitCLILogger(config.AppName, a.verbose)
	logger := observability.CLILogger

	config.SetDefaults(a.v)
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if dir := config.DefaultConfigDir(); dir != "" {
			a.v.AddConfigPath(dir)
		}
		a.v.AddConfigPath("./config")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err == nil {
		logger.Debug("Using config file", zap.String("path", a.v.ConfigFileUsed()))
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok && a.cfgFile == "" {
		logger.Debug("No config file found, using defaults and environment variables")
	} else {
		return &ConfigError{Err: fmt.Errorf("read config: %w", err)}
	}

	a.applyFlags(cmd)

	cfg, err := config.Load(a.v)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	a.cfg = cfg

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewClient(a.registry)
	return nil
}

// applyFlags copies explicitly set flags over every other config source.
func (a *app) applyFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		keys := flag.Annotations[configKeyAnnotation]
		if !flag.Changed || len(keys) == 0 {
			return
		}
		a.v.Set(keys[0], flag.Value.String())
	})
	if a.verbose {
		a.v.Set("logging.level", "debug")
	}
}

func (a *app) format() (output.Format, error) {
	return output.ParseFormat(strings.TrimSpace(a.outputFormat))
}

// write renders doc in the selected format to --out or the command output.
func (a *app) write(cmd *cobra.Command, doc output.Document) error {
	format, err := a.format()
	if err != nil {
		return err
	}
	sink, err := openSink(a.outPath, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()
	return output.Write(sink.writer, format, doc)
}

func (a *app) printMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	return output.Write(w, output.FormatTable, output.Metrics(families, "pagewire_client_"))
}
