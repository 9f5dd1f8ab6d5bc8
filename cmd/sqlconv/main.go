// Command sqlconv turns tabular files and database tables into PostgreSQL
// scripts and splits large scripts into statement-safe chunks.
//
// Subcommands:
//
//	convert  PATH...   CSV/TSV, XLSX, DBF and HTML tables (files or folders),
//	                   or --db-kind/--dsn for an existing database
//	probe    PATH...   print the inferred schema without rendering inserts
//	split    FILE...   cut scripts into <stem>_parte_NNN.sql chunks
//	dequote  SRC DST   strip quote characters from a delimited file
//	serve              HTTP API (detect, convert, split)
//	config             print the effective configuration
//
// Settings come from --config (or ./sqlconv.yaml when present), then
// SQLCONV_* environment variables, then flags. The exit code is 1 when any
// file or table failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlconv/internal/config"
	"sqlconv/internal/logging"
	"sqlconv/internal/metrics"

	// register every row-source adapter with the source registry.
	_ "sqlconv/internal/source/csv"
	_ "sqlconv/internal/source/dbf"
	_ "sqlconv/internal/source/htmltable"
	_ "sqlconv/internal/source/sqldb"
	_ "sqlconv/internal/source/xlsx"
)

// defaultConfigFile is loaded implicitly when --config is not given.
const defaultConfigFile = "sqlconv.yaml"

// errFailures marks a run that finished but had failed files or tables.
var errFailures = errors.New("one or more inputs failed")

// app carries state shared by all subcommands.
type app struct {
	cfgPath        string
	logLevel       string
	logFormat      string
	metricsBackend string

	cfg    *config.Config
	log    *zap.Logger
	stdout io.Writer
	stderr io.Writer

	closeMetrics func()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	a.shutdown()
	if err == nil {
		return 0
	}
	if !errors.Is(err, errFailures) {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sqlconv",
		Short:         "Convert tabular data into PostgreSQL scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML config file (default ./"+defaultConfigFile+" when present)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: json|console (overrides config)")
	pf.StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: none|datadog (overrides config)")

	root.AddCommand(
		a.convertCmd(),
		a.probeCmd(),
		a.splitCmd(),
		a.dequoteCmd(),
		a.serveCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads configuration, builds the logger and installs the metrics
// backend. It runs before every subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.cfgPath
	if path == "" && config.Exists(defaultConfigFile) {
		path = defaultConfigFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if a.metricsBackend != "" {
		cfg.Metrics.Backend = a.metricsBackend
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintln(a.stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("configuration is invalid")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.With(zap.String("cmd", cmd.Name()))
	a.closeMetrics = a.setupMetrics(cmd.Context())
	return nil
}

func (a *app) shutdown() {
	if a.closeMetrics != nil {
		a.closeMetrics()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	metrics.SetBackend(nil)
}
