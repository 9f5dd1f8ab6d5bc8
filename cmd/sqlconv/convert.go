package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlconv/internal/batch"
	"sqlconv/internal/inference"
	"sqlconv/internal/source"
	"sqlconv/internal/source/sqldb"
	"sqlconv/internal/sqlgen"
)

// sourceFlags select inputs; shared by convert and probe.
type sourceFlags struct {
	kind      string
	delimiter string
	encoding  string
	noHeader  bool

	dbKind   string
	dsn      string
	dbSchema string
	tables   string

	workers    int
	sampleRows int
	allText    bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.kind, "kind", "", "force the adapter for file arguments: "+strings.Join(source.Kinds(), "|"))
	fl.StringVar(&f.delimiter, "delimiter", "", `delimiter for text files (";", ",", "tab", "|"); detected when empty`)
	fl.StringVar(&f.encoding, "encoding", "", "encoding for text files (utf-8, latin1, windows-1252, cp850); detected when empty")
	fl.BoolVar(&f.noHeader, "no-header", false, "text files have no header row; columns become col_1..col_n")

	fl.StringVar(&f.dbKind, "db-kind", "", "read tables from a database: postgres|mssql|mysql|sqlite")
	fl.StringVar(&f.dsn, "dsn", "", "database DSN (overrides env DSN and DSN_* components)")
	fl.StringVar(&f.dbSchema, "db-schema", "", "database schema to read (default per engine)")
	fl.StringVar(&f.tables, "tables", "", "comma-separated database tables (default: all base tables)")

	fl.IntVar(&f.workers, "workers", 0, "concurrent inference workers (overrides config)")
	fl.IntVar(&f.sampleRows, "sample-rows", -1, "rows read for inference, 0 = all (overrides config)")
	fl.BoolVar(&f.allText, "all-text", false, "make every column nullable TEXT")
}

// sources turns arguments and flags into source configs in a stable order.
func (a *app) sources(f *sourceFlags, args []string) ([]source.Config, string, error) {
	opts := a.cfg.SourceOptions()
	if f.delimiter != "" {
		opts["delimiter"] = f.delimiter
	}
	if f.encoding != "" {
		opts["encoding"] = f.encoding
	}
	if f.noHeader {
		opts["has_header"] = false
	}

	var out []source.Config
	for _, arg := range args {
		cfgs, err := source.Discover(arg, opts)
		if err != nil {
			if f.kind == "" {
				return nil, "", err
			}
			// A forced kind accepts files with any extension.
			cfgs = []source.Config{{Path: arg, Options: opts}}
		}
		if f.kind != "" {
			for i := range cfgs {
				cfgs[i].Kind = f.kind
			}
		}
		out = append(out, cfgs...)
	}
	origin := strings.Join(args, ", ")

	if f.dbKind != "" {
		kind := sqldb.Kind(f.dbKind)
		dsn, ok, err := sqldb.ResolveDSN(kind, f.dsn)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			return nil, "", fmt.Errorf("--db-kind %s needs --dsn, DSN or DSN_* variables", kind)
		}
		var tables []string
		for _, t := range strings.Split(f.tables, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
		out = append(out, source.Config{Kind: kind, DSN: dsn, Schema: f.dbSchema, Tables: tables})
		if origin != "" {
			origin += ", "
		}
		origin += kind + " database"
	}

	if len(out) == 0 {
		return nil, "", fmt.Errorf("no convertible input: give files/folders or --db-kind")
	}
	return out, origin, nil
}

// runner builds a batch runner from config plus flag overrides.
func (a *app) runner(f *sourceFlags, sqlCfg sqlgen.Config) *batch.Runner {
	icfg := a.cfg.Inference
	if f.allText {
		icfg.AllText = true
	}
	engine := inference.New(icfg)
	r := batch.NewRunner(engine, sqlgen.New(sqlCfg, engine), a.log)

	r.Workers = a.cfg.Batch.Workers
	if f.workers > 0 {
		r.Workers = f.workers
	}
	r.SampleRows = a.cfg.Batch.SampleRows
	if f.sampleRows >= 0 {
		r.SampleRows = f.sampleRows
	}
	return r
}

func (a *app) convertCmd() *cobra.Command {
	var (
		sf             sourceFlags
		out            string
		outDir         string
		schemaName     string
		batchSize      int
		columnComments bool
		summaryPath    string
		stamp          bool
	)

	cmd := &cobra.Command{
		Use:   "convert [PATH...]",
		Short: "Generate CREATE TABLE and INSERT statements",
		Long: `Convert every table found in the given files or folders (and/or a database
given with --db-kind) into one PostgreSQL script. Files in a first-level
sub-folder get the sub-folder name as table prefix.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, origin, err := a.sources(&sf, args)
			if err != nil {
				return err
			}

			sqlCfg := a.cfg.SQL
			if cmd.Flags().Changed("schema") {
				sqlCfg.Schema = schemaName
			}
			if batchSize > 0 {
				sqlCfg.BatchSize = batchSize
			}
			if columnComments {
				sqlCfg.ColumnComments = true
			}

			job := batch.Job{
				Sources: srcs,
				OutDir:  outDir,
				Origin:  origin,
				Stamp:   stamp || a.cfg.Batch.Stamp,
			}
			closeOut := func() error { return nil }
			if outDir == "" {
				w, c, err := openOutput(out, a.stdout)
				if err != nil {
					return err
				}
				job.Output, closeOut = w, c
			}

			start := time.Now()
			sum, err := a.runner(&sf, sqlCfg).Run(cmd.Context(), job)
			if cerr := closeOut(); cerr != nil && err == nil {
				err = fmt.Errorf("close output: %w", cerr)
			}
			if sum != nil {
				a.report(sum, time.Since(start))
				if p := firstNonEmpty(summaryPath, a.cfg.Batch.Summary); p != "" {
					if werr := sum.WriteFile(p); werr != nil {
						a.log.Error("write summary", zap.String("path", p), zap.Error(werr))
					}
				}
			}
			if err != nil {
				return err
			}
			if sum.HasFailures() {
				return errFailures
			}
			return nil
		},
	}

	sf.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&out, "out", "o", "-", `output script ("-" = stdout)`)
	fl.StringVar(&outDir, "out-dir", "", "write one <table>.sql per table into this folder instead")
	fl.StringVar(&schemaName, "schema", "", "qualify tables with this schema (overrides config)")
	fl.IntVar(&batchSize, "batch-size", 0, "rows per INSERT statement (overrides config)")
	fl.BoolVar(&columnComments, "column-comments", false, "emit COMMENT ON COLUMN with the original names")
	fl.StringVar(&summaryPath, "summary", "", "write the run summary YAML to this path")
	fl.BoolVar(&stamp, "stamp", false, `add a "Generated at" header line`)
	return cmd
}

// report prints a short human summary to stderr.
func (a *app) report(sum *batch.Summary, d time.Duration) {
	for _, s := range sum.Sources {
		if s.Status == batch.StatusFailed {
			fmt.Fprintf(a.stderr, "FAILED  %s: %s\n", s.Path, s.Error)
		}
	}
	for _, t := range sum.Tables {
		if t.Status == batch.StatusFailed {
			fmt.Fprintf(a.stderr, "FAILED  %s (%s): %s\n", t.Origin, t.Stage, t.Error)
			continue
		}
		fmt.Fprintf(a.stderr, "ok      %s -> %s (%s rows)\n", t.Origin, t.Name, humanize.Comma(t.Rows))
	}
	fmt.Fprintf(a.stderr, "%d tables, %s rows, %s statements, %d failed in %s\n",
		len(sum.Tables), humanize.Comma(sum.Rows), humanize.Comma(sum.Statements), sum.Failed,
		d.Truncate(time.Millisecond))
}

// openOutput returns stdout for "" or "-", otherwise a created file.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
