// Package batch converts every table of one or more sources into SQL.
//
// A run has two streaming passes over each table, so no table is held in
// memory:
//
//   - Pass 1 (infer): tables are read concurrently, bounded by Workers,
//     folding values into per-column accumulators. Each table sanitizes its
//     own columns.
//   - Registration: table names are made run-unique sequentially, in source
//     order, so the same inputs always produce the same names.
//   - Pass 2 (render): tables are read again in source order and streamed
//     through sqlgen.ScriptWriter.
//
// A failing source or table is recorded in the Summary and the run goes on.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sqlconv/internal/identifier"
	"sqlconv/internal/inference"
	"sqlconv/internal/logging"
	"sqlconv/internal/metrics"
	"sqlconv/internal/schema"
	"sqlconv/internal/source"
	"sqlconv/internal/sqlgen"
)

// Status values recorded per table.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Runner executes conversion jobs. The zero value is not usable; build one
// with NewRunner.
type Runner struct {
	Engine    *inference.Engine
	Generator *sqlgen.Generator
	Logger    *zap.Logger

	// Workers bounds concurrent inference. <= 0 means GOMAXPROCS.
	Workers int

	// SampleRows caps the rows read per table during inference; 0 reads all.
	SampleRows int

	// OpenSource lists the tables of one source. Defaults to source.Open.
	OpenSource func(ctx context.Context, cfg source.Config) ([]source.Table, error)

	// Create opens an output file in per-table mode. Defaults to os.Create
	// after creating parent directories.
	Create func(path string) (io.WriteCloser, error)

	now   func() time.Time
	newID func() string
}

// NewRunner wires a runner with default seams.
func NewRunner(engine *inference.Engine, gen *sqlgen.Generator, logger *zap.Logger) *Runner {
	if engine == nil {
		engine = inference.New(inference.DefaultConfig())
	}
	if gen == nil {
		gen = sqlgen.New(sqlgen.Config{}, engine)
	}
	return &Runner{
		Engine:     engine,
		Generator:  gen,
		Logger:     logging.OrNop(logger),
		OpenSource: source.Open,
		Create:     createFile,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Job describes one run.
type Job struct {
	Sources []source.Config

	// Output receives a single script with every table. Ignored when OutDir
	// is set.
	Output io.Writer

	// OutDir switches to one "<table>.sql" file per table.
	OutDir string

	// Origin is written as the script's "Generated from" line.
	Origin string

	// Stamp adds a "Generated at" line with the run start time.
	Stamp bool
}

// plan is one table moving through the passes.
type plan struct {
	src    source.Table
	table  *schema.Table
	result *TableResult
}

// Run executes job.
//
// Errors:
//   - Job has neither Output nor OutDir.
//   - ctx is cancelled; the partial summary is still returned.
//   - Writing the single script fails; per-table failures are only recorded.
func (r *Runner) Run(ctx context.Context, job Job) (*Summary, error) {
	if job.Output == nil && job.OutDir == "" {
		return nil, errors.New("batch: job needs Output or OutDir")
	}

	start := r.now()
	sum := &Summary{RunID: r.newID(), StartedAt: start.UTC()}
	log := r.Logger.With(zap.String("run_id", sum.RunID))
	log.Info("run started", zap.Int("sources", len(job.Sources)))

	plans, err := r.prepare(ctx, job.Sources, sum, log)
	if err != nil {
		sum.finish(plans, r.now().Sub(start))
		return sum, err
	}

	renderStart := time.Now()
	if job.OutDir != "" {
		err = r.renderFiles(ctx, job, plans, start, log)
	} else {
		err = r.renderScript(ctx, job, plans, start, log)
	}
	metrics.RecordStep("render", renderStart, err)

	sum.finish(plans, r.now().Sub(start))
	for _, t := range sum.Tables {
		metrics.RecordTable(t.Status)
	}
	log.Info("run finished",
		zap.Int("tables", len(sum.Tables)),
		zap.Int("failed", sum.Failed),
		zap.Int64("rows", sum.Rows),
		zap.Int64("statements", sum.Statements),
		zap.Duration("duration", r.now().Sub(start)),
	)
	return sum, err
}

// Plan runs the inference pass and name registration without rendering and
// returns the table definitions in source order. The summary has no row or
// statement counts.
func (r *Runner) Plan(ctx context.Context, srcs []source.Config) ([]*schema.Table, *Summary, error) {
	start := r.now()
	sum := &Summary{RunID: r.newID(), StartedAt: start.UTC()}
	log := r.Logger.With(zap.String("run_id", sum.RunID))

	plans, err := r.prepare(ctx, srcs, sum, log)
	var tables []*schema.Table
	for _, p := range plans {
		if p.table != nil {
			p.result.Status = StatusOK
			tables = append(tables, p.table)
		}
	}
	sum.finish(plans, r.now().Sub(start))
	return tables, sum, err
}

// prepare lists every source, infers every table and registers the names.
func (r *Runner) prepare(ctx context.Context, srcs []source.Config, sum *Summary, log *zap.Logger) ([]*plan, error) {
	plans := r.listTables(ctx, srcs, sum, log)

	inferStart := time.Now()
	err := r.infer(ctx, plans, log)
	metrics.RecordStep("infer", inferStart, err)
	if err != nil {
		return plans, err
	}
	r.register(plans, log)
	return plans, nil
}

func (r *Runner) listTables(ctx context.Context, cfgs []source.Config, sum *Summary, log *zap.Logger) []*plan {
	var plans []*plan
	for _, cfg := range cfgs {
		tables, err := r.OpenSource(ctx, cfg)
		if err != nil {
			log.Warn("source failed", zap.String("kind", cfg.Kind), zap.String("path", cfg.Path), zap.Error(err))
			sum.Sources = append(sum.Sources, SourceResult{Kind: cfg.Kind, Path: sourceLabel(cfg), Status: StatusFailed, Error: err.Error()})
			continue
		}
		sum.Sources = append(sum.Sources, SourceResult{Kind: cfg.Kind, Path: sourceLabel(cfg), Status: StatusOK, Tables: len(tables)})
		for _, t := range tables {
			plans = append(plans, &plan{
				src:    t,
				result: &TableResult{Origin: t.Origin, Original: t.Name, Prefix: t.Prefix},
			})
		}
	}
	return plans
}

// infer runs pass 1. Only cancellation is returned; table errors are
// recorded on the plan.
func (r *Runner) infer(ctx context.Context, plans []*plan, log *zap.Logger) error {
	builder := schema.NewBuilder(r.Engine, nil)

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, p := range plans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			tbl, err := r.inferTable(gctx, builder, p.src)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.result.fail("infer", err)
				log.Warn("infer failed", zap.String("origin", p.src.Origin), zap.Error(err))
				return nil
			}
			p.table = tbl
			log.Debug("stage=infer ok",
				zap.String("origin", p.src.Origin),
				zap.Int("columns", len(tbl.Columns)),
				zap.Duration("duration", time.Since(t0)),
			)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) inferTable(ctx context.Context, b *schema.Builder, src source.Table) (*schema.Table, error) {
	rr, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer rr.Close()

	names := rr.Columns()
	cols := make([]*inference.Column, len(names))
	for i := range cols {
		cols[i] = r.Engine.NewColumn()
	}

	for n := 0; r.SampleRows <= 0 || n < r.SampleRows; n++ {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", n+1, err)
		}
		for i, c := range cols {
			if i < len(row) {
				c.Observe(row[i])
			} else {
				c.Observe(nil)
			}
		}
	}
	return b.InferColumns(src.Name, names, cols), nil
}

// register resolves run-unique names in source order and applies primary
// keys.
func (r *Runner) register(plans []*plan, log *zap.Logger) {
	builder := schema.NewBuilder(r.Engine, identifier.NewNameSet())
	for _, p := range plans {
		if p.table == nil {
			continue
		}
		if err := builder.Register(p.table, p.src.Prefix); err != nil {
			p.result.fail("register", err)
			p.table = nil
			continue
		}
		if len(p.src.PrimaryKey) > 0 {
			if err := schema.SetPrimaryKey(p.table, p.src.PrimaryKey...); err != nil {
				p.result.fail("register", err)
				p.table = nil
				continue
			}
		}
		p.result.Name = p.table.Name
		p.result.Columns = len(p.table.Columns)
		log.Debug("table registered", zap.String("origin", p.src.Origin), zap.String("table", p.table.Name))
	}
}

func (r *Runner) header(job Job, start time.Time) sqlgen.ScriptHeader {
	h := sqlgen.ScriptHeader{Source: job.Origin}
	if job.Stamp {
		h.GeneratedAt = start
	}
	return h
}

// renderScript writes all tables into job.Output.
func (r *Runner) renderScript(ctx context.Context, job Job, plans []*plan, start time.Time, log *zap.Logger) error {
	sw := r.Generator.NewScript(job.Output)
	if err := sw.WriteHeader(r.header(job, start)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range plans {
		if p.table == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		stmts := sw.Statements()
		if err := r.renderTable(ctx, sw, p); err != nil {
			p.result.fail("render", err)
			log.Warn("render failed", zap.String("table", p.table.Name), zap.Error(err))
			continue
		}
		r.recordTable(p, sw.TableRows(), sw.Statements()-stmts, log)
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush script: %w", err)
	}
	return nil
}

// renderFiles writes one file per table into job.OutDir.
func (r *Runner) renderFiles(ctx context.Context, job Job, plans []*plan, start time.Time, log *zap.Logger) error {
	for _, p := range plans {
		if p.table == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(job.OutDir, p.table.Name+".sql")
		rows, stmts, err := r.renderFile(ctx, job, p, path, start)
		if err != nil {
			p.result.fail("render", err)
			log.Warn("render failed", zap.String("table", p.table.Name), zap.String("path", path), zap.Error(err))
			continue
		}
		p.result.Output = path
		r.recordTable(p, rows, stmts, log)
	}
	return nil
}

func (r *Runner) renderFile(ctx context.Context, job Job, p *plan, path string, start time.Time) (rows, stmts int64, err error) {
	w, err := r.Create(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sw := r.Generator.NewScript(w)
	if err := sw.WriteHeader(r.header(job, start)); err != nil {
		return 0, 0, err
	}
	if err := r.renderTable(ctx, sw, p); err != nil {
		return 0, 0, err
	}
	if err := sw.Flush(); err != nil {
		return 0, 0, err
	}
	return sw.TableRows(), sw.Statements(), nil
}

// renderTable runs pass 2 for one table.
func (r *Runner) renderTable(ctx context.Context, sw *sqlgen.ScriptWriter, p *plan) error {
	rr, err := p.src.Open(ctx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer rr.Close()

	if err := sw.BeginTable(p.table, p.src.Origin); err != nil {
		return err
	}
	for n := 1; ; n++ {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read row %d: %w", n, err)
		}
		if err := sw.WriteRow(row); err != nil {
			return err
		}
	}
	return sw.EndTable()
}

func (r *Runner) recordTable(p *plan, rows, stmts int64, log *zap.Logger) {
	p.result.Status = StatusOK
	p.result.Rows = rows
	p.result.Statements = stmts

	comments := int64(0)
	if r.Generator.Config().ColumnComments {
		comments = int64(len(p.table.Columns))
	}
	metrics.RecordRows(int(rows))
	metrics.RecordStatements("ddl", 1)
	if comments > 0 {
		metrics.RecordStatements("comment", int(comments))
	}
	if inserts := stmts - 1 - comments; inserts > 0 {
		metrics.RecordStatements("insert", int(inserts))
	}
	log.Info("stage=render ok",
		zap.String("origin", p.src.Origin),
		zap.String("table", p.table.Name),
		zap.Int64("rows", rows),
		zap.Int64("statements", stmts),
	)
}

func sourceLabel(cfg source.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return cfg.Kind
}

func createFile(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}
