package sqlgen

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"sqlconv/internal/schema"
)

// ScriptHeader is written once at the top of a script.
type ScriptHeader struct {
	// Source describes where the tables came from (directory, file, DSN host).
	Source string

	// GeneratedAt is printed when non-zero. Leave it zero for reproducible
	// output.
	GeneratedAt time.Time
}

// ScriptWriter streams a complete script: optional header, then for each
// table its DDL, optional column comments and INSERT batches.
//
// Rows are buffered up to the batch size, so memory stays bounded by one
// batch regardless of table size.
//
//	sw := gen.NewScript(w)
//	sw.WriteHeader(hdr)
//	sw.BeginTable(tbl, "clientes.csv")
//	for each row { sw.WriteRow(row) }
//	sw.EndTable()
//	sw.Flush()
type ScriptWriter struct {
	g         *Generator
	w         *bufio.Writer
	batchSize int

	table   *schema.Table
	prefix  string
	pending [][]any

	rows       int64
	statements int64
	tableRows  int64
}

// NewScript returns a writer using the generator's batch size.
func (g *Generator) NewScript(w io.Writer) *ScriptWriter {
	return &ScriptWriter{g: g, w: bufio.NewWriterSize(w, 64*1024), batchSize: g.cfg.BatchSize}
}

// WriteHeader writes the run header comment block.
func (s *ScriptWriter) WriteHeader(h ScriptHeader) error {
	if h.Source != "" {
		if _, err := fmt.Fprintf(s.w, "-- Generated from: %s\n", commentText(h.Source)); err != nil {
			return err
		}
	}
	if !h.GeneratedAt.IsZero() {
		if _, err := fmt.Fprintf(s.w, "-- Generated at: %s\n", h.GeneratedAt.Format(TimestampLayout)); err != nil {
			return err
		}
	}
	if h.Source != "" || !h.GeneratedAt.IsZero() {
		_, err := s.w.WriteString("\n")
		return err
	}
	return nil
}

// BeginTable writes the table header and DDL. A previous table still open is
// ended first.
func (s *ScriptWriter) BeginTable(t *schema.Table, origin string) error {
	if s.table != nil {
		if err := s.EndTable(); err != nil {
			return err
		}
	}
	s.table = t
	s.prefix = s.g.insertPrefix(t)
	s.pending = s.pending[:0]
	s.tableRows = 0

	if origin != "" {
		if _, err := fmt.Fprintf(s.w, "-- Table generated from: %s\n", commentText(origin)); err != nil {
			return err
		}
	}
	if _, err := s.w.WriteString(s.g.RenderCreateTable(t)); err != nil {
		return err
	}
	s.statements++
	if s.g.cfg.ColumnComments && len(t.Columns) > 0 {
		if _, err := s.w.WriteString("\n" + s.g.RenderColumnComments(t)); err != nil {
			return err
		}
		s.statements += int64(len(t.Columns))
	}
	_, err := s.w.WriteString("\n")
	return err
}

// WriteRow queues one row for the open table, emitting an INSERT when the
// batch is full. The row slice may be reused by the caller after return.
func (s *ScriptWriter) WriteRow(row []any) error {
	if s.table == nil {
		return fmt.Errorf("sqlgen: WriteRow without BeginTable")
	}
	if len(s.table.Columns) == 0 {
		return nil
	}
	s.pending = append(s.pending, append([]any(nil), row...))
	if len(s.pending) >= s.batchSize {
		return s.flushBatch()
	}
	return nil
}

// EndTable writes any pending rows and closes the table section.
func (s *ScriptWriter) EndTable() error {
	if s.table == nil {
		return nil
	}
	if err := s.flushBatch(); err != nil {
		return err
	}
	if s.tableRows == 0 {
		if _, err := s.w.WriteString("-- no data rows\n\n"); err != nil {
			return err
		}
	}
	s.table = nil
	return nil
}

// Flush ends the open table and flushes buffered output.
func (s *ScriptWriter) Flush() error {
	if err := s.EndTable(); err != nil {
		return err
	}
	return s.w.Flush()
}

// Rows returns the number of rows written so far across all tables.
func (s *ScriptWriter) Rows() int64 { return s.rows }

// TableRows returns the number of rows written for the current or last table.
func (s *ScriptWriter) TableRows() int64 { return s.tableRows }

// Statements returns the number of statements written so far.
func (s *ScriptWriter) Statements() int64 { return s.statements }

func (s *ScriptWriter) flushBatch() error {
	if len(s.pending) == 0 {
		return nil
	}
	stmt := s.g.renderInsert(s.prefix, s.table, s.pending)
	if _, err := s.w.WriteString(stmt); err != nil {
		return err
	}
	if _, err := s.w.WriteString("\n"); err != nil {
		return err
	}
	n := int64(len(s.pending))
	s.rows += n
	s.tableRows += n
	s.statements++
	s.pending = s.pending[:0]
	return nil
}
