// Package xlsx adapts Excel workbooks to source.RowReader, one table per
// non-empty sheet.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"sqlconv/internal/source"
)

func init() {
	source.Register("xlsx", NewTables)
}

// NewTables lists the sheets of the workbook at cfg.Path.
//
// A workbook with a single sheet yields a table named after the file stem;
// with several sheets each table is named "<stem>_<sheet>". Sheets without
// any row are skipped.
func NewTables(_ context.Context, cfg source.Config) ([]source.Table, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("xlsx: missing path")
	}
	f, err := excelize.OpenFile(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	base := filepath.Base(cfg.Path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var out []source.Table
	for _, sheet := range sheets {
		empty, err := sheetEmpty(f, sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		if empty {
			continue
		}
		name := stem
		if len(sheets) > 1 {
			name = stem + "_" + sheet
		}
		path := cfg.Path
		out = append(out, source.Table{
			Name:   name,
			Prefix: cfg.Prefix,
			Origin: cfg.FileOrigin() + " [" + sheet + "]",
			Open: func(ctx context.Context) (source.RowReader, error) {
				return OpenSheet(ctx, path, sheet)
			},
		})
	}
	return out, nil
}

func sheetEmpty(f *excelize.File, sheet string) (bool, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return false, err
		}
		if !blank(cells) {
			return false, nil
		}
	}
	return true, rows.Error()
}

// Reader streams the rows of one sheet.
type Reader struct {
	ctx  context.Context
	f    *excelize.File
	rows *excelize.Rows
	cols []string
}

// OpenSheet opens the workbook at path and reads the header row of sheet.
// Blank rows before the header are skipped.
func OpenSheet(ctx context.Context, path, sheet string) (*Reader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	r := &Reader{ctx: ctx, f: f, rows: rows}

	hdr, err := r.nextCells()
	if err != nil {
		r.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("sheet %q: no header row", sheet)
		}
		return nil, err
	}
	r.cols = make([]string, len(hdr))
	for i, h := range hdr {
		r.cols[i] = strings.TrimSpace(h)
	}
	return r, nil
}

// nextCells returns the next non-blank row.
func (r *Reader) nextCells() ([]string, error) {
	for r.rows.Next() {
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := r.rows.Columns()
		if err != nil {
			return nil, err
		}
		if blank(cells) {
			continue
		}
		return cells, nil
	}
	if err := r.rows.Error(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *Reader) Columns() []string { return r.cols }

// Next returns the next non-blank row padded or cut to the header width.
// Cells are the formatted values Excel displays; blank cells are nil.
func (r *Reader) Next() ([]any, error) {
	cells, err := r.nextCells()
	if err != nil {
		return nil, err
	}
	row := make([]any, len(r.cols))
	for i := range row {
		if i >= len(cells) {
			continue
		}
		if v := strings.TrimSpace(cells[i]); v != "" {
			row[i] = v
		}
	}
	return row, nil
}

func (r *Reader) Close() error {
	var err error
	if r.rows != nil {
		err = r.rows.Close()
		r.rows = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	return err
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
