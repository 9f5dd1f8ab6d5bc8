package source

import "io"

// SliceReader serves rows already held in memory. It is used by adapters
// that must parse a whole document up front (HTML) and by tests.
type SliceReader struct {
	cols []string
	rows [][]any
	pos  int
}

// NewSliceReader returns a RowReader over rows. Rows are not copied.
func NewSliceReader(cols []string, rows [][]any) *SliceReader {
	return &SliceReader{cols: cols, rows: rows}
}

func (r *SliceReader) Columns() []string { return r.cols }

func (r *SliceReader) Next() ([]any, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}

func (r *SliceReader) Close() error { return nil }

// Collect drains rr, closing it, and returns all rows.
func Collect(rr RowReader) ([][]any, error) {
	defer rr.Close()
	var out [][]any
	for {
		row, err := rr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
}
