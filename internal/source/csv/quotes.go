package csv

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sqlconv/internal/source"
)

// DequoteStats reports what RemoveQuotes did.
type DequoteStats struct {
	Rows    int
	Skipped int
}

// RemoveQuotes rewrites a delimited file without any double-quote characters.
//
// The input dialect is detected as in OpenFile and kept on output; output is
// always UTF-8. Every '"' is removed from headers and cells, fields are never
// quoted, and a delimiter or backslash inside a field is escaped with '\'.
// Records whose field count does not match the header are dropped and
// counted in DequoteStats.Skipped.
func RemoveQuotes(ctx context.Context, src io.Reader, dst io.Writer, opts source.Options) (DequoteStats, error) {
	var st DequoteStats

	opts = withRawFields(opts)
	r, err := NewReader(ctx, src, opts)
	if err != nil {
		return st, err
	}
	delim := string(r.Profile().Delimiter)

	w := bufio.NewWriter(dst)
	writeRecord := func(fields []string) error {
		for i, f := range fields {
			if i > 0 {
				if _, err := w.WriteString(delim); err != nil {
					return err
				}
			}
			if _, err := w.WriteString(escapeField(f, delim)); err != nil {
				return err
			}
		}
		return w.WriteByte('\n')
	}

	if err := writeRecord(r.Columns()); err != nil {
		return st, fmt.Errorf("write header: %w", err)
	}

	fields := make([]string, len(r.Columns()))
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, err
		}
		for i, v := range row {
			if v == nil {
				fields[i] = ""
				continue
			}
			fields[i] = v.(string)
		}
		if err := writeRecord(fields); err != nil {
			return st, fmt.Errorf("write row: %w", err)
		}
		st.Rows++
	}
	st.Skipped = r.Skipped()
	return st, w.Flush()
}

// RemoveQuotesFile applies RemoveQuotes to the file at src and writes dst,
// creating dst's directory when needed.
func RemoveQuotesFile(ctx context.Context, src, dst string, opts source.Options) (DequoteStats, error) {
	in, err := os.Open(src)
	if err != nil {
		return DequoteStats{}, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return DequoteStats{}, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return DequoteStats{}, err
	}
	st, err := RemoveQuotes(ctx, in, out, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return st, err
}

// withRawFields keeps cell whitespace so RemoveQuotes changes nothing but
// quote characters.
func withRawFields(opts source.Options) source.Options {
	out := make(source.Options, len(opts)+1)
	for k, v := range opts {
		out[k] = v
	}
	out["trim_space"] = false
	return out
}

var escaper = strings.NewReplacer(`"`, "", `\`, `\\`)

func escapeField(f, delim string) string {
	f = escaper.Replace(f)
	if strings.Contains(f, delim) {
		f = strings.ReplaceAll(f, delim, `\`+delim)
	}
	return f
}
