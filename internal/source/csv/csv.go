// Package csv adapts delimited text files to source.RowReader.
//
// The delimiter and encoding are detected per file (dialect.Detect) unless
// the "delimiter" / "encoding" options pin them.
//
// Options:
//
//	delimiter     ";" | "," | "tab" | "|" (default: detected)
//	encoding      utf-8 | latin1 | windows-1252 | cp850 (default: detected)
//	has_header    bool, default true; otherwise columns are col_1..col_n
//	trim_space    bool, default true
//	encodings     comma-separated candidates tried by detection
//	detect_lines  int, lines inspected by detection (default 20)
//	sample_bytes  int, bytes inspected by detection (default 65536)
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"sqlconv/internal/dialect"
	"sqlconv/internal/source"
)

// DefaultSampleBytes is the detection sample size.
const DefaultSampleBytes = 64 << 10

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func init() {
	source.Register("csv", NewTables)
}

// NewTables offers the file at cfg.Path as a single table named after the
// file stem.
func NewTables(_ context.Context, cfg source.Config) ([]source.Table, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("csv: missing path")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, err
	}
	base := filepath.Base(cfg.Path)
	path, opts := cfg.Path, cfg.Options
	return []source.Table{{
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Prefix: cfg.Prefix,
		Origin: cfg.FileOrigin(),
		Open: func(ctx context.Context) (source.RowReader, error) {
			return OpenFile(ctx, path, opts)
		},
	}}, nil
}

// Sniff reads the head of the file at path and returns its profile, applying
// any delimiter/encoding pinned in opts.
func Sniff(path string, opts source.Options) (dialect.Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return dialect.Profile{}, err
	}
	defer f.Close()

	sample, err := readSample(f, opts.Int("sample_bytes", DefaultSampleBytes))
	if err != nil {
		return dialect.Profile{}, err
	}
	return profileFor(sample, opts)
}

func readSample(r io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		n = DefaultSampleBytes
	}
	buf := make([]byte, n)
	m, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return buf[:m], nil
}

func profileFor(sample []byte, opts source.Options) (dialect.Profile, error) {
	delim := opts.Rune("delimiter", 0)
	enc := opts.String("encoding", "")

	if delim != 0 && enc != "" {
		return dialect.Profile{Delimiter: delim, Encoding: dialect.NormalizeEncoding(enc), Quote: '"'}, nil
	}

	dopts := dialect.Options{MaxLines: opts.Int("detect_lines", 0)}
	switch {
	case enc != "":
		dopts.Encodings = []string{enc}
	case opts.String("encodings", "") != "":
		for _, e := range strings.Split(opts.String("encodings", ""), ",") {
			if e = strings.TrimSpace(e); e != "" {
				dopts.Encodings = append(dopts.Encodings, e)
			}
		}
	}
	p, err := dialect.Detect(sample, dopts)
	if err != nil {
		// A pinned delimiter still needs an encoding; a single-column file
		// fails delimiter detection but is perfectly readable.
		if delim != 0 && errors.Is(err, dialect.ErrDialectDetection) {
			return dialect.Profile{Delimiter: delim, Encoding: detectEncoding(sample), Quote: '"'}, nil
		}
		return dialect.Profile{}, err
	}
	if delim != 0 {
		p.Delimiter = delim
	}
	return p, nil
}

func detectEncoding(sample []byte) string {
	// Tolerate a rune cut by the sample boundary.
	for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
		sample = sample[:len(sample)-1]
	}
	if utf8.Valid(sample) {
		return dialect.UTF8
	}
	return dialect.Latin1
}

// Reader streams records of one delimited file.
type Reader struct {
	ctx     context.Context
	closer  io.Closer
	cr      *csv.Reader
	cols    []string
	pending []string
	trim    bool
	profile dialect.Profile

	line    int
	skipped int
}

// OpenFile opens path and positions the reader after the header.
func OpenFile(ctx context.Context, path string, opts source.Options) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(ctx, f, opts)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	r.closer = f
	return r, nil
}

// NewReader detects the dialect of src and reads its header. The caller
// keeps ownership of src.
func NewReader(ctx context.Context, src io.Reader, opts source.Options) (*Reader, error) {
	sample, err := readSample(src, opts.Int("sample_bytes", DefaultSampleBytes))
	if err != nil {
		return nil, err
	}
	profile, err := profileFor(sample, opts)
	if err != nil {
		return nil, err
	}

	body := bufio.NewReaderSize(io.MultiReader(bytes.NewReader(sample), src), 64<<10)
	if profile.Encoding == dialect.UTF8 && bytes.HasPrefix(sample, utf8BOM) {
		if _, err := body.Discard(len(utf8BOM)); err != nil {
			return nil, err
		}
	}

	cr := csv.NewReader(profile.Decode(body))
	cr.Comma = profile.Delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	r := &Reader{
		ctx:     ctx,
		cr:      cr,
		trim:    opts.Bool("trim_space", true),
		profile: profile,
	}

	first, err := r.read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if opts.Bool("has_header", true) {
		r.cols = make([]string, len(first))
		for i, h := range first {
			if i == 0 {
				h = strings.TrimPrefix(h, "\uFEFF")
			}
			r.cols[i] = strings.TrimSpace(h)
		}
	} else {
		r.cols = make([]string, len(first))
		for i := range first {
			r.cols[i] = "col_" + strconv.Itoa(i+1)
		}
		r.pending = append([]string(nil), first...)
	}
	return r, nil
}

func (r *Reader) read() ([]string, error) {
	r.line++
	return r.cr.Read()
}

// Profile returns the dialect the reader was opened with.
func (r *Reader) Profile() dialect.Profile { return r.profile }

func (r *Reader) Columns() []string { return r.cols }

// Skipped returns the number of records dropped so far because their field
// count did not match the header or they could not be parsed.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next well-formed record. Trimmed empty fields are nil.
func (r *Reader) Next() ([]any, error) {
	if r.pending != nil {
		rec := r.pending
		r.pending = nil
		return r.convert(rec), nil
	}
	for {
		if r.line%1024 == 0 {
			if err := r.ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				r.skipped++
				continue
			}
			return nil, fmt.Errorf("csv read line %d: %w", r.line, err)
		}
		if len(rec) != len(r.cols) {
			r.skipped++
			continue
		}
		return r.convert(rec), nil
	}
}

func (r *Reader) convert(rec []string) []any {
	row := make([]any, len(rec))
	for i, v := range rec {
		if r.trim {
			v = strings.TrimSpace(v)
		}
		if v == "" {
			row[i] = nil
			continue
		}
		row[i] = v
	}
	return row
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
