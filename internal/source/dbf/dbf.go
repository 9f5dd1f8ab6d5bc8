// Package dbf reads dBASE III/IV table files (.dbf) as source.RowReader.
//
// Character fields are decoded with the code page named by the header's
// language driver byte (falling back to Latin-1), or the "encoding" option
// when set. Deleted records are skipped. Memo, general and binary fields
// point into a side file that is not read; they surface as nil.
package dbf

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"sqlconv/internal/dialect"
	"sqlconv/internal/source"
)

const (
	headerSize     = 32
	descriptorSize = 32
	fieldTerm      = 0x0D
	fileEnd        = 0x1A
	deletedFlag    = '*'
)

// ErrFormat reports a malformed dBASE header.
var ErrFormat = errors.New("dbf: invalid file format")

func init() {
	source.Register("dbf", NewTables)
}

// NewTables offers the file at cfg.Path as a single table named after the
// file stem.
func NewTables(_ context.Context, cfg source.Config) ([]source.Table, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("dbf: missing path")
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, err
	}
	base := filepath.Base(cfg.Path)
	path, enc := cfg.Path, cfg.Options.String("encoding", "")
	return []source.Table{{
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Prefix: cfg.Prefix,
		Origin: cfg.FileOrigin(),
		Open: func(ctx context.Context) (source.RowReader, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			r, err := NewReader(ctx, f, enc)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("%s: %w", base, err)
			}
			r.closer = f
			return r, nil
		},
	}}, nil
}

// Field is one column descriptor.
type Field struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
}

// Header is the parsed file header.
type Header struct {
	Version    byte
	Updated    time.Time
	Records    int
	HeaderLen  int
	RecordLen  int
	LangDriver byte
	Fields     []Field
}

// Reader streams records from a dBASE file.
type Reader struct {
	ctx    context.Context
	br     *bufio.Reader
	closer io.Closer
	hdr    Header
	dec    *encoding.Decoder
	cols   []string
	rec    []byte
	read   int
}

// NewReader parses the header from src. encName overrides the code page
// derived from the language driver byte; empty keeps the derived one.
func NewReader(ctx context.Context, src io.Reader, encName string) (*Reader, error) {
	br := bufio.NewReaderSize(src, 64<<10)
	hdr, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	enc := CodePage(hdr.LangDriver)
	if encName != "" {
		enc = dialect.LookupEncoding(encName)
	}
	var dec *encoding.Decoder
	if enc != nil {
		dec = enc.NewDecoder()
	}

	cols := make([]string, len(hdr.Fields))
	for i, f := range hdr.Fields {
		cols[i] = f.Name
	}
	return &Reader{
		ctx:  ctx,
		br:   br,
		hdr:  hdr,
		dec:  dec,
		cols: cols,
		rec:  make([]byte, hdr.RecordLen),
	}, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		return Header{}, fmt.Errorf("%w: short header: %v", ErrFormat, err)
	}
	h := Header{
		Version:    raw[0],
		Records:    int(binary.LittleEndian.Uint32(raw[4:8])),
		HeaderLen:  int(binary.LittleEndian.Uint16(raw[8:10])),
		RecordLen:  int(binary.LittleEndian.Uint16(raw[10:12])),
		LangDriver: raw[29],
	}
	if raw[2] >= 1 && raw[2] <= 12 && raw[3] >= 1 && raw[3] <= 31 {
		h.Updated = time.Date(1900+int(raw[1]), time.Month(raw[2]), int(raw[3]), 0, 0, 0, 0, time.UTC)
	}
	if h.HeaderLen < headerSize+1 || h.RecordLen < 1 {
		return Header{}, fmt.Errorf("%w: header length %d, record length %d", ErrFormat, h.HeaderLen, h.RecordLen)
	}

	rest := make([]byte, h.HeaderLen-headerSize)
	if _, err := io.ReadFull(br, rest); err != nil {
		return Header{}, fmt.Errorf("%w: short field descriptors: %v", ErrFormat, err)
	}

	width := 1
	for off := 0; off+descriptorSize <= len(rest) && rest[off] != fieldTerm; off += descriptorSize {
		d := rest[off : off+descriptorSize]
		name := d[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		f := Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     d[11],
			Length:   int(d[16]),
			Decimals: int(d[17]),
		}
		if f.Type == 'C' {
			// Clipper/FoxPro store character lengths above 255 in both bytes.
			f.Length = int(binary.LittleEndian.Uint16(d[16:18]))
			f.Decimals = 0
		}
		width += f.Length
		h.Fields = append(h.Fields, f)
	}
	if len(h.Fields) == 0 {
		return Header{}, fmt.Errorf("%w: no fields", ErrFormat)
	}
	if width > h.RecordLen {
		return Header{}, fmt.Errorf("%w: fields need %d bytes, record has %d", ErrFormat, width, h.RecordLen)
	}
	return h, nil
}

// CodePage maps a language driver id to its character set. Unknown ids
// (including 0) fall back to Latin-1.
func CodePage(id byte) encoding.Encoding {
	switch id {
	case 0x01:
		return charmap.CodePage437
	case 0x02, 0x64:
		return charmap.CodePage850
	case 0x03, 0x57, 0x58, 0x59:
		return charmap.Windows1252
	default:
		return charmap.ISO8859_1
	}
}

// Header returns the parsed header.
func (r *Reader) Header() Header { return r.hdr }

func (r *Reader) Columns() []string { return r.cols }

// Next returns the next live record. Values are string (C and non-integral
// N/F), int64 (integral N, I), bool (L), time.Time (D) or nil.
func (r *Reader) Next() ([]any, error) {
	for {
		if r.read >= r.hdr.Records {
			return nil, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return nil, err
		}
		n, err := io.ReadFull(r.br, r.rec)
		if n > 0 && r.rec[0] == fileEnd {
			return nil, io.EOF
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("dbf record %d: %w", r.read+1, err)
		}
		r.read++
		if r.rec[0] == deletedFlag {
			continue
		}
		return r.decode(r.rec[1:])
	}
}

func (r *Reader) decode(data []byte) ([]any, error) {
	row := make([]any, len(r.hdr.Fields))
	off := 0
	for i, f := range r.hdr.Fields {
		raw := data[off : off+f.Length]
		off += f.Length
		v, err := r.value(f, raw)
		if err != nil {
			return nil, fmt.Errorf("dbf record %d field %s: %w", r.read, f.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

func (r *Reader) value(f Field, raw []byte) (any, error) {
	switch f.Type {
	case 'C':
		s, err := r.text(bytes.TrimRight(raw, " \x00"))
		if err != nil || s == "" {
			return nil, err
		}
		return s, nil

	case 'N', 'F':
		s := strings.TrimSpace(string(bytes.Trim(raw, "\x00")))
		if s == "" || strings.Trim(s, "*") == "" {
			return nil, nil
		}
		if f.Decimals == 0 {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
		return s, nil

	case 'I':
		if len(raw) != 4 {
			return nil, nil
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil

	case 'L':
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		}
		return nil, nil

	case 'D':
		s := strings.TrimSpace(string(raw))
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, nil
		}
		t, err := time.Parse("20060102", s)
		if err != nil {
			return nil, nil
		}
		return t, nil

	case 'M', 'G', 'B', 'P':
		return nil, nil

	default:
		s, err := r.text(bytes.TrimSpace(raw))
		if err != nil || s == "" {
			return nil, err
		}
		return s, nil
	}
}

func (r *Reader) text(b []byte) (string, error) {
	if r.dec == nil {
		return string(b), nil
	}
	out, err := r.dec.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
