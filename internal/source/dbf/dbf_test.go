package dbf

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlconv/internal/source"
)

type testField struct {
	name string
	typ  byte
	len  int
	dec  int
}

// buildDBF assembles a dBASE III file. Each record is given as the raw field
// texts; deleted marks records to flag with '*'.
func buildDBF(t *testing.T, lang byte, fields []testField, records [][]string, deleted map[int]bool) []byte {
	t.Helper()

	recLen := 1
	for _, f := range fields {
		recLen += f.len
	}
	hdrLen := headerSize + len(fields)*descriptorSize + 1

	var b bytes.Buffer
	hdr := make([]byte, headerSize)
	hdr[0] = 0x03
	hdr[1], hdr[2], hdr[3] = 124, 3, 15
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(records)))
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(hdrLen))
	binary.LittleEndian.PutUint16(hdr[10:12], uint16(recLen))
	hdr[29] = lang
	b.Write(hdr)

	for _, f := range fields {
		d := make([]byte, descriptorSize)
		copy(d[:11], f.name)
		d[11] = f.typ
		d[16] = byte(f.len)
		d[17] = byte(f.dec)
		b.Write(d)
	}
	b.WriteByte(fieldTerm)

	for i, rec := range records {
		if deleted[i] {
			b.WriteByte(deletedFlag)
		} else {
			b.WriteByte(' ')
		}
		for j, f := range fields {
			cell := []byte(rec[j])
			require.LessOrEqual(t, len(cell), f.len)
			pad := bytes.Repeat([]byte{' '}, f.len-len(cell))
			if f.typ == 'N' {
				b.Write(pad)
				b.Write(cell)
			} else {
				b.Write(cell)
				b.Write(pad)
			}
		}
	}
	b.WriteByte(fileEnd)
	return b.Bytes()
}

var testFields = []testField{
	{name: "NOME", typ: 'C', len: 10},
	{name: "IDADE", typ: 'N', len: 3},
	{name: "SALARIO", typ: 'N', len: 8, dec: 2},
	{name: "ATIVO", typ: 'L', len: 1},
	{name: "NASC", typ: 'D', len: 8},
	{name: "OBS", typ: 'M', len: 10},
}

func TestReader(t *testing.T) {
	t.Parallel()

	data := buildDBF(t, 0x00, testFields, [][]string{
		{"Jo\xe3o", "42", "1234.50", "T", "19800102", "0000000001"},
		{"apagado", "1", "1.00", "F", "20000101", ""},
		{"", "", "", "?", "        ", ""},
	}, map[int]bool{1: true})

	r, err := NewReader(context.Background(), bytes.NewReader(data), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"NOME", "IDADE", "SALARIO", "ATIVO", "NASC", "OBS"}, r.Columns())
	assert.Equal(t, 3, r.Header().Records)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.Header().Updated)

	rows, err := source.Collect(r)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"João", int64(42), "1234.50", true, time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC), nil}, rows[0])
	assert.Equal(t, []any{nil, nil, nil, nil, nil, nil}, rows[1])
}

func TestReader_EncodingOverride(t *testing.T) {
	t.Parallel()

	data := buildDBF(t, 0x02, []testField{{name: "N", typ: 'C', len: 4}}, [][]string{{"\x87a"}}, nil)

	r, err := NewReader(context.Background(), bytes.NewReader(data), "")
	require.NoError(t, err)
	rows, err := source.Collect(r)
	require.NoError(t, err)
	assert.Equal(t, "ça", rows[0][0], "cp850 from language driver")

	r, err = NewReader(context.Background(), bytes.NewReader(data), "windows-1252")
	require.NoError(t, err)
	rows, err = source.Collect(r)
	require.NoError(t, err)
	assert.Equal(t, "‡a", rows[0][0])
}

func TestReader_BadHeader(t *testing.T) {
	t.Parallel()

	_, err := NewReader(context.Background(), bytes.NewReader([]byte{0x03, 1, 2}), "")
	assert.ErrorIs(t, err, ErrFormat)

	hdr := make([]byte, headerSize+1)
	binary.LittleEndian.PutUint16(hdr[8:10], uint16(headerSize+1))
	binary.LittleEndian.PutUint16(hdr[10:12], 1)
	hdr[headerSize] = fieldTerm
	_, err = NewReader(context.Background(), bytes.NewReader(hdr), "")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestNewTables(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "CADASTRO.DBF")
	data := buildDBF(t, 0x03, testFields[:2], [][]string{{"Ana", "7"}}, nil)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tables, err := source.Open(context.Background(), source.Config{Kind: "dbf", Path: path})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "CADASTRO", tables[0].Name)

	rr, err := tables[0].Open(context.Background())
	require.NoError(t, err)
	rows, err := source.Collect(rr)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ana", int64(7)}}, rows)
}
