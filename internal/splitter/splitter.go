// Package splitter divides a SQL script into chunks of bounded line count
// without ever cutting a statement in two.
//
// A chunk is closed only when it holds at least the requested number of
// lines AND the scanner is outside any statement, string, quoted identifier,
// comment, dollar-quoted body or COPY data block. Chunks are never rewritten:
// concatenating them in order reproduces the input byte for byte.
package splitter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DefaultMaxLines is the chunk size used by the CLI when none is given.
const DefaultMaxLines = 50000

var (
	// ErrUnterminatedStatement is matched by *UnterminatedError.
	ErrUnterminatedStatement = errors.New("unterminated statement")

	// ErrInvalidChunkSize is returned for maxLines <= 0.
	ErrInvalidChunkSize = errors.New("splitter: max lines per chunk must be positive")
)

// UnterminatedError reports a script that ends inside a statement.
type UnterminatedError struct {
	// Line is the 1-based line where the open statement started.
	Line   int
	Reason string
}

func (e *UnterminatedError) Error() string {
	return fmt.Sprintf("unterminated statement starting at line %d: %s", e.Line, e.Reason)
}

func (e *UnterminatedError) Unwrap() error { return ErrUnterminatedStatement }

// Chunk is one slice of the input. Index is 1-based; FirstLine and LastLine
// are 1-based input line numbers.
type Chunk struct {
	Index     int
	FirstLine int
	LastLine  int
	Text      string
}

// Lines returns the number of input lines in the chunk.
func (c Chunk) Lines() int { return c.LastLine - c.FirstLine + 1 }

// Scan reads r line by line and calls emit for each completed chunk.
//
// Chunks are emitted as soon as they close, so when the input turns out to
// end inside a statement, chunks before the open statement have already been
// emitted; the tail never is. Callers that must not produce any output for a
// malformed script either buffer (Split) or validate first (Validate).
//
// Errors:
//   - ErrInvalidChunkSize when maxLines <= 0.
//   - *UnterminatedError when input ends inside a statement.
//   - read errors from r and errors returned by emit, unchanged.
func Scan(r io.Reader, maxLines int, emit func(Chunk) error) error {
	if maxLines <= 0 {
		return ErrInvalidChunkSize
	}

	br := bufio.NewReaderSize(r, 64*1024)
	var (
		st     state
		buf    strings.Builder
		lineNo int
		first  = 1
		count  int
		index  int
	)

	flush := func() error {
		index++
		c := Chunk{Index: index, FirstLine: first, LastLine: lineNo, Text: buf.String()}
		buf.Reset()
		count = 0
		first = lineNo + 1
		return emit(c)
	}

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			st.feed(line, lineNo)
			buf.WriteString(line)
			count++
			if count >= maxLines && !st.inside() {
				if ferr := flush(); ferr != nil {
					return ferr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read script line %d: %w", lineNo+1, err)
		}
	}

	if st.inside() {
		return &UnterminatedError{Line: st.startLine, Reason: st.describe()}
	}
	if count > 0 {
		return flush()
	}
	return nil
}

// Split partitions script into chunks of at least maxLinesPerChunk lines
// (the last one may be shorter), each ending outside a statement. On error
// no chunk is returned.
func Split(script string, maxLinesPerChunk int) ([]string, error) {
	var out []string
	err := Scan(strings.NewReader(script), maxLinesPerChunk, func(c Chunk) error {
		out = append(out, c.Text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Validate scans r without keeping chunk text and returns the chunk line
// ranges that Scan would produce.
func Validate(r io.Reader, maxLines int) ([]Chunk, error) {
	var out []Chunk
	err := Scan(r, maxLines, func(c Chunk) error {
		c.Text = ""
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ChunkName returns "<stem>_parte_<NNN>.sql" with the index zero-padded to
// at least three digits, or more when total needs them.
func ChunkName(stem string, index, total int) string {
	width := len(strconv.Itoa(total))
	if width < 3 {
		width = 3
	}
	return fmt.Sprintf("%s_parte_%0*d.sql", stem, width, index)
}
