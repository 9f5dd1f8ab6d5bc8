package splitter

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileOptions controls SplitFile.
type FileOptions struct {
	// MaxLines per chunk; <= 0 means DefaultMaxLines.
	MaxLines int

	// OutDir receives the chunk files; empty means the script's directory.
	OutDir string

	// Headers prefixes every chunk file with a short comment block
	// (part number, original file, line range). The chunk body itself is
	// written unchanged.
	Headers bool
}

// ChunkFile describes one written chunk.
type ChunkFile struct {
	Path string
	Chunk
}

// SplitFile splits the script at path into chunk files named by ChunkName.
//
// The script is read twice: a validating pass computes the chunk count and
// fails on an unterminated statement before anything is written, then a
// second pass writes the files. Existing chunk files are overwritten.
func SplitFile(ctx context.Context, path string, opts FileOptions) ([]ChunkFile, error) {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	plan, err := validateFile(path, maxLines)
	if err != nil {
		return nil, err
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	total := len(plan)
	out := make([]ChunkFile, 0, total)

	err = Scan(f, maxLines, func(c Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := filepath.Join(outDir, ChunkName(stem, c.Index, total))
		if err := writeChunk(dst, c, total, base, opts.Headers); err != nil {
			return err
		}
		c.Text = ""
		out = append(out, ChunkFile{Path: dst, Chunk: c})
		return nil
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

func validateFile(path string, maxLines int) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Validate(f, maxLines)
}

func writeChunk(dst string, c Chunk, total int, original string, headers bool) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create chunk: %w", err)
	}
	w := bufio.NewWriter(f)
	if headers {
		fmt.Fprintf(w, "-- Part %d of %d\n", c.Index, total)
		fmt.Fprintf(w, "-- Original file: %s\n", original)
		fmt.Fprintf(w, "-- Lines %d to %d\n\n", c.FirstLine, c.LastLine)
	}
	if _, err := w.WriteString(c.Text); err != nil {
		f.Close()
		return fmt.Errorf("write chunk %s: %w", dst, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write chunk %s: %w", dst, err)
	}
	return f.Close()
}
