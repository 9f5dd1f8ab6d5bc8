// Package dialect detects how a delimited-text file is written: its text
// encoding and its field delimiter.
//
// Detection works on a bounded byte sample (the head of the file). The
// encoding is the first entry of Options.Encodings that decodes the sample;
// the delimiter is the candidate whose per-line count is positive and most
// consistent across the first Options.MaxLines non-empty lines.
package dialect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding names accepted in Options.Encodings.
const (
	UTF8        = "utf-8"
	Latin1      = "latin1"
	Windows1252 = "windows-1252"
	CP850       = "cp850"
)

// Candidates lists delimiters in tie-break preference order.
var Candidates = []rune{';', ',', '\t', '|'}

// DefaultMaxLines is the number of non-empty lines inspected when
// Options.MaxLines is unset.
const DefaultMaxLines = 20

// ErrDialectDetection is matched by every error Detect returns.
var ErrDialectDetection = errors.New("dialect detection failed")

// DetectionError explains why no delimiter qualified.
type DetectionError struct {
	Reason string
}

func (e *DetectionError) Error() string {
	return "dialect detection: " + e.Reason
}

func (e *DetectionError) Unwrap() error { return ErrDialectDetection }

// Profile is the detected layout of one file.
type Profile struct {
	Delimiter rune   `json:"delimiter" yaml:"delimiter"`
	Encoding  string `json:"encoding" yaml:"encoding"`
	Quote     rune   `json:"quote" yaml:"quote"`
}

// DelimiterName returns a printable name for the delimiter.
func (p Profile) DelimiterName() string {
	switch p.Delimiter {
	case '\t':
		return `\t`
	default:
		return string(p.Delimiter)
	}
}

// Decode wraps r so that it yields UTF-8 text for the profile's encoding.
// A leading UTF-8 byte order mark is not removed here; CSV readers strip it
// from the first header.
func (p Profile) Decode(r io.Reader) io.Reader {
	enc := lookupEncoding(p.Encoding)
	if enc == nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// Options tunes Detect. The zero value uses UTF-8 then Latin-1 and inspects
// DefaultMaxLines lines.
type Options struct {
	Encodings []string
	MaxLines  int
}

// Detect inspects sample and returns the file's profile.
//
// Edge cases:
//   - A UTF-8 BOM is ignored.
//   - A multi-byte rune cut at the end of the sample does not make the sample
//     invalid UTF-8.
//   - Blank lines are skipped; quoted newlines are not special-cased, which
//     only adds variance to the affected candidates.
//
// Errors:
//   - *DetectionError (errors.Is ErrDialectDetection) when the sample is empty,
//     no configured encoding accepts it, or no candidate averages at least one
//     occurrence per line.
func Detect(sample []byte, opts Options) (Profile, error) {
	encs := opts.Encodings
	if len(encs) == 0 {
		encs = []string{UTF8, Latin1}
	}
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}

	sample = bytes.TrimPrefix(sample, []byte("\xEF\xBB\xBF"))

	text, enc, err := decodeSample(sample, encs)
	if err != nil {
		return Profile{}, err
	}

	lines := headLines(text, maxLines)
	if len(lines) == 0 {
		return Profile{}, &DetectionError{Reason: "sample has no content"}
	}

	delim, ok := pickDelimiter(lines)
	if !ok {
		return Profile{}, &DetectionError{Reason: fmt.Sprintf("no delimiter among %q averages one or more per line (%d lines inspected)", string(Candidates), len(lines))}
	}

	return Profile{Delimiter: delim, Encoding: enc, Quote: '"'}, nil
}

func decodeSample(sample []byte, encs []string) (string, string, error) {
	for _, name := range encs {
		name = NormalizeEncoding(name)
		if name == UTF8 {
			if validUTF8Prefix(sample) {
				return string(sample), UTF8, nil
			}
			continue
		}
		enc := lookupEncoding(name)
		if enc == nil {
			return "", "", &DetectionError{Reason: fmt.Sprintf("unsupported encoding %q", name)}
		}
		out, err := enc.NewDecoder().Bytes(sample)
		if err != nil {
			continue
		}
		return string(out), name, nil
	}
	return "", "", &DetectionError{Reason: fmt.Sprintf("sample is not valid in any of %v", encs)}
}

// validUTF8Prefix accepts a sample whose only defect is a rune truncated by
// the sampling cut.
func validUTF8Prefix(b []byte) bool {
	if utf8.Valid(b) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut <= len(b); cut++ {
		head := b[:len(b)-cut]
		if utf8.Valid(head) && !utf8.FullRune(b[len(b)-cut:]) {
			return true
		}
	}
	return false
}

func headLines(text string, max int) []string {
	var out []string
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimRight(ln, "\r")
		if strings.TrimSpace(ln) == "" {
			continue
		}
		out = append(out, ln)
		if len(out) == max {
			break
		}
	}
	return out
}

// pickDelimiter returns the qualifying candidate with the lowest per-line
// count variance. A candidate present on every inspected line beats one that
// is missing from some line; within a tier, variance decides and ties keep
// Candidates order. Variance is compared as n*sum(x^2) - sum(x)^2, which is
// exact in integers and ordered like the variance for a fixed n.
func pickDelimiter(lines []string) (rune, bool) {
	n := int64(len(lines))
	var (
		best      rune
		bestScore int64
		bestFull  bool
		found     bool
	)
	for _, c := range Candidates {
		var sum, sumSq int64
		full := true
		for _, ln := range lines {
			k := int64(strings.Count(ln, string(c)))
			if k == 0 {
				full = false
			}
			sum += k
			sumSq += k * k
		}
		// mean >= 1
		if sum < n {
			continue
		}
		score := n*sumSq - sum*sum
		switch {
		case !found, full && !bestFull, full == bestFull && score < bestScore:
			best, bestScore, bestFull, found = c, score, full, true
		}
	}
	return best, found
}

// NormalizeEncoding maps common spellings onto the package constants.
func NormalizeEncoding(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return UTF8
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return Latin1
	case "windows-1252", "cp1252", "win1252":
		return Windows1252
	case "cp850", "ibm850":
		return CP850
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

func lookupEncoding(name string) encoding.Encoding {
	switch NormalizeEncoding(name) {
	case Latin1:
		return charmap.ISO8859_1
	case Windows1252:
		return charmap.Windows1252
	case CP850:
		return charmap.CodePage850
	default:
		return nil
	}
}

// LookupEncoding exposes the x/text encoding for name. UTF-8 and unknown
// names return nil, meaning "no transcoding".
func LookupEncoding(name string) encoding.Encoding {
	return lookupEncoding(name)
}

// Supported reports whether name is an encoding Detect and Decode handle.
func Supported(name string) bool {
	return NormalizeEncoding(name) == UTF8 || lookupEncoding(name) != nil
}
