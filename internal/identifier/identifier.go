// Package identifier turns arbitrary source names (spreadsheet headers, file
// names, sheet names, dBASE field names) into safe PostgreSQL identifiers.
//
// Output always matches ^[a-z][a-z0-9_]*$ and never exceeds MaxLen bytes.
// Uniqueness is resolved against a caller-owned NameSet; this package keeps no
// global state, so independent tables can be sanitized concurrently as long as
// each goroutine owns its own set.
package identifier

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLen is the longest identifier PostgreSQL keeps without truncation
// (NAMEDATALEN-1).
const MaxLen = 63

// Kind selects the fallback prefix used for names that are empty or start
// with a digit.
type Kind int

const (
	KindColumn Kind = iota
	KindTable
)

// Prefix returns the fallback prefix for k ("col_" or "table_").
func (k Kind) Prefix() string {
	if k == KindTable {
		return "table_"
	}
	return "col_"
}

// Sanitize normalizes raw and resolves collisions against existing.
//
// The result is NOT added to existing; callers register it (existing.Add)
// before sanitizing the next name. Registration order therefore decides which
// name keeps the bare form and which ones get _2, _3, ... suffixes, so callers
// must sanitize in source column/table order.
//
// Edge cases:
//   - A nil existing set behaves like an empty one.
//   - Names that normalize to "" become the bare prefix ("col_"/"table_").
//
// Sanitize never fails.
func Sanitize(raw string, existing *NameSet, kind Kind) string {
	name, _ := resolve(Normalize(raw, kind), existing, 0)
	return name
}

// Normalize applies the character-level rules without any collision handling:
// ASCII transliteration, lower-casing, mapping every byte outside [a-z0-9_]
// to '_', collapsing '_' runs, trimming '_' and adding the kind prefix when
// the result is empty or starts with a digit.
func Normalize(raw string, kind Kind) string {
	s := strings.ToLower(transliterate(raw))

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = kind.Prefix() + out
	}
	return truncate(out, MaxLen)
}

// ResolveBounded resolves base against existing, trying at most maxSuffix
// numeric suffixes (_2 .. _maxSuffix+1). ok is false when every candidate was
// taken. maxSuffix <= 0 means unbounded.
func ResolveBounded(base string, existing *NameSet, maxSuffix int) (name string, ok bool) {
	return resolve(base, existing, maxSuffix)
}

func resolve(base string, existing *NameSet, maxSuffix int) (string, bool) {
	if !existing.Contains(base) {
		return base, true
	}
	for n := 2; maxSuffix <= 0 || n <= maxSuffix+1; n++ {
		suffix := "_" + strconv.Itoa(n)
		candidate := truncate(base, MaxLen-len(suffix)) + suffix
		if !existing.Contains(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// letterFolds spells out letters that have no decomposition to an ASCII base.
// Ordinal indicators become separators so "Nº" reads as "n".
var letterFolds = strings.NewReplacer(
	"ß", "ss", "ẞ", "SS",
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
	"Ø", "O", "ø", "o",
	"Ł", "L", "ł", "l",
	"Đ", "D", "đ", "d",
	"Ð", "D", "ð", "d",
	"Þ", "TH", "þ", "th",
	"ı", "i",
	"º", " ", "ª", " ",
)

// transliterate folds Latin letters to ASCII ("ç" -> "c", "ß" -> "ss").
// Compatibility forms (ligatures, fullwidth letters) are decomposed too.
// Runes with no ASCII reading are kept and later replaced by '_'.
func transliterate(s string) string {
	s = letterFolds.Replace(s)
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// truncate cuts an ASCII identifier to n bytes, dropping a trailing '_'
// exposed by the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "_")
}
