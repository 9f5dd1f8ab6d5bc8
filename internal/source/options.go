package source

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options carries adapter-specific settings, typically decoded from YAML or
// built from CLI flags. Values may be native (bool, int, float64) or strings.
type Options map[string]any

// String returns the option as a string, or def when absent.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	default:
		return toString(x)
	}
}

// Bool returns the option as a bool. Unparsable values yield def.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return def
		}
		return b
	}
	return def
}

// Int returns the option as an int. Unparsable values yield def.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// Rune returns the first rune of a string option. The names "tab", "\t",
// "semicolon", "comma" and "pipe" are accepted for delimiters.
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	switch strings.ToLower(s) {
	case "":
		return def
	case "tab", `\t`:
		return '\t'
	case "semicolon":
		return ';'
	case "comma":
		return ','
	case "pipe":
		return '|'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return def
	}
	return r
}

func toString(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}
