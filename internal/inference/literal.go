package inference

import (
	"strconv"
	"strings"
)

// CanonicalNumber returns the canonical decimal text of s: no '+' sign, no
// redundant leading zeros, "0" before a bare fraction and no trailing '.'.
// Fraction digits are kept as written so precision survives. ok is false when
// s is not a plain decimal literal.
//
//	"+007.50" -> "7.50"
//	"-.5"     -> "-0.5"
//	"12."     -> "12"
func CanonicalNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	intPart, frac, _, ok := splitNumber(s)
	if !ok {
		return "", false
	}
	neg := s[0] == '-'

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}

	var b strings.Builder
	b.Grow(len(intPart) + len(frac) + 2)
	if neg && !(intPart == "0" && strings.Trim(frac, "0") == "") {
		b.WriteByte('-')
	}
	b.WriteString(intPart)
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String(), true
}

// CanonicalInteger is CanonicalNumber restricted to integral literals.
func CanonicalInteger(s string) (string, bool) {
	out, ok := CanonicalNumber(s)
	if !ok || strings.IndexByte(out, '.') >= 0 {
		return "", false
	}
	return out, true
}

// FormatFloat renders f without exponent and with the shortest exact digits.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
