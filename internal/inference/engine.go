// Package inference derives the narrowest safe PostgreSQL column type from a
// sample of raw values.
//
// Rules are applied in a fixed priority order over the non-null values:
//
//  1. integers: INTEGER when every value fits 32 bits, BIGINT when some only
//     fit 64 bits
//  2. decimals: NUMERIC(p,s) sized from the widest integer and fraction parts
//  3. boolean tokens (configurable, case-insensitive)
//  4. timestamps (configurable Go layouts)
//  5. VARCHAR(maxLen) up to the configured threshold, TEXT beyond it
//
// Inference never fails. Mixed columns fall through to the string rule, and
// an all-null or empty sample yields nullable TEXT.
package inference

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	cfg     Config
	trues   map[string]struct{}
	falses  map[string]struct{}
	layouts []string
}

// New builds an engine from cfg, filling unset fields with defaults.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:     cfg,
		trues:   tokenSet(cfg.TrueTokens),
		falses:  tokenSet(cfg.FalseTokens),
		layouts: append([]string(nil), cfg.TimestampLayouts...),
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Infer returns the type for one column sample. Elements may be nil, string,
// integer types, float64, bool, time.Time or []byte; anything else is
// treated as its fmt.Sprint text.
func (e *Engine) Infer(sample []any) Type {
	c := e.NewColumn()
	for _, v := range sample {
		c.Observe(v)
	}
	return c.Type()
}

// ParseBool matches s against the configured tokens.
func (e *Engine) ParseBool(s string) (value bool, ok bool) {
	k := strings.ToLower(strings.TrimSpace(s))
	if _, hit := e.trues[k]; hit {
		return true, true
	}
	if _, hit := e.falses[k]; hit {
		return false, true
	}
	return false, false
}

// ParseTimestamp tries the configured layouts in order.
func (e *Engine) ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, lay := range e.layouts {
		if ts, err := time.Parse(lay, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Column folds values one at a time. Observing the same values in any
// number of Observe calls yields the same Type as Engine.Infer.
type Column struct {
	e *Engine

	seen  int
	nulls int

	allInt   bool
	allInt64 bool
	allInt32 bool
	allDec   bool
	allBool  bool
	allTS    bool

	intDigits  int
	fracDigits int
	maxLen     int
}

// NewColumn returns an empty accumulator bound to e.
func (e *Engine) NewColumn() *Column {
	return &Column{
		e:        e,
		allInt:   true,
		allInt64: true,
		allInt32: true,
		allDec:   true,
		allBool:  true,
		allTS:    true,
	}
}

// Observe folds one value into the column statistics.
func (c *Column) Observe(v any) {
	switch x := v.(type) {
	case nil:
		c.nulls++
	case string:
		c.observeString(x)
	case []byte:
		c.observeString(string(x))
	case bool:
		c.seen++
		c.allInt, c.allDec, c.allTS = false, false, false
		c.noteLen(5)
	case time.Time:
		c.seen++
		c.allInt, c.allDec, c.allBool = false, false, false
		c.noteLen(19)
	case int:
		c.observeInt(int64(x))
	case int8:
		c.observeInt(int64(x))
	case int16:
		c.observeInt(int64(x))
	case int32:
		c.observeInt(int64(x))
	case int64:
		c.observeInt(x)
	case uint8:
		c.observeInt(int64(x))
	case uint16:
		c.observeInt(int64(x))
	case uint32:
		c.observeInt(int64(x))
	case uint64:
		c.observeString(strconv.FormatUint(x, 10))
	case float32:
		c.observeFloat(float64(x))
	case float64:
		c.observeFloat(x)
	default:
		c.observeString(fmt.Sprint(x))
	}
}

// Type returns the inferred type for everything observed so far.
func (c *Column) Type() Type {
	if c.e.cfg.AllText {
		return Type{Kind: KindText, Nullable: true}
	}
	if c.seen == 0 {
		return Type{Kind: KindText, Nullable: true}
	}

	nullable := c.nulls > 0
	switch {
	case c.allInt && c.allInt32:
		return Type{Kind: KindInteger, Nullable: nullable}
	case c.allInt && c.allInt64:
		return Type{Kind: KindBigInt, Nullable: nullable}
	case c.allInt || c.allDec:
		p := c.intDigits + c.fracDigits
		if p < 1 {
			p = 1
		}
		if p > MaxNumericPrecision {
			return Type{Kind: KindNumeric, Nullable: nullable}
		}
		return Type{Kind: KindNumeric, Precision: p, Scale: c.fracDigits, Nullable: nullable}
	case c.allBool:
		return Type{Kind: KindBoolean, Nullable: nullable}
	case c.allTS:
		return Type{Kind: KindTimestamp, Nullable: nullable}
	case c.maxLen <= c.e.cfg.VarcharThreshold:
		return Type{Kind: KindVarchar, Length: c.maxLen, Nullable: nullable}
	default:
		return Type{Kind: KindText, Nullable: nullable}
	}
}

// Seen returns the number of non-null values observed.
func (c *Column) Seen() int { return c.seen }

func (c *Column) observeString(raw string) {
	s := strings.TrimSpace(raw)
	if s == "" {
		c.nulls++
		return
	}
	c.seen++
	c.noteLen(utf8.RuneCountInString(raw))

	if c.allInt || c.allDec {
		intPart, frac, isInt, ok := splitNumber(s)
		if !ok {
			c.allInt, c.allDec = false, false
		} else {
			if !isInt {
				c.allInt = false
			} else if c.allInt {
				if _, err := strconv.ParseInt(s, 10, 64); err != nil {
					c.allInt64, c.allInt32 = false, false
				} else if _, err := strconv.ParseInt(s, 10, 32); err != nil {
					c.allInt32 = false
				}
			}
			c.noteDigits(intPart, frac)
		}
	}
	if c.allBool {
		if _, ok := c.e.ParseBool(s); !ok {
			c.allBool = false
		}
	}
	if c.allTS {
		if _, ok := c.e.ParseTimestamp(s); !ok {
			c.allTS = false
		}
	}
}

func (c *Column) observeInt(v int64) {
	s := strconv.FormatInt(v, 10)
	c.seen++
	c.noteLen(len(s))
	c.allTS = false
	if c.allBool {
		if _, ok := c.e.ParseBool(s); !ok {
			c.allBool = false
		}
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		c.allInt32 = false
	}
	intPart, _, _, _ := splitNumber(s)
	c.noteDigits(intPart, "")
}

func (c *Column) observeFloat(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.observeString(strconv.FormatFloat(v, 'f', -1, 64))
		return
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	c.seen++
	c.noteLen(len(s))
	c.allInt, c.allBool, c.allTS = false, false, false
	intPart, frac, _, _ := splitNumber(s)
	c.noteDigits(intPart, frac)
}

func (c *Column) noteLen(n int) {
	if n > c.maxLen {
		c.maxLen = n
	}
}

func (c *Column) noteDigits(intPart, frac string) {
	if n := len(strings.TrimLeft(intPart, "0")); n > c.intDigits {
		c.intDigits = n
	}
	if len(frac) > c.fracDigits {
		c.fracDigits = len(frac)
	}
}

// splitNumber recognizes [+-]digits[.digits] (either side may be empty but
// not both). isInt is true when there is no decimal point.
func splitNumber(s string) (intPart, frac string, isInt, ok bool) {
	if s == "" {
		return "", "", false, false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		intPart = s
	} else {
		intPart, frac = s[:dot], s[dot+1:]
	}
	if intPart == "" && frac == "" {
		return "", "", false, false
	}
	if !allDigits(intPart) || !allDigits(frac) {
		return "", "", false, false
	}
	return intPart, frac, dot < 0 && intPart != "", true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func tokenSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out[t] = struct{}{}
		}
	}
	return out
}
