// Package schema builds ordered table definitions from sanitized names and
// inferred column types.
//
// Building happens in two steps so that tables can be inferred in parallel:
//
//   - Infer is pure per table. It sanitizes column names against a table-local
//     name set and infers each column's type.
//   - Register assigns the run-unique table name. It mutates the run-scoped
//     name set and must be called in source order.
//
// Build performs both steps for callers that work sequentially.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"sqlconv/internal/identifier"
	"sqlconv/internal/inference"
)

// MaxTableSuffix bounds the numeric suffixes tried when a table name is
// already taken in the run.
const MaxTableSuffix = 9999

// ErrSchemaIntegrity is matched by every *IntegrityError.
var ErrSchemaIntegrity = errors.New("schema integrity")

// IntegrityError reports an invalid primary key reference or an exhausted
// table name.
type IntegrityError struct {
	Table  string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("schema integrity: table %q: %s", e.Table, e.Reason)
}

func (e *IntegrityError) Unwrap() error { return ErrSchemaIntegrity }

// Column is one column definition. Ordinal is 1-based and follows input order.
type Column struct {
	Name     string         `json:"name" yaml:"name"`
	Original string         `json:"original" yaml:"original"`
	Type     inference.Type `json:"type" yaml:"type"`
	Ordinal  int            `json:"ordinal" yaml:"ordinal"`
}

// Table is one table definition.
type Table struct {
	// Name is the run-unique identifier; empty until Register.
	Name string `json:"name" yaml:"name"`

	// Base is the sanitized source name before prefixing and suffixing.
	Base string `json:"base" yaml:"base"`

	// Original is the raw source name (file stem, sheet, table).
	Original string `json:"original" yaml:"original"`

	// Prefix is the sanitized source prefix, if any.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	Columns    []Column `json:"columns" yaml:"columns"`
	PrimaryKey []string `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
}

// Column returns the column with the given sanitized name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns sanitized names in ordinal order.
func (t *Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnSample is the input for one column: its raw name and observed values.
type ColumnSample struct {
	Name   string
	Values []any
}

// Builder combines the sanitizer and the inference engine. Infer may be
// called concurrently; Register and Build may not.
type Builder struct {
	engine *inference.Engine
	tables *identifier.NameSet
}

// NewBuilder returns a builder. tables is the run-scoped name set; nil
// starts an empty one.
func NewBuilder(engine *inference.Engine, tables *identifier.NameSet) *Builder {
	if engine == nil {
		engine = inference.New(inference.DefaultConfig())
	}
	if tables == nil {
		tables = identifier.NewNameSet()
	}
	return &Builder{engine: engine, tables: tables}
}

// Engine returns the builder's inference engine.
func (b *Builder) Engine() *inference.Engine { return b.engine }

// Tables returns the run-scoped name set.
func (b *Builder) Tables() *identifier.NameSet { return b.tables }

// Build infers a table definition and registers its name.
//
// Errors:
//   - *IntegrityError when the table name cannot be made unique.
func (b *Builder) Build(tableName string, samples []ColumnSample, sourcePrefix string) (*Table, error) {
	t := b.Infer(tableName, samples)
	if err := b.Register(t, sourcePrefix); err != nil {
		return nil, err
	}
	return t, nil
}

// Infer sanitizes column names (unique within the table) and infers column
// types. The returned table has no Name yet.
func (b *Builder) Infer(tableName string, samples []ColumnSample) *Table {
	names := make([]string, len(samples))
	cols := make([]*inference.Column, len(samples))
	for i, s := range samples {
		names[i] = s.Name
		cols[i] = b.engine.NewColumn()
		for _, v := range s.Values {
			cols[i].Observe(v)
		}
	}
	return b.InferColumns(tableName, names, cols)
}

// InferColumns is Infer for callers that fold rows into accumulators while
// streaming. names and cols are parallel; a nil accumulator yields nullable
// TEXT.
func (b *Builder) InferColumns(tableName string, names []string, cols []*inference.Column) *Table {
	set := identifier.NewNameSet()
	t := &Table{
		Base:     identifier.Normalize(tableName, identifier.KindTable),
		Original: tableName,
		Columns:  make([]Column, 0, len(names)),
	}
	for i, raw := range names {
		name := identifier.Sanitize(raw, set, identifier.KindColumn)
		set.Add(name)

		typ := b.engine.Infer(nil)
		if i < len(cols) && cols[i] != nil {
			typ = cols[i].Type()
		}
		t.Columns = append(t.Columns, Column{
			Name:     name,
			Original: raw,
			Type:     typ,
			Ordinal:  i + 1,
		})
	}
	return t
}

// Register resolves the run-unique table name. A non-empty sourcePrefix is
// sanitized and joined as "<prefix>_<base>" before uniqueness resolution.
func (b *Builder) Register(t *Table, sourcePrefix string) error {
	base := t.Base
	if base == "" {
		base = identifier.Normalize(t.Original, identifier.KindTable)
	}
	if p := strings.TrimSpace(sourcePrefix); p != "" {
		t.Prefix = identifier.Normalize(p, identifier.KindTable)
		base = identifier.Normalize(t.Prefix+"_"+base, identifier.KindTable)
	}

	name, ok := identifier.ResolveBounded(base, b.tables, MaxTableSuffix)
	if !ok {
		return &IntegrityError{Table: base, Reason: fmt.Sprintf("no free name after %d suffixes", MaxTableSuffix)}
	}
	b.tables.Add(name)
	t.Name = name
	return nil
}

// SetPrimaryKey designates the primary key. Each reference may be a
// sanitized column name or a raw source name; the stored key always uses
// sanitized names in the given order.
//
// Errors:
//   - *IntegrityError for an unknown or repeated column reference.
func SetPrimaryKey(t *Table, refs ...string) error {
	if len(refs) == 0 {
		t.PrimaryKey = nil
		return nil
	}
	key := make([]string, 0, len(refs))
	used := identifier.NewNameSet()
	for _, ref := range refs {
		name, ok := resolveColumnRef(t, ref)
		if !ok {
			return &IntegrityError{Table: tableLabel(t), Reason: fmt.Sprintf("primary key references unknown column %q", ref)}
		}
		if !used.Add(name) {
			return &IntegrityError{Table: tableLabel(t), Reason: fmt.Sprintf("primary key lists column %q twice", name)}
		}
		key = append(key, name)
	}
	t.PrimaryKey = key
	return nil
}

func resolveColumnRef(t *Table, ref string) (string, bool) {
	if c, ok := t.Column(ref); ok {
		return c.Name, true
	}
	for _, c := range t.Columns {
		if c.Original == ref {
			return c.Name, true
		}
	}
	return "", false
}

func tableLabel(t *Table) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Original
}
