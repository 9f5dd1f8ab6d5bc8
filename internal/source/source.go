// Package source defines the row-source contract consumed by the converter
// and a registry of format adapters.
//
// Adapters live in sub-packages (csv, xlsx, dbf, htmltable, sqldb) and
// register themselves from init(); import them for side effects:
//
//	import _ "sqlconv/internal/source/csv"
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// RowReader yields the rows of one table.
//
// Columns returns the raw header names in source order. Next returns one row
// per call, aligned to Columns, and io.EOF once exhausted. Row values are nil
// (null), string, int64, float64, bool, time.Time or []byte.
type RowReader interface {
	Columns() []string
	Next() ([]any, error)
	Close() error
}

// Table is one logical table offered by a source.
//
// Open may be called more than once: the converter reads a table once to
// infer types and again to render inserts.
type Table struct {
	// Name is the raw (unsanitized) table name.
	Name string

	// Prefix is the raw source prefix (e.g. a sub-folder name); empty for none.
	Prefix string

	// Origin describes where the rows come from; it is written into script
	// headers and summaries.
	Origin string

	// PrimaryKey holds raw or sanitized column names, in key order.
	PrimaryKey []string

	Open func(ctx context.Context) (RowReader, error)
}

// Config selects and parameterizes a source adapter.
type Config struct {
	Kind   string
	Path   string
	Prefix string

	// DSN, Schema and Tables apply to database sources.
	DSN    string
	Schema string
	Tables []string

	Options Options
}

// FileOrigin is the origin label of a file source: its base name, under the
// prefix folder when there is one ("vendas/itens.csv").
func (c Config) FileOrigin() string {
	base := filepath.Base(c.Path)
	if c.Prefix == "" {
		return base
	}
	return c.Prefix + "/" + base
}

// Factory lists the tables of one configured source.
type Factory func(ctx context.Context, cfg Config) ([]Table, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes an adapter available under kind.
//
// When to use:
//   - Call Register from an init() function in an adapter package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("source: Register called with empty kind")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("source: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open resolves cfg.Kind and returns the tables the source offers.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) ([]Table, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("source: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source kind=%s", cfg.Kind)
	}
	tables, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s source %s: %w", cfg.Kind, cfg.Path, err)
	}
	for i := range tables {
		if tables[i].Prefix == "" {
			tables[i].Prefix = cfg.Prefix
		}
	}
	return tables, nil
}

// Kinds returns the registered adapter kinds in lexical order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registered reports whether kind has an adapter.
func Registered(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[kind]
	return ok
}
