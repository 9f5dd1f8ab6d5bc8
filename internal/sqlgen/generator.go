// Package sqlgen renders table definitions and rows as PostgreSQL DDL and
// batched INSERT statements.
//
// Rendering is pure text production: the same table and rows always produce
// byte-identical output. Nothing here touches files or databases; callers
// decide where the text goes (see ScriptWriter for streaming to an
// io.Writer).
package sqlgen

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"sqlconv/internal/inference"
	"sqlconv/internal/schema"
)

// DefaultBatchSize is the number of rows per INSERT when none is configured.
const DefaultBatchSize = 500

// TimestampLayout is the literal format used for TIMESTAMP values.
const TimestampLayout = "2006-01-02 15:04:05"

// Config controls rendering.
type Config struct {
	// BatchSize is the default rows per INSERT. <= 0 means DefaultBatchSize.
	BatchSize int `yaml:"batch_size" env:"SQLCONV_BATCH_SIZE" env-default:"500"`

	// Schema qualifies table names ("<schema>.<table>") when set.
	Schema string `yaml:"schema" env:"SQLCONV_SCHEMA"`

	// ColumnComments adds COMMENT ON COLUMN statements carrying the original
	// source names after each CREATE TABLE.
	ColumnComments bool `yaml:"column_comments" env:"SQLCONV_COLUMN_COMMENTS" env-default:"false"`
}

// Generator renders statements. It is immutable and safe for concurrent use.
type Generator struct {
	cfg    Config
	engine *inference.Engine
}

// New returns a generator. engine supplies the boolean tokens and timestamp
// layouts used to canonicalize values; nil uses the default configuration.
func New(cfg Config, engine *inference.Engine) *Generator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	if engine == nil {
		engine = inference.New(inference.DefaultConfig())
	}
	return &Generator{cfg: cfg, engine: engine}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// QualifiedName returns the table reference used in statements.
func (g *Generator) QualifiedName(t *schema.Table) string {
	if g.cfg.Schema == "" {
		return Ident(t.Name)
	}
	return Ident(g.cfg.Schema) + "." + Ident(t.Name)
}

// RenderCreateTable renders one CREATE TABLE IF NOT EXISTS statement, one
// column per line, each preceded by a comment with the original source name.
//
//	CREATE TABLE IF NOT EXISTS public.pedidos (
//	    -- original name: Nº Pedido
//	    n_pedido INTEGER NOT NULL,
//	    -- original name: Valor
//	    valor NUMERIC(2,1),
//	    PRIMARY KEY (n_pedido)
//	);
func (g *Generator) RenderCreateTable(t *schema.Table) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(g.QualifiedName(t))
	b.WriteString(" (\n")

	hasPK := len(t.PrimaryKey) > 0
	for i, c := range t.Columns {
		b.WriteString("    -- original name: ")
		b.WriteString(commentText(c.Original))
		b.WriteString("\n    ")
		b.WriteString(Ident(c.Name))
		b.WriteByte(' ')
		b.WriteString(c.Type.SQL())
		if !c.Type.Nullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(t.Columns)-1 || hasPK {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	if hasPK {
		b.WriteString("    PRIMARY KEY (")
		b.WriteString(identList(t.PrimaryKey))
		b.WriteString(")\n")
	}
	b.WriteString(");\n")
	return b.String()
}

// RenderColumnComments renders COMMENT ON COLUMN statements carrying the
// original names. It returns "" for a table without columns.
func (g *Generator) RenderColumnComments(t *schema.Table) string {
	var b strings.Builder
	table := g.QualifiedName(t)
	for _, c := range t.Columns {
		b.WriteString("COMMENT ON COLUMN ")
		b.WriteString(table)
		b.WriteByte('.')
		b.WriteString(Ident(c.Name))
		b.WriteString(" IS ")
		b.WriteString(quote(c.Original))
		b.WriteString(";\n")
	}
	return b.String()
}

// RenderInsertBatch partitions rows into batches of at most batchSize rows
// (<= 0 uses the configured default) and renders one multi-row INSERT per
// batch, preserving row order. Rows shorter than the column list are padded
// with NULL; extra values are ignored. No rows yields no statements.
func (g *Generator) RenderInsertBatch(t *schema.Table, rows [][]any, batchSize int) []string {
	if batchSize <= 0 {
		batchSize = g.cfg.BatchSize
	}
	if len(rows) == 0 || len(t.Columns) == 0 {
		return nil
	}
	out := make([]string, 0, (len(rows)+batchSize-1)/batchSize)
	prefix := g.insertPrefix(t)
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, g.renderInsert(prefix, t, rows[start:end]))
	}
	return out
}

func (g *Generator) insertPrefix(t *schema.Table) string {
	return "INSERT INTO " + g.QualifiedName(t) + " (" + identList(t.ColumnNames()) + ") VALUES\n"
}

func (g *Generator) renderInsert(prefix string, t *schema.Table, rows [][]any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for i, row := range rows {
		b.WriteString("    (")
		for j, c := range t.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			var v any
			if j < len(row) {
				v = row[j]
			}
			b.WriteString(g.Literal(c.Type, v))
		}
		if i < len(rows)-1 {
			b.WriteString("),\n")
		} else {
			b.WriteString(");\n")
		}
	}
	return b.String()
}

// Literal renders v as a SQL literal for a column of type typ.
//
// Values that do not fit a numeric or boolean column render as NULL; values
// that do not parse for a timestamp column are passed through as quoted
// text.
func (g *Generator) Literal(typ inference.Type, v any) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch typ.Kind {
	case inference.KindInteger, inference.KindBigInt, inference.KindNumeric:
		return numberLiteral(typ, v)
	case inference.KindBoolean:
		return g.boolLiteral(v)
	case inference.KindTimestamp:
		return g.timestampLiteral(v)
	default:
		return quote(textOf(v))
	}
}

func numberLiteral(typ inference.Type, v any) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case float32:
		s = floatText(float64(x))
	case float64:
		s = floatText(x)
	case bool:
		return "NULL"
	case time.Time:
		return "NULL"
	default:
		s = textOf(x)
	}
	if s == "" {
		return "NULL"
	}
	if typ.Kind == inference.KindNumeric {
		if out, ok := inference.CanonicalNumber(s); ok {
			return out
		}
		return "NULL"
	}
	if out, ok := inference.CanonicalInteger(s); ok {
		return out
	}
	return "NULL"
}

func floatText(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return inference.FormatFloat(f)
}

func (g *Generator) boolLiteral(v any) string {
	if b, ok := v.(bool); ok {
		return boolText(b)
	}
	if b, ok := g.engine.ParseBool(textOf(v)); ok {
		return boolText(b)
	}
	return "NULL"
}

func boolText(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (g *Generator) timestampLiteral(v any) string {
	if ts, ok := v.(time.Time); ok {
		return quote(ts.Format(TimestampLayout))
	}
	s := textOf(v)
	if ts, ok := g.engine.ParseTimestamp(s); ok {
		return quote(ts.Format(TimestampLayout))
	}
	return quote(s)
}

// textOf renders a value the way it is stored in a text column.
func textOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(TimestampLayout)
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflectInt(x), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflectUint(x), 10)
	case float32:
		return inference.FormatFloat(float64(x))
	case float64:
		return inference.FormatFloat(x)
	default:
		return fmtAny(x)
	}
}

// quote renders a string literal, doubling embedded single quotes. NUL bytes
// are dropped because PostgreSQL text cannot store them.
func quote(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// commentText keeps a line comment on one line.
func commentText(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

// Ident renders an identifier. Sanitized names are emitted bare unless they
// collide with a reserved word; anything else is double-quoted.
func Ident(name string) string {
	if isBareIdent(name) && !IsReserved(name) {
		return name
	}
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Ident(n)
	}
	return strings.Join(out, ", ")
}

func isBareIdent(s string) bool {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}
