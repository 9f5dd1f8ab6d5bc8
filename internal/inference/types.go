package inference

import "fmt"

// Kind is the closed set of column types the engine can infer.
type Kind int

const (
	KindText Kind = iota
	KindVarchar
	KindTimestamp
	KindBoolean
	KindNumeric
	KindBigInt
	KindInteger
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindBigInt:
		return "bigint"
	case KindNumeric:
		return "numeric"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindVarchar:
		return "varchar"
	default:
		return "text"
	}
}

// MaxNumericPrecision is the widest declared NUMERIC PostgreSQL accepts.
// Wider samples get an unconstrained NUMERIC.
const MaxNumericPrecision = 1000

// Type is an inferred column type plus nullability. It is a plain value:
// re-running inference produces a new Type, never a mutated one.
type Type struct {
	Kind Kind

	// Length is set for KindVarchar.
	Length int

	// Precision and Scale are set for KindNumeric. Precision 0 means an
	// unconstrained NUMERIC.
	Precision int
	Scale     int

	Nullable bool
}

// SQL renders the type in PostgreSQL syntax, without nullability.
func (t Type) SQL() string {
	switch t.Kind {
	case KindInteger:
		return "INTEGER"
	case KindBigInt:
		return "BIGINT"
	case KindNumeric:
		if t.Precision == 0 {
			return "NUMERIC"
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	case KindBoolean:
		return "BOOLEAN"
	case KindTimestamp:
		return "TIMESTAMP"
	case KindVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	default:
		return "TEXT"
	}
}

// IsNumber reports whether values of this type render as unquoted numbers.
func (t Type) IsNumber() bool {
	return t.Kind == KindInteger || t.Kind == KindBigInt || t.Kind == KindNumeric
}

func (t Type) String() string {
	if t.Nullable {
		return t.SQL() + " NULL"
	}
	return t.SQL() + " NOT NULL"
}
