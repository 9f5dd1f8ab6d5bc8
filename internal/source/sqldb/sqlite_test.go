package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlconv/internal/source"
)

func newSQLiteFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "legado.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE clientes (id INTEGER PRIMARY KEY, nome TEXT NOT NULL, saldo REAL, obs TEXT)`,
		`INSERT INTO clientes VALUES (1, 'Ana', 10.5, NULL), (2, 'Bia', NULL, 'vip')`,
		`CREATE TABLE "itens pedido" (pedido INTEGER, linha INTEGER, qtd INTEGER, PRIMARY KEY (pedido, linha))`,
		`INSERT INTO "itens pedido" VALUES (7, 1, 3)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

func TestNewTables_SQLite(t *testing.T) {
	t.Parallel()

	dsn := newSQLiteFixture(t)
	tables, err := source.Open(context.Background(), source.Config{Kind: "sqlite", DSN: dsn, Prefix: "legado"})
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "clientes", tables[0].Name)
	assert.Equal(t, []string{"id"}, tables[0].PrimaryKey)
	assert.Equal(t, "sqlite:clientes", tables[0].Origin)
	assert.Equal(t, "legado", tables[0].Prefix)
	assert.Equal(t, "itens pedido", tables[1].Name)
	assert.Equal(t, []string{"pedido", "linha"}, tables[1].PrimaryKey)

	rr, err := tables[0].Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "nome", "saldo", "obs"}, rr.Columns())
	rows, err := source.Collect(rr)
	require.NoError(t, err)
	assert.Equal(t, [][]any{
		{int64(1), "Ana", 10.5, nil},
		{int64(2), "Bia", nil, "vip"},
	}, rows)

	rr, err = tables[1].Open(context.Background())
	require.NoError(t, err)
	rows, err = source.Collect(rr)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(7), int64(1), int64(3)}}, rows)
}

func TestNewTables_SQLiteFilter(t *testing.T) {
	t.Parallel()

	dsn := newSQLiteFixture(t)
	tables, err := NewTables(context.Background(), source.Config{Kind: "sqlite", DSN: dsn, Tables: []string{"ITENS PEDIDO"}})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "itens pedido", tables[0].Name)

	_, err = NewTables(context.Background(), source.Config{Kind: "sqlite", DSN: dsn, Tables: []string{"nope"}})
	assert.Error(t, err)
}

func TestNewTables_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewTables(context.Background(), source.Config{Kind: "oracle", DSN: "x"})
	assert.Error(t, err)

	_, err = NewTables(context.Background(), source.Config{Kind: "sqlite"})
	assert.ErrorContains(t, err, "missing dsn")
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Equal(t, []byte{0xff, 0x00}, normalize([]byte{0xff, 0x00}))
	assert.Equal(t, int64(3), normalize(int32(3)))
	assert.Equal(t, float64(1.5), normalize(float32(1.5)))
	assert.Nil(t, normalize(nil))
}
