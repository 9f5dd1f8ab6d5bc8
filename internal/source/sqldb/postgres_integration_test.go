//go:build integration

package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"sqlconv/internal/source"
)

// startPostgres runs a throwaway PostgreSQL container and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "legado",
			"POSTGRES_USER":     "sqlconv",
			"POSTGRES_PASSWORD": "sqlconv",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://sqlconv:sqlconv@%s:%s/legado?sslmode=disable", host, port.Port())
}

func TestNewTables_Postgres(t *testing.T) {
	dsn := startPostgres(t)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	for _, s := range []string{
		`CREATE SCHEMA vendas`,
		`CREATE TABLE vendas.pedido (numero INTEGER, filial TEXT, criado TIMESTAMP, PRIMARY KEY (filial, numero))`,
		`INSERT INTO vendas.pedido VALUES (10, 'SP', '2024-05-01 10:00:00'), (11, 'RJ', NULL)`,
		`CREATE TABLE vendas."Order" (id BIGINT)`,
	} {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}

	tables, err := source.Open(context.Background(), source.Config{Kind: "postgres", DSN: dsn, Schema: "vendas"})
	require.NoError(t, err)
	require.Len(t, tables, 2)

	assert.Equal(t, "Order", tables[0].Name)
	assert.Equal(t, "pedido", tables[1].Name)
	assert.Equal(t, []string{"filial", "numero"}, tables[1].PrimaryKey)
	assert.Equal(t, "postgres:vendas.pedido", tables[1].Origin)

	rr, err := tables[1].Open(context.Background())
	require.NoError(t, err)
	rows, err := source.Collect(rr)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0][0])
	assert.Equal(t, "SP", rows[0][1])
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), rows[0][2])
	assert.Nil(t, rows[1][2])
}
