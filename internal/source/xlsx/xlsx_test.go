package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sqlconv/internal/source"
)

func writeWorkbook(t *testing.T, path string, sheets map[string][][]any, order []string) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestNewTables_MultipleSheets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Relatório.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Clientes": {{"Nome", "Idade"}, {"Ana", 30}, {"", ""}, {"Bia", nil}},
		"Vazia":    nil,
		"Pedidos":  {{"Nº", "Total"}, {1, 10.5}},
	}, []string{"Clientes", "Vazia", "Pedidos"})

	tables, err := source.Open(context.Background(), source.Config{Kind: "xlsx", Path: path})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Relatório_Clientes", tables[0].Name)
	assert.Equal(t, "Relatório_Pedidos", tables[1].Name)

	rr, err := tables[0].Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Nome", "Idade"}, rr.Columns())
	rows, err := source.Collect(rr)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"Ana", "30"}, {"Bia", nil}}, rows)

	rr, err = tables[1].Open(context.Background())
	require.NoError(t, err)
	rows, err = source.Collect(rr)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"1", "10.5"}}, rows)
}

func TestNewTables_SingleSheetUsesStem(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "produtos.xlsx")
	writeWorkbook(t, path, map[string][][]any{
		"Plan1": {{"codigo"}, {"A1"}},
	}, []string{"Plan1"})

	tables, err := NewTables(context.Background(), source.Config{Path: path, Prefix: "estoque"})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "produtos", tables[0].Name)
	assert.Equal(t, "estoque", tables[0].Prefix)
	assert.Equal(t, "produtos.xlsx [Plan1]", tables[0].Origin)
}

func TestNewTables_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewTables(context.Background(), source.Config{Path: filepath.Join(t.TempDir(), "nope.xlsx")})
	assert.Error(t, err)
}
