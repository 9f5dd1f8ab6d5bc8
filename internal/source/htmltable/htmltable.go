// Package htmltable extracts <table> elements from HTML documents as
// source tables.
package htmltable

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sqlconv/internal/dialect"
	"sqlconv/internal/source"
)

// maxColspan caps colspan expansion for malformed markup.
const maxColspan = 64

func init() {
	source.Register("htmltable", NewTables)
}

// Extracted is one parsed table.
type Extracted struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// NewTables parses the document at cfg.Path once and offers every matched
// table.
//
// Options:
//
//	selector  CSS selector for tables (default "table")
//	encoding  document encoding when it is not UTF-8 (e.g. latin1)
func NewTables(_ context.Context, cfg source.Config) ([]source.Table, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("htmltable: missing path")
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if enc := dialect.LookupEncoding(cfg.Options.String("encoding", "")); enc != nil {
		r = enc.NewDecoder().Reader(f)
	}

	base := filepath.Base(cfg.Path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	found, err := Extract(r, cfg.Options.String("selector", "table"), stem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", base, err)
	}

	out := make([]source.Table, 0, len(found))
	for i, t := range found {
		out = append(out, source.Table{
			Name:   t.Name,
			Prefix: cfg.Prefix,
			Origin: cfg.FileOrigin() + " [table " + strconv.Itoa(i+1) + "]",
			Open: func(context.Context) (source.RowReader, error) {
				return source.NewSliceReader(t.Columns, t.Rows), nil
			},
		})
	}
	return out, nil
}

// Extract parses an HTML document and returns the tables matched by
// selector, in document order.
//
// The first row of each table is its header. Rows of nested tables belong
// to the nested table only. Cell text is whitespace-collapsed; a cell with
// colspan=n fills n columns. Tables without rows are skipped.
//
// Naming: a table's <caption>, else its id attribute, else defaultName when
// the document has a single table, else "<defaultName>_<n>".
func Extract(r io.Reader, selector, defaultName string) ([]Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	matched := doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "table"
	})

	var out []Extracted
	total := matched.Length()
	matched.Each(func(i int, tbl *goquery.Selection) {
		grid := tableRows(tbl)
		if len(grid) == 0 || len(grid[0]) == 0 {
			return
		}
		ex := Extracted{
			Name:    tableName(tbl, defaultName, i, total),
			Columns: grid[0],
		}
		for _, cells := range grid[1:] {
			row := make([]any, len(ex.Columns))
			for j := range row {
				if j < len(cells) && cells[j] != "" {
					row[j] = cells[j]
				}
			}
			ex.Rows = append(ex.Rows, row)
		}
		out = append(out, ex)
	})
	return out, nil
}

func tableRows(tbl *goquery.Selection) [][]string {
	var grid [][]string
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(tbl) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, td *goquery.Selection) {
			text := strings.Join(strings.Fields(td.Text()), " ")
			span := 1
			if v, ok := td.Attr("colspan"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
					span = min(n, maxColspan)
				}
			}
			for k := 0; k < span; k++ {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			grid = append(grid, cells)
		}
	})
	return grid
}

func tableName(tbl *goquery.Selection, defaultName string, i, total int) string {
	if c := strings.TrimSpace(tbl.ChildrenFiltered("caption").First().Text()); c != "" {
		return c
	}
	if id, ok := tbl.Attr("id"); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	if total == 1 {
		return defaultName
	}
	return defaultName + "_" + strconv.Itoa(i+1)
}
