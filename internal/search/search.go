// Package search implements the case-insensitive substring scan over the
// dataset view.
package search

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/maruel/rdlindex/internal/storage"
)

// Row is one matching row keyed by column name, in column order. Empty cells
// are present with a nil value so they serialize as JSON null.
type Row = *orderedmap.OrderedMap[string, any]

// Search returns every row of v where at least one cell contains query,
// ignoring case and surrounding whitespace of the query.
//
// An empty query matches nothing. The result is never nil and keeps view
// order.
func Search(query string, v *storage.View) []Row {
	out := []Row{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || v == nil {
		return out
	}
	for _, row := range v.Rows {
		if matches(row, q) {
			out = append(out, toRow(v.Columns, row))
		}
	}
	return out
}

// matches reports whether any cell contains q. q must already be lower case.
func matches(row []any, q string) bool {
	for _, c := range row {
		if c == nil {
			continue
		}
		if strings.Contains(strings.ToLower(storage.CellString(c)), q) {
			return true
		}
	}
	return false
}

func toRow(columns []string, row []any) Row {
	m := orderedmap.New[string, any]()
	for i, name := range columns {
		var c any
		if i < len(row) {
			c = row[i]
		}
		m.Set(name, c)
	}
	return m
}
