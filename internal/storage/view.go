// Builds the read-only snapshot of the master workbook used by searches.

package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maruel/rdlindex/internal/workbook"
)

// View is an immutable snapshot of the master workbook.
//
// Columns come from the first row of the sheet. Every Rows entry has exactly
// len(Columns) cells; a cell is nil, a whitespace-trimmed non-empty string,
// int64, float64, bool or time.Time.
type View struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of data rows.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Rows)
}

// NewView derives a View from the rows of a sheet.
//
// An empty or missing header cell at index i is named "Unnamed: i"; a header
// repeated n times gets the suffixes ".1" to ".n-1".
func NewView(s *workbook.Sheet) *View {
	if s == nil || len(s.Rows) == 0 {
		return &View{Columns: []string{}, Rows: [][]any{}}
	}
	n := s.NumCols()
	v := &View{Columns: columnNames(s.Rows[0], n), Rows: make([][]any, 0, len(s.Rows)-1)}
	for _, src := range s.Rows[1:] {
		row := make([]any, n)
		for i, c := range src {
			row[i] = normalize(c)
		}
		v.Rows = append(v.Rows, row)
	}
	return v
}

func columnNames(header []any, n int) []string {
	names := make([]string, n)
	seen := make(map[string]int, n)
	for i := range n {
		name := ""
		if i < len(header) && header[i] != nil {
			name = CellString(header[i])
		}
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if c, ok := seen[name]; ok {
			base := name
			for {
				c++
				name = fmt.Sprintf("%s.%d", base, c)
				if _, dup := seen[name]; !dup {
					break
				}
			}
			seen[base] = c
		}
		seen[name] = 0
		names[i] = name
	}
	return names
}

// normalize trims text cells; empty text becomes nil.
func normalize(c any) any {
	s, ok := c.(string)
	if !ok {
		return c
	}
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}

// CellString returns the textual representation of a cell value. Dates and
// times are rendered as "2006-01-02 15:04:05".
func CellString(c any) string {
	switch t := c.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(time.DateTime)
	default:
		return fmt.Sprint(t)
	}
}
