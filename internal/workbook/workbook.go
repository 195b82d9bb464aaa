// Package workbook parses uploaded spreadsheets and merges them into the
// master workbook.
//
// Only the active sheet of a workbook is considered. Rows are kept
// positionally: the first row of a sheet is ordinary data to this package,
// header interpretation is left to the caller.
package workbook

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupported is returned for files whose extension is not .xls or .xlsx.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrCorrupt is returned when a file cannot be parsed as a workbook.
	ErrCorrupt = errors.New("corrupt workbook")
	// ErrIO is returned when the master workbook cannot be read or written.
	ErrIO = errors.New("workbook i/o failure")
)

// maxColWidth is the largest column width accepted by the xlsx format.
const maxColWidth = 255

// Sheet is the content of one worksheet.
type Sheet struct {
	Name string
	// Rows holds cell values: nil, string, int64, float64, bool or
	// time.Time.
	Rows [][]any
	// Widths holds the display width of column i+1. Zero means the source
	// did not define one.
	Widths []float64
}

// NumCols returns the widest row length.
func (s *Sheet) NumCols() int {
	n := 0
	for _, r := range s.Rows {
		n = max(n, len(r))
	}
	return n
}

// AllowedExtension reports whether name has a spreadsheet extension.
func AllowedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xls":
		return true
	}
	return false
}

// Parse reads the active sheet of the workbook at path.
//
// The format is chosen by extension. Any parsing failure wraps ErrCorrupt.
func Parse(path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return parseXLSX(path)
	case ".xls":
		return parseXLS(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

func parseXLSX(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	defer func() { _ = f.Close() }()
	s, err := readSheet(f, f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

// readSheet extracts typed rows and column widths from one worksheet.
func readSheet(f *excelize.File, name string) (*Sheet, error) {
	raw, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, err
	}
	cr := &cellReader{
		f:        f,
		sheet:    name,
		date1904: props.Date1904 != nil && *props.Date1904,
		isDate:   map[int]bool{},
	}
	s := &Sheet{Name: name, Rows: make([][]any, len(raw))}
	for i, r := range raw {
		row := make([]any, len(r))
		for j, v := range r {
			if row[j], err = cr.value(j+1, i+1, v); err != nil {
				return nil, err
			}
		}
		s.Rows[i] = row
	}
	n := s.NumCols()
	s.Widths = make([]float64, n)
	for c := range n {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return nil, err
		}
		w, err := f.GetColWidth(name, col)
		if err != nil {
			return nil, err
		}
		s.Widths[c] = w
	}
	return s, nil
}

// isoLayouts are the ISO 8601 forms found in cells stored as dates.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z",
	"20060102T150405Z",
	"20060102T150405.999",
	time.DateOnly,
}

// cellReader types the cells of one worksheet from their stored type and
// number format.
type cellReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	isDate   map[int]bool // by style index
}

// value returns the typed value of the cell at (col, row) whose raw stored
// text is raw.
func (c *cellReader) value(col, row int, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, err
	}
	typ, err := c.f.GetCellType(c.sheet, cell)
	if err != nil {
		return nil, err
	}
	switch typ {
	case excelize.CellTypeBool:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		return raw, nil
	case excelize.CellTypeDate:
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, strings.ReplaceAll(raw, ",", ".")); err == nil {
				return t, nil
			}
		}
		return raw, nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		n, ok := parseNumber(raw)
		if !ok {
			return raw, nil
		}
		date, err := c.dateStyled(cell)
		if err != nil {
			return nil, err
		}
		if date {
			serial, _ := strconv.ParseFloat(raw, 64)
			if t, err := excelize.ExcelDateToTime(serial, c.date1904); err == nil {
				return t, nil
			}
		}
		return n, nil
	default:
		// Shared and inline strings, formula text results and errors.
		return raw, nil
	}
}

// dateStyled reports whether the number format of cell renders a date or a
// time.
func (c *cellReader) dateStyled(cell string) (bool, error) {
	idx, err := c.f.GetCellStyle(c.sheet, cell)
	if err != nil {
		return false, err
	}
	if d, ok := c.isDate[idx]; ok {
		return d, nil
	}
	d := false
	if idx != 0 {
		st, err := c.f.GetStyle(idx)
		if err != nil {
			return false, err
		}
		if st.CustomNumFmt != nil {
			d = isDateFormat(*st.CustomNumFmt)
		} else {
			d = isBuiltinDateFormat(st.NumFmt)
		}
	}
	c.isDate[idx] = d
	return d, nil
}

// isBuiltinDateFormat reports whether the built-in number format id is a
// date or time format.
func isBuiltinDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormat reports whether a custom number format code contains date or
// time tokens outside of literals and bracketed sections. Bracketed elapsed
// time such as [h] or [mm] counts as time.
func isDateFormat(code string) bool {
	if strings.EqualFold(code, "General") {
		return false
	}
	inQuote, escaped := false, false
	bracket := -1
	for i, r := range code {
		switch {
		case escaped:
			escaped = false
		case inQuote:
			inQuote = r != '"'
		case bracket >= 0:
			if r == ']' {
				if inner := code[bracket+1 : i]; inner != "" && strings.Trim(inner, "hHmMsS") == "" {
					return true
				}
				bracket = -1
			}
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = true
		case r == '[':
			bracket = i
		case strings.ContainsRune("yYmMdDhHsS", r):
			return true
		}
	}
	return false
}

func parseXLS(path string) (s *Sheet, err error) {
	// The legacy reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			s = nil
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()
	fh, err := os.Open(path) //nolint:gosec // G304: path is a staged upload owned by the server
	if err != nil {
		return nil, err
	}
	defer func() { _ = fh.Close() }()
	wb, err := xls.OpenReader(fh, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: no worksheet", ErrCorrupt)
	}
	ws := wb.GetSheet(0)
	if ws == nil {
		return nil, fmt.Errorf("%w: unreadable worksheet", ErrCorrupt)
	}
	s = &Sheet{Name: ws.Name}
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			s.Rows = append(s.Rows, nil)
			continue
		}
		cells := make([]any, row.LastCol())
		for j := range cells {
			v := row.Col(j)
			cells[j] = legacyCellValue(v)
		}
		s.Rows = append(s.Rows, cells)
	}
	for len(s.Rows) > 0 && isEmptyRow(s.Rows[len(s.Rows)-1]) {
		s.Rows = s.Rows[:len(s.Rows)-1]
	}
	// Column widths are not exposed by the legacy reader.
	s.Widths = make([]float64, s.NumCols())
	return s, nil
}

func isEmptyRow(r []any) bool {
	for _, v := range r {
		if v != nil {
			return false
		}
	}
	return true
}

// legacyCellValue types a cell of a legacy workbook from its rendered text.
//
// Only canonical decimal text becomes a number, so identifiers such as
// "007" or "+1" stay text.
func legacyCellValue(v string) any {
	if v == "" {
		return nil
	}
	digits := strings.TrimPrefix(v, "-")
	if strings.HasPrefix(v, "+") || len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return v
	}
	if n, ok := parseNumber(v); ok {
		return n
	}
	return v
}

func parseNumber(s string) (any, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}
