// Appends an uploaded sheet onto the master workbook.

package workbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// defaultSheetName is used when bootstrapping from a sheet without a name.
const defaultSheetName = "Sheet1"

// MergeResult describes a completed merge.
type MergeResult struct {
	// Bootstrap is true when the master did not exist and was created from
	// the uploaded sheet.
	Bootstrap bool
	// FirstRow is the 1-based row index where the uploaded rows start.
	FirstRow int
	// RowsAppended is the number of rows copied from the uploaded sheet.
	RowsAppended int
}

// Merge appends every row of s to the active sheet of the workbook at
// masterPath and copies the column widths of s onto it.
//
// Rows are placed positionally by column index; header names are not
// matched. When masterPath does not exist, s becomes the master verbatim.
//
// The master is replaced wholesale through a temporary file and a rename, so
// a failed write leaves the previous master untouched.
func Merge(s *Sheet, masterPath string) (*MergeResult, error) {
	res := &MergeResult{FirstRow: 1}
	var f *excelize.File
	sheet := ""
	if _, err := os.Stat(masterPath); errors.Is(err, fs.ErrNotExist) {
		res.Bootstrap = true
		f = excelize.NewFile()
		sheet = defaultSheetName
		if s.Name != "" && s.Name != defaultSheetName {
			if err := f.SetSheetName(defaultSheetName, s.Name); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("%w: %w", ErrIO, err)
			}
			sheet = s.Name
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	} else {
		if f, err = excelize.OpenFile(masterPath); err != nil {
			return nil, fmt.Errorf("%w: failed to open master: %w", ErrIO, err)
		}
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
		rows, err := f.GetRows(sheet)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%w: failed to read master: %w", ErrIO, err)
		}
		res.FirstRow = len(rows) + 1
	}
	defer func() { _ = f.Close() }()

	if err := appendRows(f, sheet, res.FirstRow, s.Rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	res.RowsAppended = len(s.Rows)
	if err := copyWidths(f, sheet, s.Widths); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := save(f, masterPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return res, nil
}

func appendRows(f *excelize.File, sheet string, first int, rows [][]any) error {
	for i, row := range rows {
		for j, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, first+i)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyWidths overwrites the width of every column defined in widths.
func copyWidths(f *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		if w <= 0 {
			continue
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, min(w, maxColWidth)); err != nil {
			return err
		}
	}
	return nil
}

// save writes f next to path and renames it into place.
func save(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := f.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	tmpPath = ""
	return nil
}
