// Package reports serves report definition files from the data directory.
package reports

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// DirName is the name of the report directory inside the data directory.
const DirName = "rdl_files"

// Ext is the report file extension.
const Ext = ".rdl"

// ErrNotFound is returned when a report does not exist or the name is not a
// plain file name.
var ErrNotFound = errors.New("report not found")

// indexPrefix matches the "12 - " ordering prefix used in report listings.
var indexPrefix = regexp.MustCompile(`^\d+\s*-\s*`)

// Normalize maps a requested name to the report file name: the ordering
// prefix is stripped and the extension is added when missing.
func Normalize(name string) string {
	name = indexPrefix.ReplaceAllString(name, "")
	if !strings.HasSuffix(strings.ToLower(name), Ext) {
		name += Ext
	}
	return name
}

// Dir is a directory of report files.
type Dir struct {
	path string
}

// NewDir returns the report directory at path.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Open opens the report name after normalizing it.
//
// Names that would resolve outside the directory are refused.
func (d *Dir) Open(name string) (*os.File, string, error) {
	n := Normalize(name)
	if n == Ext || strings.ContainsAny(n, `/\`) || strings.HasPrefix(n, "..") {
		return nil, "", ErrNotFound
	}
	root, err := os.OpenRoot(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open report directory: %w", err)
	}
	defer func() { _ = root.Close() }()
	f, err := root.Open(n)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open report: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("failed to stat report: %w", err)
	}
	if !fi.Mode().IsRegular() {
		_ = f.Close()
		return nil, "", ErrNotFound
	}
	return f, n, nil
}
