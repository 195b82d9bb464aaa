// Package storage owns the persisted master workbook and its in-memory view.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/maruel/rdlindex/internal/storage/git"
	"github.com/maruel/rdlindex/internal/workbook"
)

const (
	// MasterFile is the name of the master workbook in the data directory.
	MasterFile = "rdlfiles.xlsx"
	// UploadsDir is the staging directory for uploads.
	UploadsDir = "uploads"
)

// ErrNotFound is returned when the master workbook does not exist yet.
var ErrNotFound = errors.New("dataset not found")

// Store owns the master workbook and the View derived from it.
//
// fileMu serializes merges and reloads against each other and against raw
// file readers. viewMu only guards the view pointer, so searches never wait
// on disk I/O.
type Store struct {
	dataDir string
	path    string
	history *git.Repo
	log     *IngestionLog

	fileMu   sync.RWMutex
	modTime  time.Time // of the file the current view was built from
	fileSize int64

	viewMu sync.RWMutex
	view   *View
}

// IngestMeta describes who submitted an upload.
type IngestMeta struct {
	User     string
	Filename string
	Country  string
}

// IngestResult describes a completed ingestion.
type IngestResult struct {
	Bootstrap    bool
	RowsAppended int
	TotalRows    int
}

// NewStore creates a store for the master workbook in dataDir.
//
// history and log are optional. The view starts empty; call Refresh to load
// it.
func NewStore(dataDir string, history *git.Repo, log *IngestionLog) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, UploadsDir), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &Store{
		dataDir: dataDir,
		path:    filepath.Join(dataDir, MasterFile),
		history: history,
		log:     log,
		view:    &View{Columns: []string{}, Rows: [][]any{}},
	}, nil
}

// Path returns the path of the master workbook.
func (s *Store) Path() string {
	return s.path
}

// Load reads the master workbook and derives a View from it.
//
// A missing workbook yields an empty View.
func (s *Store) Load() (*View, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return NewView(nil), nil
	}
	sheet, err := workbook.Parse(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", s.path, err)
	}
	return NewView(sheet), nil
}

// View returns the current view. It is safe for concurrent use; the
// returned View must not be modified.
func (s *Store) View() *View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

// Refresh rebuilds the view from the master workbook on disk.
func (s *Store) Refresh(ctx context.Context) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Store) refreshLocked(ctx context.Context) error {
	var mod time.Time
	var size int64
	if fi, err := os.Stat(s.path); err == nil {
		mod, size = fi.ModTime(), fi.Size()
	}
	v, err := s.Load()
	if err != nil {
		return err
	}
	s.viewMu.Lock()
	s.view = v
	s.viewMu.Unlock()
	s.modTime, s.fileSize = mod, size
	slog.InfoContext(ctx, "Dataset loaded", "rows", v.Len(), "columns", len(v.Columns))
	return nil
}

// refreshIfChanged reloads the view when the master file differs from the
// one the view was built from.
func (s *Store) refreshIfChanged(ctx context.Context) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	var mod time.Time
	var size int64
	if fi, err := os.Stat(s.path); err == nil {
		mod, size = fi.ModTime(), fi.Size()
	}
	if mod.Equal(s.modTime) && size == s.fileSize {
		return nil
	}
	return s.refreshLocked(ctx)
}

// Open opens the raw master workbook for reading.
func (s *Store) Open() (*os.File, error) {
	s.fileMu.RLock()
	defer s.fileMu.RUnlock()
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// IngestUpload stages an uploaded file, parses it and merges it.
//
// The staged copy is removed before returning, whatever the outcome.
func (s *Store) IngestUpload(ctx context.Context, r io.Reader, meta IngestMeta) (*IngestResult, error) {
	if !workbook.AllowedExtension(meta.Filename) {
		return nil, fmt.Errorf("%w: %s", workbook.ErrUnsupported, meta.Filename)
	}
	staged, err := s.stage(meta.Filename, r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(staged); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "Failed to remove staged upload", "path", staged, "err", err)
		}
	}()
	sheet, err := workbook.Parse(staged)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, sheet, meta)
}

// stage copies r into the uploads directory under a unique name.
func (s *Store) stage(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	p := filepath.Join(s.dataDir, UploadsDir, ksid.NewID().String()+"-"+base)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // G304: name is reduced to its base
	if err != nil {
		return "", fmt.Errorf("%w: failed to stage upload: %w", workbook.ErrIO, err)
	}
	_, err = io.Copy(f, r)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(p)
		return "", fmt.Errorf("%w: failed to stage upload: %w", workbook.ErrIO, err)
	}
	return p, nil
}

// Ingest merges sheet into the master workbook and reloads the view.
//
// The whole read-modify-write-reload sequence runs under the store's
// exclusive lock. History and ingestion log failures are logged and do not
// fail the ingestion since the merge is already persisted.
func (s *Store) Ingest(ctx context.Context, sheet *workbook.Sheet, meta IngestMeta) (*IngestResult, error) {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	res, err := workbook.Merge(sheet, s.path)
	if err != nil {
		return nil, err
	}
	if err := s.refreshLocked(ctx); err != nil {
		return nil, fmt.Errorf("%w: reload after merge: %w", workbook.ErrIO, err)
	}
	out := &IngestResult{Bootstrap: res.Bootstrap, RowsAppended: res.RowsAppended, TotalRows: s.View().Len()}
	slog.InfoContext(ctx, "Merged upload", "file", meta.Filename, "user", meta.User, "rows", res.RowsAppended, "bootstrap", res.Bootstrap)

	if s.history != nil {
		msg := fmt.Sprintf("merge %s (+%d rows)", meta.Filename, res.RowsAppended)
		if err := s.history.Commit(ctx, git.Author{Name: meta.User}, msg, MasterFile); err != nil {
			slog.ErrorContext(ctx, "Failed to commit dataset history", "err", err)
		}
	}
	if s.log != nil {
		rec := &Ingestion{
			ID:           ksid.NewID(),
			Time:         time.Now().UTC(),
			User:         meta.User,
			Filename:     meta.Filename,
			RowsAppended: res.RowsAppended,
			Bootstrap:    res.Bootstrap,
			Country:      meta.Country,
		}
		if err := s.log.Append(rec); err != nil {
			slog.ErrorContext(ctx, "Failed to append ingestion log", "err", err)
		}
	}
	return out, nil
}
