// Reloads the view when the master workbook is edited outside the server.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events a spreadsheet editor produces
// when saving.
const watchDebounce = 250 * time.Millisecond

// Watch starts watching the data directory and refreshes the view when the
// master workbook changes on disk. It returns once the watcher is installed;
// watching stops when ctx is canceled.
//
// The directory is watched rather than the file because the master is
// replaced by rename on every write.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.dataDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dataDir, err)
	}
	go func() {
		defer func() { _ = w.Close() }()
		var timer *time.Timer
		var fire <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != MasterFile || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				if err := s.refreshIfChanged(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to reload dataset after external change", "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching data directory", "err", err)
			}
		}
	}()
	return nil
}
