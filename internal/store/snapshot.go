// Package store persists the merged alert batch for each category on disk.
//
// Exactly one snapshot per category is retained. A save writes the new
// batch under a timestamped name and only then removes older snapshots, so
// a failed save leaves the previous snapshot in place for the next run.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/jonboulle/clockwork"
)

// TimestampLayout formats snapshot file timestamps. Names sort chronologically.
const TimestampLayout = "2006-01-02_15-04-05"

// FileStore keeps alert snapshots in a directory.
type FileStore struct {
	dir    string
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewFileStore creates dir if needed. A nil clock uses real time.
func NewFileStore(dir string, clock clockwork.Clock, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alerts dir %s: %w", dir, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileStore{dir: dir, clock: clock, logger: logger}, nil
}

// SnapshotName returns the file name for a snapshot of c taken at t.
func SnapshotName(c domain.Category, t time.Time) string {
	return fmt.Sprintf("service_alerts_%s_%s.json", c, t.UTC().Format(TimestampLayout))
}

// Files lists the snapshot files for c, oldest first.
func (s *FileStore) Files(c domain.Category) ([]string, error) {
	prefix := fmt.Sprintf("service_alerts_%s_", c)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		if _, err := time.Parse(TimestampLayout, stamp); err != nil {
			continue
		}
		files = append(files, filepath.Join(s.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Latest loads the most recent snapshot for c. With no snapshot on disk it
// returns an empty batch and an empty path. A snapshot that cannot be parsed
// is an error and is left on disk.
func (s *FileStore) Latest(c domain.Category) (domain.Batch, string, error) {
	files, err := s.Files(c)
	if err != nil {
		return nil, "", err
	}
	if len(files) == 0 {
		return domain.Batch{}, "", nil
	}
	path := files[len(files)-1]

	f, err := os.Open(path)
	if err != nil {
		return nil, path, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	doc, err := jsonvalue.Decode(f)
	if err != nil {
		return nil, path, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}
	batch, skipped, err := domain.DecodeBatch(doc)
	if err != nil {
		return nil, path, fmt.Errorf("snapshot %s: %w", filepath.Base(path), err)
	}
	for _, e := range skipped {
		s.logger.Warn("skipping persisted alert", "category", c, "file", filepath.Base(path), "error", e)
	}
	return batch, path, nil
}

// Save writes batch as the new snapshot for c and removes every other
// snapshot for c. It returns the path written. Removal failures are
// returned after the new snapshot is in place.
func (s *FileStore) Save(c domain.Category, batch domain.Batch) (string, error) {
	path := filepath.Join(s.dir, SnapshotName(c, s.clock.Now()))
	if err := artifact.WriteFile(path, batch.JSON()); err != nil {
		return "", fmt.Errorf("save %s snapshot: %w", c, err)
	}

	files, err := s.Files(c)
	if err != nil {
		return path, err
	}
	var errs []error
	for _, f := range files {
		if f == path {
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove old snapshot: %w", err))
			continue
		}
		s.logger.Debug("removed old snapshot", "category", c, "file", filepath.Base(f))
	}
	return path, errors.Join(errs...)
}
