// Package artifact writes the JSON files the pipelines publish.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/jsonvalue"
	"github.com/couchcryptid/dam-data-etl/internal/series"
)

// DamLevelsName is the file name of the dam levels artifact at granularity g.
func DamLevelsName(g series.Granularity) string {
	return fmt.Sprintf("dam_levels_%s.json", g)
}

// RainfallName is the file name of the Cape Town weather artifact at granularity g.
func RainfallName(g series.Granularity) string {
	return fmt.Sprintf("cape_town_rainfall_%s.json", g)
}

// AlertsKey is the stable blob key under which the latest alert batch for c is published.
func AlertsKey(c domain.Category) string {
	return fmt.Sprintf("service_alerts_%s.json", c)
}

// OutlinesKey is the blob key for a dam outline file. It lives outside the
// time series prefix.
func OutlinesKey(name string) string {
	return "shapefiles/" + name
}

// Writer writes artifacts into a single directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Write stores v as name inside the output directory and returns its path.
func (w *Writer) Write(name string, v jsonvalue.Value) (string, error) {
	path := filepath.Join(w.dir, name)
	if err := WriteFile(path, v); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile sanitizes v, encodes it with two-space indentation and replaces
// path atomically. On failure any previous file at path is left untouched.
func WriteFile(path string, v jsonvalue.Value) error {
	data, err := jsonvalue.MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", base, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", base, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", base, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", base, err)
	}
	return nil
}
