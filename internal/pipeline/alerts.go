package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
)

// runAlerts merges each category independently. A category that fails to
// fetch or load keeps its previous snapshot and does not stop the others.
func (p *Pipeline) runAlerts(ctx context.Context, logger *slog.Logger) ([]output, error) {
	var (
		outputs []output
		errs    []error
	)
	for _, c := range domain.Categories {
		o, err := p.mergeCategory(ctx, c, logger.With("category", c))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s alerts: %w", c, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		outputs = append(outputs, o)
	}
	return outputs, errors.Join(errs...)
}

func (p *Pipeline) mergeCategory(ctx context.Context, c domain.Category, logger *slog.Logger) (output, error) {
	incoming, skipped, err := p.source.Alerts(ctx, c)
	if err != nil {
		return output{}, fmt.Errorf("fetch: %w", err)
	}
	p.metrics.ParseFailures.WithLabelValues("alert").Add(float64(skipped))

	persisted, prev, err := p.store.Latest(c)
	if err != nil {
		return output{}, fmt.Errorf("load snapshot: %w", err)
	}

	prevName := "none"
	if prev != "" {
		prevName = filepath.Base(prev)
	}

	merged, stats, err := p.merger.Merge(ctx, persisted, incoming)
	if err != nil {
		return output{}, fmt.Errorf("merge: %w", err)
	}

	path, err := p.store.Save(c, merged)
	if path == "" {
		return output{}, err
	}
	if err != nil {
		logger.Warn("old snapshots not fully removed", "error", err)
	}

	p.metrics.AlertsMerged.WithLabelValues(string(c)).Set(float64(len(merged)))
	for outcome, n := range stats.Geo {
		logger.Debug("geocode outcome", "outcome", outcome, "count", n)
	}
	logger.Info("alerts merged",
		"previous", prevName,
		"persisted", stats.Persisted,
		"incoming", stats.Incoming,
		"skipped", skipped,
		"merged", stats.Merged,
		"carried", stats.Carried,
		"geocoded", stats.Geo[domain.GeoResolved],
		"snapshot", filepath.Base(path),
	)
	return output{name: filepath.Base(path), path: path, key: artifact.AlertsKey(c)}, nil
}
