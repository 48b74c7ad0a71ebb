package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/damlevels"
	"github.com/couchcryptid/dam-data-etl/internal/series"
)

// ErrNoEntities is returned when no configured dam matched the snapshot;
// existing artifacts are left in place.
var ErrNoEntities = errors.New("no configured dam matched the snapshot columns")

func (p *Pipeline) runDams(ctx context.Context, logger *slog.Logger) ([]output, error) {
	snap, err := p.source.DamLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch dam levels: %w", err)
	}
	logger.Info("dam levels fetched", "columns", len(snap.Columns), "rows", len(snap.Rows))

	result := damlevels.NormalizeAll(snap, p.entities, logger)
	p.metrics.EntitiesMissing.Add(float64(len(result.Missing)))
	p.metrics.ParseFailures.WithLabelValues("date").Add(float64(result.BadDates))
	if len(result.Results) == 0 {
		return nil, ErrNoEntities
	}

	outputs := make([]output, 0, len(series.Granularities))
	for _, g := range series.Granularities {
		name := artifact.DamLevelsName(g)
		path, err := p.writer.Write(name, damlevels.Document(result.Results, g))
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, output{name: name, path: path, key: name})
	}
	if o, ok := p.damOutlines(logger); ok {
		outputs = append(outputs, o)
	}

	logger.Info("dam levels normalized",
		"entities", len(result.Results),
		"missing", len(result.Missing),
		"rows", result.ParsedRows,
		"bad_dates", result.BadDates,
	)
	return outputs, nil
}

// damOutlines returns the enriched dam GeoJSON as an output when it exists.
// It is produced outside this service, so a missing file is not an error.
func (p *Pipeline) damOutlines(logger *slog.Logger) (output, bool) {
	if p.geoJSON == "" {
		return output{}, false
	}
	info, err := os.Stat(p.geoJSON)
	if err != nil || info.IsDir() {
		logger.Debug("dam outlines not found", "path", p.geoJSON)
		return output{}, false
	}
	name := filepath.Base(p.geoJSON)
	return output{name: name, path: p.geoJSON, key: artifact.OutlinesKey(name)}, true
}
