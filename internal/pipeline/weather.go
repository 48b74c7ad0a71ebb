package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/series"
)

// ErrNoObservations is returned when the weather source yields no rows.
var ErrNoObservations = errors.New("weather source returned no observations")

func (p *Pipeline) runWeather(ctx context.Context, logger *slog.Logger) ([]output, error) {
	table, err := p.source.Weather(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	if len(table.Rows) == 0 {
		return nil, ErrNoObservations
	}

	outputs := make([]output, 0, len(series.Granularities))
	for _, g := range series.Granularities {
		proj := series.Project(table, g)
		name := artifact.RainfallName(g)
		path, err := p.writer.Write(name, proj.JSON())
		if err != nil {
			return outputs, err
		}
		outputs = append(outputs, output{name: name, path: path, key: name})
		logger.Debug("weather projection written", "granularity", g, "points", len(proj.Points))
	}

	logger.Info("weather normalized", "days", len(table.Rows))
	return outputs, nil
}
