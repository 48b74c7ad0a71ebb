package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/artifact"
	"github.com/couchcryptid/dam-data-etl/internal/damlevels"
	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/observability"
	"github.com/couchcryptid/dam-data-etl/internal/series"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Pipeline names.
const (
	Dams    = "dams"
	Weather = "weather"
	Alerts  = "alerts"
)

// ErrRunInProgress is returned by RunAll when another run has not finished.
var ErrRunInProgress = errors.New("a run is already in progress")

// Names lists every pipeline in run order.
var Names = []string{Dams, Weather, Alerts}

// Source fetches the upstream datasets.
type Source interface {
	DamLevels(ctx context.Context) (*damlevels.Snapshot, error)
	Weather(ctx context.Context) (series.Table, error)
	Alerts(ctx context.Context, category domain.Category) (domain.Batch, int, error)
}

// SnapshotStore persists the merged alert batch per category.
type SnapshotStore interface {
	Latest(category domain.Category) (domain.Batch, string, error)
	Save(category domain.Category, batch domain.Batch) (string, error)
}

// Merger reconciles a fetched alert batch with the persisted one.
type Merger interface {
	Merge(ctx context.Context, persisted, incoming domain.Batch) (domain.Batch, domain.MergeStats, error)
}

// Publisher uploads a finished artifact and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}

// Notifier announces published artifacts.
type Notifier interface {
	Notify(ctx context.Context, events []domain.ArtifactEvent) error
}

// Options wires a Pipeline. Publisher and Notifier are optional.
type Options struct {
	Source    Source
	Writer    *artifact.Writer
	Store     SnapshotStore
	Merger    Merger
	Publisher Publisher
	Notifier  Notifier
	Entities  []damlevels.Entity
	Pipelines []string // defaults to Names
	Clock     clockwork.Clock

	// GeoJSONPath is published alongside the dam levels when the file exists.
	GeoJSONPath string
}

// Pipeline runs the dam, weather and alert ETLs.
type Pipeline struct {
	source    Source
	writer    *artifact.Writer
	store     SnapshotStore
	merger    Merger
	publisher Publisher
	notifier  Notifier
	entities  []damlevels.Entity
	pipelines []string
	geoJSON   string
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	running   sync.Mutex
}

// New creates a Pipeline from opts.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	pipelines := opts.Pipelines
	if len(pipelines) == 0 {
		pipelines = Names
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	entities := opts.Entities
	if entities == nil {
		entities = damlevels.DefaultEntities
	}
	return &Pipeline{
		source:    opts.Source,
		writer:    opts.Writer,
		store:     opts.Store,
		merger:    opts.Merger,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		entities:  entities,
		pipelines: pipelines,
		geoJSON:   opts.GeoJSONPath,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once any pipeline has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no pipeline has completed successfully yet")
	}
	return nil
}

// RunAll runs every selected pipeline in order under a fresh run ID. A
// failing pipeline does not stop the others; their errors are joined. Runs
// never overlap.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if !p.running.TryLock() {
		return ErrRunInProgress
	}
	defer p.running.Unlock()

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := p.clock.Now()
	logger.Info("run started", "pipelines", p.pipelines)

	var errs []error
	for _, name := range p.pipelines {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := p.run(ctx, runID, name, logger.With("pipeline", name)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	err := errors.Join(errs...)
	logger.Info("run finished", "duration", p.clock.Since(start), "failed", len(errs))
	return err
}

// Run runs a single pipeline by name.
func (p *Pipeline) Run(ctx context.Context, name string) error {
	runID := uuid.NewString()
	return p.run(ctx, runID, name, p.logger.With("run_id", runID, "pipeline", name))
}

// output is an artifact written by a pipeline, with its publication key.
type output struct {
	name string
	path string
	key  string
}

func (p *Pipeline) run(ctx context.Context, runID, name string, logger *slog.Logger) error {
	var step func(context.Context, *slog.Logger) ([]output, error)
	switch name {
	case Dams:
		step = p.runDams
	case Weather:
		step = p.runWeather
	case Alerts:
		step = p.runAlerts
	default:
		return fmt.Errorf("unknown pipeline %q", name)
	}

	start := p.clock.Now()
	outputs, err := step(ctx, logger)
	p.metrics.Artifacts.WithLabelValues(name).Add(float64(len(outputs)))
	if pubErr := p.publish(ctx, runID, name, outputs, logger); pubErr != nil {
		err = errors.Join(err, pubErr)
	}
	p.metrics.RunDuration.WithLabelValues(name).Observe(p.clock.Since(start).Seconds())

	if err != nil {
		p.metrics.Runs.WithLabelValues(name, "error").Inc()
		logger.Error("pipeline failed", "error", err, "artifacts", len(outputs))
		return err
	}
	p.metrics.Runs.WithLabelValues(name, "success").Inc()
	p.ready.Store(true)
	logger.Info("pipeline succeeded", "artifacts", len(outputs), "duration", p.clock.Since(start))
	return nil
}

// publish uploads each output when a publisher is configured, then
// announces them. Upload failures are returned; notification failures are
// only logged.
func (p *Pipeline) publish(ctx context.Context, runID, pipeline string, outputs []output, logger *slog.Logger) error {
	if len(outputs) == 0 {
		return nil
	}

	var errs []error
	events := make([]domain.ArtifactEvent, 0, len(outputs))
	for _, o := range outputs {
		event := domain.ArtifactEvent{
			RunID:    runID,
			Pipeline: pipeline,
			Name:     o.key,
			Path:     o.path,
		}
		if p.publisher != nil {
			url, err := p.publisher.Publish(ctx, o.path, o.key)
			if err != nil {
				errs = append(errs, fmt.Errorf("publish %s: %w", o.key, err))
				continue
			}
			event.URL = url
		}
		event.PublishedAt = p.clock.Now().UTC()
		events = append(events, event)
	}

	if p.notifier != nil && len(events) > 0 {
		if err := p.notifier.Notify(ctx, events); err != nil {
			logger.Warn("artifact notification failed", "error", err, "events", len(events))
		}
	}
	return errors.Join(errs...)
}
