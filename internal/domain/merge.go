package domain

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// MergeStats summarizes one merge.
type MergeStats struct {
	Persisted int
	Incoming  int
	Merged    int
	Carried   int // coordinates carried forward from a replaced record
	Geo       map[GeoOutcome]int
}

// AlertMerger reconciles a freshly fetched batch with the last persisted one.
type AlertMerger struct {
	geocoder Geocoder
	pacing   time.Duration
	logger   *slog.Logger
}

// NewAlertMerger creates a merger. A nil geocoder leaves new alerts with
// null coordinates. Pacing is the delay between consecutive geocoder calls.
func NewAlertMerger(geocoder Geocoder, pacing time.Duration, logger *slog.Logger) *AlertMerger {
	return &AlertMerger{geocoder: geocoder, pacing: pacing, logger: logger}
}

// Merge overlays incoming on persisted by Id, with incoming winning, then
// attaches coordinates to every alert that lacks them and sorts by Id
// descending. An empty incoming batch returns persisted unchanged.
//
// Geocoder calls are issued one at a time with the configured pacing. The
// only error is context cancellation while waiting between calls.
func (m *AlertMerger) Merge(ctx context.Context, persisted, incoming Batch) (Batch, MergeStats, error) {
	stats := MergeStats{
		Persisted: len(persisted),
		Incoming:  len(incoming),
		Geo:       make(map[GeoOutcome]int),
	}
	if len(incoming) == 0 {
		out := make(Batch, len(persisted))
		copy(out, persisted)
		stats.Merged = len(out)
		return out, stats, nil
	}

	byID := make(map[int64]Alert, len(persisted)+len(incoming))
	for _, a := range persisted {
		byID[a.ID()] = a
	}
	for _, a := range incoming {
		if prev, ok := byID[a.ID()]; ok {
			if carried, ok := carryCoordinates(prev, a); ok {
				a = carried
				stats.Carried++
			}
		}
		byID[a.ID()] = a
	}

	merged := make(Batch, 0, len(byID))
	for _, a := range byID {
		merged = append(merged, a)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID() > merged[j].ID() })

	called := false
	for i, a := range merged {
		if m.needsGeocode(a) && called {
			if err := m.wait(ctx); err != nil {
				return nil, stats, err
			}
		}
		enriched, outcome := EnrichWithCoordinates(ctx, a, m.geocoder, m.logger)
		merged[i] = enriched
		stats.Geo[outcome]++
		if outcome.Called() {
			called = true
		}
	}

	stats.Merged = len(merged)
	return merged, stats, nil
}

// carryCoordinates copies coordinates from the replaced record when the
// replacement has none and names the same place.
func carryCoordinates(prev, next Alert) (Alert, bool) {
	if next.HasCoordinates() || !prev.HasCoordinates() {
		return next, false
	}
	if prev.Location() != next.Location() || prev.Area() != next.Area() {
		return next, false
	}
	coords, _ := prev.obj.Get(FieldCoordinates)
	return Alert{id: next.id, obj: next.obj.With(FieldCoordinates, coords)}, true
}

func (m *AlertMerger) needsGeocode(a Alert) bool {
	return m.geocoder != nil && !a.HasCoordinates() && a.Location() != "" && a.Area() != ""
}

func (m *AlertMerger) wait(ctx context.Context) error {
	if m.pacing <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(m.pacing):
		return nil
	}
}
