package domain

import (
	"context"
	"log/slog"
)

// GeoOutcome records what EnrichWithCoordinates did with an alert.
type GeoOutcome string

const (
	GeoExisting GeoOutcome = "existing" // already had coordinates
	GeoNoInput  GeoOutcome = "no_input" // location or area missing
	GeoResolved GeoOutcome = "resolved"
	GeoNotFound GeoOutcome = "not_found"
	GeoFailed   GeoOutcome = "failed"
	GeoDisabled GeoOutcome = "disabled" // no geocoder configured
)

// Called reports whether the outcome involved a geocoder request.
func (o GeoOutcome) Called() bool {
	return o == GeoResolved || o == GeoNotFound || o == GeoFailed
}

// EnrichWithCoordinates attaches a "coordinates" member to an alert that
// lacks one. If the geocoder is nil, fails, or finds nothing, the alert gets
// null coordinates (graceful degradation). Alerts that already carry
// coordinates are returned unchanged and never reach the geocoder.
func EnrichWithCoordinates(ctx context.Context, alert Alert, geocoder Geocoder, logger *slog.Logger) (Alert, GeoOutcome) {
	if alert.HasCoordinates() {
		return alert, GeoExisting
	}

	location, area := alert.Location(), alert.Area()
	if location == "" || area == "" {
		return alert.WithCoordinates(Coordinates{}), GeoNoInput
	}
	if geocoder == nil {
		return alert.WithCoordinates(Coordinates{}), GeoDisabled
	}

	result, err := geocoder.ForwardGeocode(ctx, location, area)
	if err != nil {
		logger.Warn("forward geocoding failed",
			"alert_id", alert.ID(),
			"location", location,
			"area", area,
			"error", err,
		)
		return alert.WithCoordinates(Coordinates{}), GeoFailed
	}
	if !result.Found() {
		return alert.WithCoordinates(Coordinates{}), GeoNotFound
	}
	return alert.WithCoordinates(NewCoordinates(result.Lat, result.Lng)), GeoResolved
}
