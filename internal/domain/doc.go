// Package domain models City of Cape Town service alerts and the merge that
// carries them across runs.
//
// # Data Source
//
// Alerts come from the City's open data feeds, one JSON array per category:
//
//	unplanned: coct-service_alerts-current-unplanned.json
//	planned:   coct-service_alerts-current-planned.json
//
// Each element is an object with an integer "Id" assigned upstream in
// creation order, plus descriptive fields ("location", "area", "service_area",
// "title", "description", "status", start and forecast timestamps). Only
// "Id", "location", "area" and "coordinates" are interpreted here; every
// other member is carried through untouched and in its original order.
//
// # Merge
//
// A feed only lists alerts that are current, so each run overlays the fresh
// batch on the last persisted batch by Id and the newer record wins. See
// [AlertMerger.Merge].
//
// # Coordinates
//
// Every persisted alert carries a "coordinates" member of the form
// {"lat": <number|null>, "lng": <number|null>}. An alert that already has
// one is never sent to the geocoder again. When the upstream record is
// replaced by a newer copy that omits coordinates but names the same
// location and area, the previous coordinates are carried forward.
package domain
