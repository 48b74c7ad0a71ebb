package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
// A zero Lat and Lng means the provider found nothing.
type GeocodingResult struct {
	Lat              float64
	Lng              float64
	FormattedAddress string
}

// Found reports whether the result carries a coordinate pair.
func (r GeocodingResult) Found() bool {
	return r.Lat != 0 || r.Lng != 0
}

// Geocoder resolves alert locations to coordinates.
type Geocoder interface {
	// ForwardGeocode converts a street or suburb and its area to coordinates.
	ForwardGeocode(ctx context.Context, location, area string) (GeocodingResult, error)
}
