package geocache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/sony/gobreaker"
)

// BreakerGeocoder stops calling the provider after repeated failures, so a
// revoked key or exhausted quota does not cost one timeout per alert.
// While open, calls fail fast and alerts receive null coordinates.
type BreakerGeocoder struct {
	inner domain.Geocoder
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerGeocoder trips after maxFailures consecutive errors and probes
// again after cooldown.
func NewBreakerGeocoder(inner domain.Geocoder, name string, maxFailures uint32, cooldown time.Duration, logger *slog.Logger) *BreakerGeocoder {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("geocoder circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerGeocoder{inner: inner, cb: cb}
}

func (b *BreakerGeocoder) ForwardGeocode(ctx context.Context, location, area string) (domain.GeocodingResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ForwardGeocode(ctx, location, area)
	})
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("geocode %q: %w", location, err)
	}
	result, ok := out.(domain.GeocodingResult)
	if !ok {
		return domain.GeocodingResult{}, fmt.Errorf("unexpected result type %T from circuit breaker", out)
	}
	return result, nil
}

// State reports the breaker state, e.g. for readiness logging.
func (b *BreakerGeocoder) State() gobreaker.State { return b.cb.State() }
