package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/domain"
	"github.com/couchcryptid/dam-data-etl/internal/observability"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dam-etl:geocode:v1:"

// RedisGeocoder caches geocoder results in Redis so they survive across
// runs. Redis is best-effort: any Redis error is logged and the lookup
// falls through to the inner geocoder.
type RedisGeocoder struct {
	inner   domain.Geocoder
	client  redis.UniversalClient
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		PoolSize:     4,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisGeocoder wraps inner with a Redis cache. A zero ttl keeps entries forever.
func NewRedisGeocoder(inner domain.Geocoder, client redis.UniversalClient, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *RedisGeocoder {
	return &RedisGeocoder{inner: inner, client: client, ttl: ttl, metrics: metrics, logger: logger}
}

type cachedResult struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (r *RedisGeocoder) ForwardGeocode(ctx context.Context, location, area string) (domain.GeocodingResult, error) {
	key := redisKeyPrefix + cacheKey(location, area)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cr cachedResult
		if jsonErr := json.Unmarshal(raw, &cr); jsonErr == nil {
			r.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			return domain.GeocodingResult{Lat: cr.Lat, Lng: cr.Lng, FormattedAddress: cr.Address}, nil
		}
		r.logger.Warn("discarding malformed geocode cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("redis geocode lookup failed", "key", key, "error", err)
	}
	r.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()

	result, err := r.inner.ForwardGeocode(ctx, location, area)
	if err != nil || !result.Found() {
		return result, err
	}

	data, _ := json.Marshal(cachedResult{Lat: result.Lat, Lng: result.Lng, Address: result.FormattedAddress})
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Warn("redis geocode store failed", "key", key, "error", err)
	}
	return result, nil
}
