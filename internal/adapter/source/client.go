// Package source fetches the upstream datasets: the City's dam levels CSV,
// the service alert feeds and the Open-Meteo daily weather archive.
//
// Each upstream gets its own circuit breaker. Fetches are not retried; a
// failed fetch fails that dataset for the current run only.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/dam-data-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

// defaultMaxBody bounds a single upstream response.
const defaultMaxBody = 64 << 20

var (
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errTooLarge    = errors.New("response body too large")
)

// Config holds upstream locations.
type Config struct {
	DamLevelsURL      string
	UnplannedAlertURL string
	PlannedAlertURL   string
	WeatherURL        string
	Latitude          float64
	Longitude         float64
	WeatherStart      time.Time
	Timeout           time.Duration
}

// Client fetches raw upstream bytes over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
	mu         sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
	clock      clockwork.Clock
	maxBody    int64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a source client. A nil clock uses real time.
func NewClient(cfg Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		clock:      clock,
		maxBody:    defaultMaxBody,
		metrics:    metrics,
		logger:     logger,
	}
}

func (c *Client) breaker(source string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[source]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Interval:    time.Hour,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("source circuit breaker state change", "source", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[source] = cb
	return cb
}

// get fetches url and returns the full body.
func (c *Client) get(ctx context.Context, source, url string) ([]byte, error) {
	out, err := c.breaker(source).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", "dam-data-etl")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if n > c.maxBody {
			return nil, fmt.Errorf("%w: exceeds %d bytes", errTooLarge, c.maxBody)
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		c.metrics.Fetches.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	c.metrics.Fetches.WithLabelValues(source, "success").Inc()

	body, ok := out.([]byte)
	if !ok {
		return nil, fmt.Errorf("fetch %s: unexpected result type %T", source, out)
	}
	c.logger.Debug("fetched upstream", "source", source, "bytes", len(body))
	return body, nil
}
