package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Pipeline names accepted by PIPELINES.
const (
	PipelineDams    = "dams"
	PipelineWeather = "weather"
	PipelineAlerts  = "alerts"
)

// Geocoder providers accepted by GEOCODER_PROVIDER.
const (
	GeocoderGoogle = "google"
	GeocoderMapbox = "mapbox"
	GeocoderNone   = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration

	OutputDir string
	AlertsDir string
	Pipelines []string

	// Enriched dam outlines, published with the dam levels when present.
	GeoJSONPath string

	// SCHEDULE_CRON switches from run-once to scheduled mode.
	ScheduleCron string

	DamLevelsURL      string
	UnplannedAlertURL string
	PlannedAlertURL   string
	WeatherURL        string
	WeatherLat        float64
	WeatherLon        float64
	WeatherStart      time.Time
	FetchTimeout      time.Duration

	GeocoderProvider string
	GoogleMapsAPIKey string
	MapboxToken      string
	GeocodeTimeout   time.Duration
	GeocodePacing    time.Duration
	GeocodeCacheSize int

	// Redis geocode cache; disabled when RedisAddr is empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Blob sink; disabled when BlobEndpoint is empty.
	BlobEndpoint  string
	BlobBucket    string
	BlobAccessKey string
	BlobSecretKey string
	BlobRegion    string
	BlobPrefix    string
	BlobSecure    bool
	BlobPublicURL string

	// Artifact events; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,

		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "data/output"),
		AlertsDir:    sharedcfg.EnvOrDefault("ALERTS_DIR", "data/service_alerts"),
		GeoJSONPath:  sharedcfg.EnvOrDefault("GEOJSON_PATH", "data/output/Bulk_Water_Dams_Enriched.geojson"),
		ScheduleCron: os.Getenv("SCHEDULE_CRON"),

		DamLevelsURL:      sharedcfg.EnvOrDefault("DAM_LEVELS_URL", "https://www.arcgis.com/sharing/rest/content/items/96a8ba830f7d46cf81cdc9169c5eef08/data"),
		UnplannedAlertURL: sharedcfg.EnvOrDefault("ALERTS_UNPLANNED_URL", "https://service-alerts.cct-datascience.xyz/coct-service_alerts-current-unplanned.json"),
		PlannedAlertURL:   sharedcfg.EnvOrDefault("ALERTS_PLANNED_URL", "https://service-alerts.cct-datascience.xyz/coct-service_alerts-current-planned.json"),
		WeatherURL:        sharedcfg.EnvOrDefault("WEATHER_URL", "https://archive-api.open-meteo.com/v1/archive"),

		GeocoderProvider: strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER_PROVIDER", GeocoderGoogle)),
		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		MapboxToken:      os.Getenv("MAPBOX_TOKEN"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		BlobEndpoint:  os.Getenv("BLOB_ENDPOINT"),
		BlobBucket:    sharedcfg.EnvOrDefault("BLOB_BUCKET", "cape-town-water"),
		BlobAccessKey: os.Getenv("BLOB_ACCESS_KEY"),
		BlobSecretKey: os.Getenv("BLOB_SECRET_KEY"),
		BlobRegion:    sharedcfg.EnvOrDefault("BLOB_REGION", "us-east-1"),
		BlobPrefix:    sharedcfg.EnvOrDefault("BLOB_PREFIX", "timeseries/"),
		BlobPublicURL: os.Getenv("BLOB_PUBLIC_URL"),

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "dam-etl-artifacts"),
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(v)
	}

	if cfg.Pipelines, err = parsePipelines(sharedcfg.EnvOrDefault("PIPELINES", "dams,weather,alerts")); err != nil {
		return nil, err
	}
	if cfg.WeatherLat, err = parseFloat("WEATHER_LAT", "-33.9258", -90, 90); err != nil {
		return nil, err
	}
	if cfg.WeatherLon, err = parseFloat("WEATHER_LON", "18.4232", -180, 180); err != nil {
		return nil, err
	}
	if cfg.WeatherStart, err = time.Parse(time.DateOnly, sharedcfg.EnvOrDefault("WEATHER_START", "2000-01-01")); err != nil {
		return nil, errors.New("invalid WEATHER_START: want YYYY-MM-DD")
	}
	if cfg.FetchTimeout, err = parsePositiveDuration("FETCH_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.GeocodeTimeout, err = parsePositiveDuration("GEOCODE_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.GeocodePacing, err = parseDuration("GEOCODE_PACING", "100ms"); err != nil {
		return nil, err
	}
	if cfg.GeocodeCacheSize, err = parsePositiveInt("GEOCODE_CACHE_SIZE", "1000"); err != nil {
		return nil, err
	}
	if cfg.RedisTTL, err = parsePositiveDuration("REDIS_TTL", "720h"); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseNonNegativeInt("REDIS_DB", "0"); err != nil {
		return nil, err
	}
	if cfg.BlobSecure, err = parseBool("BLOB_SECURE", "true"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.GeocoderProvider {
	case GeocoderGoogle:
		if c.GoogleMapsAPIKey == "" {
			c.GeocoderProvider = GeocoderNone
		}
	case GeocoderMapbox:
		if c.MapboxToken == "" {
			return errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	case GeocoderNone:
	default:
		return fmt.Errorf("invalid GEOCODER_PROVIDER %q: want google, mapbox or none", c.GeocoderProvider)
	}
	if c.BlobEndpoint != "" && (c.BlobAccessKey == "" || c.BlobSecretKey == "") {
		return errors.New("BLOB_ENDPOINT is set but BLOB_ACCESS_KEY or BLOB_SECRET_KEY is not")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.AlertsDir == "" {
		return errors.New("ALERTS_DIR is required")
	}
	return nil
}

// Enabled reports whether the named pipeline is selected.
func (c *Config) Enabled(pipeline string) bool {
	for _, p := range c.Pipelines {
		if p == pipeline {
			return true
		}
	}
	return false
}

func parsePipelines(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(s, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		switch p {
		case PipelineDams, PipelineWeather, PipelineAlerts:
		default:
			return nil, fmt.Errorf("invalid PIPELINES entry %q: want dams, weather or alerts", p)
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errors.New("PIPELINES selects no pipeline")
	}
	return out, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseNonNegativeInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseFloat(key, def string, lo, hi float64) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s: must be between %g and %g", key, lo, hi)
	}
	return f, nil
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, def))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
