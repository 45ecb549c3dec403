package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	BackendURL     string
	BackendTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Geocoding configuration.
	NominatimURL       string
	NominatimUserAgent string
	GeocodeTimeout     time.Duration
	GeocodeCacheSize   int
	GeocodeOnDrag      bool

	IPGeoURL     string
	IPGeoTimeout time.Duration

	// Local state: generated user id and nearby-places cache.
	StatePath      string
	NearbyCacheTTL time.Duration

	// Submitted report events.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaReportTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	backendTimeout, err := parseDuration("BACKEND_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parseDuration("GEOCODE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	ipgeoTimeout, err := parseDuration("IPGEO_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	nearbyTTL, err := parseDuration("NEARBY_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BackendURL:     sharedcfg.EnvOrDefault("BACKEND_URL", "https://lyre-4m8l.onrender.com"),
		BackendTimeout: backendTimeout,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NominatimURL:       sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "nexahealth-reporter/1.0"),
		GeocodeTimeout:     geocodeTimeout,
		GeocodeCacheSize:   parsePositiveInt("GEOCODE_CACHE_SIZE", 1000),
		GeocodeOnDrag:      os.Getenv("GEOCODE_ON_DRAG") != "false",

		IPGeoURL:     sharedcfg.EnvOrDefault("IPGEO_URL", "https://ipapi.co/json/"),
		IPGeoTimeout: ipgeoTimeout,

		StatePath:      sharedcfg.EnvOrDefault("STATE_PATH", "nexahealth.db"),
		NearbyCacheTTL: nearbyTTL,

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportTopic: sharedcfg.EnvOrDefault("KAFKA_REPORT_TOPIC", "submitted-reports"),
	}

	if _, err := url.ParseRequestURI(cfg.BackendURL); err != nil {
		return nil, fmt.Errorf("invalid BACKEND_URL: %w", err)
	}
	if _, err := url.ParseRequestURI(cfg.NominatimURL); err != nil {
		return nil, fmt.Errorf("invalid NOMINATIM_URL: %w", err)
	}
	if cfg.StatePath == "" {
		return nil, errors.New("STATE_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaReportTopic == "" {
			return nil, errors.New("KAFKA_REPORT_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
