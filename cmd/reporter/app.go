package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/ipgeo"
	kafkaadapter "github.com/couchcryptid/nexahealth-reporter/internal/adapter/kafka"
	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/nominatim"
	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/store"
	"github.com/couchcryptid/nexahealth-reporter/internal/companion"
	"github.com/couchcryptid/nexahealth-reporter/internal/config"
	"github.com/couchcryptid/nexahealth-reporter/internal/nearby"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
	"github.com/couchcryptid/nexahealth-reporter/internal/session"
)

// app holds the wired adapters and services shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	backend   *backend.Client
	geocoder  *nominatim.CachedGeocoder
	coarse    *ipgeo.Client
	store     *store.Store
	publisher *kafkaadapter.Publisher // nil when KAFKA_ENABLED is false

	nearby    *nearby.Service
	companion *companion.Service
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	st, err := store.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	api := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, metrics, logger)
	geoClient := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.GeocodeTimeout, metrics, logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		backend:   api,
		geocoder:  nominatim.NewCachedGeocoder(geoClient, cfg.GeocodeCacheSize, metrics),
		coarse:    ipgeo.NewClient(cfg.IPGeoURL, cfg.IPGeoTimeout, logger),
		store:     st,
		nearby:    nearby.NewService(api, st, clock, cfg.NearbyCacheTTL, metrics, logger),
		companion: companion.NewService(api, st, logger),
	}
	logger.Info("reverse geocoding enabled", "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.GeocodeTimeout)

	if cfg.KafkaEnabled {
		a.publisher = kafkaadapter.NewPublisher(cfg, logger)
		logger.Info("report events enabled", "topic", cfg.KafkaReportTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("report events disabled")
	}
	return a, nil
}

func (a *app) sessionOptions() session.Options {
	opts := session.DefaultOptions()
	opts.GeocodeOnDrag = a.cfg.GeocodeOnDrag
	return opts
}

func (a *app) sessionDeps() session.Deps {
	deps := session.Deps{
		Geocoder:  a.geocoder,
		Coarse:    a.coarse,
		Submitter: a.backend,
		Clock:     a.clock,
		Metrics:   a.metrics,
		Logger:    a.logger,
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	}
	return deps
}

// checkReadiness reports ready once the state store and the backend answer.
func (a *app) checkReadiness(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	return a.backend.CheckReadiness(ctx)
}

func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka publisher close: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("state store close: %w", err))
	}
	return errors.Join(errs...)
}
