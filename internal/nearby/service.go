// Package nearby looks up pharmacies and clinics around a position, caching
// responses locally so a flaky connection can still show the last results.
package nearby

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/backend"
	"github.com/couchcryptid/nexahealth-reporter/internal/adapter/store"
	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

// Per-call deadlines by device class.
const (
	MobileTimeout  = 25 * time.Second
	DesktopTimeout = 15 * time.Second
)

// DefaultTTL is how long a cached response is served without a network call.
const DefaultTTL = 5 * time.Minute

// API is the backend call the service wraps.
type API interface {
	GetNearby(ctx context.Context, pos domain.Position, device backend.Device) ([]backend.Place, error)
}

// Cache persists raw responses by key.
type Cache interface {
	Get(ctx context.Context, key string) (store.Entry, bool, error)
	Put(ctx context.Context, key string, data []byte, at time.Time) error
}

// Source tells where a result came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceStale   Source = "stale"
)

// Result is a ranked list of places.
type Result struct {
	Places   []backend.Place
	Source   Source
	StoredAt time.Time
	// Cause is the network error that forced a stale result.
	Cause error
}

// Service serves nearby lookups with a fresh-cache short-circuit and a
// stale-cache fallback.
type Service struct {
	api     API
	cache   Cache
	clock   clockwork.Clock
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewService creates a nearby lookup service. A zero ttl uses DefaultTTL.
func NewService(api API, cache Cache, clock clockwork.Clock, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{api: api, cache: cache, clock: clock, ttl: ttl, metrics: metrics, logger: logger}
}

// Key is the cache key for a position.
func Key(pos domain.Position) string {
	return fmt.Sprintf("nearby-%.4f-%.4f", pos.Lat, pos.Lon)
}

var mobileUA = regexp.MustCompile(`(?i)Mobi|Android`)

// DeviceFromUserAgent classifies a User-Agent header.
func DeviceFromUserAgent(ua string) backend.Device {
	if mobileUA.MatchString(ua) {
		return backend.DeviceMobile
	}
	return backend.DeviceDesktop
}

// Timeout returns the per-call deadline for a device class.
func Timeout(device backend.Device) time.Duration {
	if device == backend.DeviceMobile {
		return MobileTimeout
	}
	return DesktopTimeout
}

// Lookup returns places around pos ranked by distance.
func (s *Service) Lookup(ctx context.Context, pos domain.Position, device backend.Device) (Result, error) {
	key := Key(pos)

	cached, haveCached := s.readCache(ctx, key)
	if haveCached && s.clock.Since(cached.storedAt) < s.ttl {
		s.metrics.NearbyLookups.WithLabelValues(string(SourceCache)).Inc()
		return Result{Places: rank(pos, cached.places), Source: SourceCache, StoredAt: cached.storedAt}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, Timeout(device))
	defer cancel()

	places, err := s.api.GetNearby(callCtx, pos, device)
	if err != nil {
		if haveCached {
			s.logger.Warn("nearby lookup failed, serving cached results", "key", key, "error", err)
			s.metrics.NearbyLookups.WithLabelValues(string(SourceStale)).Inc()
			return Result{Places: rank(pos, cached.places), Source: SourceStale, StoredAt: cached.storedAt, Cause: err}, nil
		}
		return Result{}, fmt.Errorf("nearby lookup: %w", err)
	}

	now := s.clock.Now()
	if data, err := json.Marshal(places); err == nil {
		if err := s.cache.Put(ctx, key, data, now); err != nil {
			s.logger.Warn("failed to cache nearby results", "key", key, "error", err)
		}
	}
	s.metrics.NearbyLookups.WithLabelValues(string(SourceNetwork)).Inc()
	return Result{Places: rank(pos, places), Source: SourceNetwork, StoredAt: now}, nil
}

type cachedPlaces struct {
	places   []backend.Place
	storedAt time.Time
}

func (s *Service) readCache(ctx context.Context, key string) (cachedPlaces, bool) {
	e, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read nearby cache", "key", key, "error", err)
		return cachedPlaces{}, false
	}
	if !ok {
		return cachedPlaces{}, false
	}
	var places []backend.Place
	if err := json.Unmarshal(e.Data, &places); err != nil {
		s.logger.Warn("discarding corrupt nearby cache entry", "key", key, "error", err)
		return cachedPlaces{}, false
	}
	return cachedPlaces{places: places, storedAt: e.StoredAt}, true
}

// rank fills missing distances with the great-circle distance from origin and
// sorts nearest first. The input slice is not modified.
func rank(origin domain.Position, places []backend.Place) []backend.Place {
	from := orb.Point{origin.Lon, origin.Lat}
	out := make([]backend.Place, len(places))
	copy(out, places)
	for i := range out {
		if out[i].DistanceMeters == nil {
			d := geo.Distance(from, orb.Point{out[i].Location.Lng, out[i].Location.Lat})
			out[i].DistanceMeters = &d
		}
	}
	slices.SortStableFunc(out, func(a, b backend.Place) int {
		switch {
		case *a.DistanceMeters < *b.DistanceMeters:
			return -1
		case *a.DistanceMeters > *b.DistanceMeters:
			return 1
		default:
			return 0
		}
	})
	return out
}
