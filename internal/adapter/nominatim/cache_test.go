package nominatim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
	"github.com/couchcryptid/nexahealth-reporter/internal/observability"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	reverseCalls atomic.Int32
	searchCalls  atomic.Int32
	result       domain.GeocodeResult
	err          error
	delay        time.Duration
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _ domain.Position) (domain.GeocodeResult, error) {
	m.reverseCalls.Add(1)
	time.Sleep(m.delay)
	return m.result, m.err
}

func (m *countingGeocoder) Search(_ context.Context, _ string) (domain.Position, domain.GeocodeResult, error) {
	m.searchCalls.Add(1)
	return domain.Position{Lat: 6.6, Lon: 3.35}, m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodeResult{DisplayAddress: "Ikeja, Lagos"}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ReverseGeocode(context.Background(), lagos)
	require.NoError(t, err)
	r2, err := cached.ReverseGeocode(context.Background(), lagos)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, int32(1), inner.reverseCalls.Load(), "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")))
}

func TestCachedGeocoder_ElevenMetersApartIsHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodeResult{DisplayAddress: "Ikeja, Lagos"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), domain.Position{Lat: 6.52441, Lon: 3.37921})
	require.NoError(t, err)
	_, err = cached.ReverseGeocode(context.Background(), domain.Position{Lat: 6.52444, Lon: 3.37924})
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.reverseCalls.Load())
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodeResult{DisplayAddress: "Place"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), domain.Position{Lat: 6.5244, Lon: 3.3792})
	_, _ = cached.ReverseGeocode(context.Background(), domain.Position{Lat: 6.5254, Lon: 3.3792})

	assert.Equal(t, int32(2), inner.reverseCalls.Load())
}

// gatedGeocoder blocks every reverse lookup until release is closed and
// reports the context error it saw.
type gatedGeocoder struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedGeocoder) ReverseGeocode(ctx context.Context, _ domain.Position) (domain.GeocodeResult, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.release
	if err := ctx.Err(); err != nil {
		return domain.GeocodeResult{}, err
	}
	return domain.GeocodeResult{DisplayAddress: "Broad Street, Lagos Island, Lagos"}, nil
}

func (g *gatedGeocoder) Search(context.Context, string) (domain.Position, domain.GeocodeResult, error) {
	return domain.Position{}, domain.GeocodeResult{}, domain.ErrNoResults
}

func TestCachedGeocoder_CancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedGeocoder{started: make(chan struct{}), release: make(chan struct{})}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	ctx1, cancel1 := context.WithCancel(context.Background())
	err1 := make(chan error, 1)
	go func() {
		_, err := cached.ReverseGeocode(ctx1, lagos)
		err1 <- err
	}()
	<-inner.started

	type outcome struct {
		res domain.GeocodeResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := cached.ReverseGeocode(context.Background(), lagos)
		second <- outcome{res, err}
	}()

	cancel1()
	assert.ErrorIs(t, <-err1, context.Canceled, "the cancelled caller stops waiting")

	close(inner.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Broad Street, Lagos Island, Lagos", got.res.DisplayAddress)
	assert.Equal(t, int32(1), inner.calls.Load(), "one shared lookup")
	assert.Equal(t, 1, cached.Len())
}

func TestCachedGeocoder_ErrorsAndEmptyNotCached(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("boom")}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), lagos)
	require.Error(t, err)

	inner.err = nil
	_, err = cached.ReverseGeocode(context.Background(), lagos)
	require.NoError(t, err)
	_, _ = cached.ReverseGeocode(context.Background(), lagos)

	assert.Equal(t, int32(3), inner.reverseCalls.Load(), "empty results are retried")
	assert.Equal(t, 0, cached.Len())
}

func TestCachedGeocoder_ConcurrentMissesShareOneCall(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.GeocodeResult{DisplayAddress: "Ikeja, Lagos"},
		delay:  50 * time.Millisecond,
	}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.ReverseGeocode(context.Background(), lagos)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inner.reverseCalls.Load())
}

func TestCachedGeocoder_SearchNormalizesQuery(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodeResult{DisplayAddress: "Allen Avenue"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _, err := cached.Search(context.Background(), "Allen  Avenue, Ikeja")
	require.NoError(t, err)
	pos, _, err := cached.Search(context.Background(), " allen avenue, ikeja ")
	require.NoError(t, err)

	assert.Equal(t, 6.6, pos.Lat)
	assert.Equal(t, int32(1), inner.searchCalls.Load())
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result)
	assert.Equal(t, 2, c.size())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.get("a")
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result)
}
