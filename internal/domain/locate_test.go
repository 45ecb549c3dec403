package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// scriptedSource returns the scripted error for each tier name, or fix when
// no error is scripted.
type scriptedSource struct {
	errs  map[string]error
	fix   Position
	tried []string
}

func (s *scriptedSource) CurrentPosition(_ context.Context, tier Tier) (Position, error) {
	s.tried = append(s.tried, tier.Name)
	if err, ok := s.errs[tier.Name]; ok {
		return Position{}, err
	}
	return s.fix, nil
}

// blockingSource waits for the tier deadline to expire.
type blockingSource struct {
	tried []string
}

func (s *blockingSource) CurrentPosition(ctx context.Context, tier Tier) (Position, error) {
	s.tried = append(s.tried, tier.Name)
	<-ctx.Done()
	return Position{}, ctx.Err()
}

type mockCoarse struct {
	pos   Position
	label string
	err   error
	calls int
}

func (m *mockCoarse) LocateByIP(_ context.Context) (Position, string, error) {
	m.calls++
	return m.pos, m.label, m.err
}

var lagos = Position{Lat: 6.5244, Lon: 3.3792}

// --- Locate ---

func TestLocate_FirstTierSuccess(t *testing.T) {
	src := &scriptedSource{fix: lagos}

	pos, err := Locate(context.Background(), src, DefaultTiers, nil)
	require.NoError(t, err)

	assert.Equal(t, 6.5244, pos.Lat)
	assert.Equal(t, 3.3792, pos.Lon)
	assert.Equal(t, SourceGPS, pos.Source)
	assert.Equal(t, []string{"precise"}, src.tried)
}

func TestLocate_TimeoutAdvancesToNextTier(t *testing.T) {
	src := &scriptedSource{
		errs: map[string]error{"precise": ErrTimeout},
		fix:  lagos,
	}

	pos, err := Locate(context.Background(), src, DefaultTiers, nil)
	require.NoError(t, err)

	assert.Equal(t, lagos.Lat, pos.Lat)
	assert.Equal(t, []string{"precise", "relaxed"}, src.tried)
}

func TestLocate_PermissionDeniedShortCircuits(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{"precise": ErrPermissionDenied}}

	_, err := Locate(context.Background(), src, DefaultTiers, nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, []string{"precise"}, src.tried, "must not attempt tier 2")

	var lerr *LocateError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "precise", lerr.Tier)
}

func TestLocate_PositionUnavailableShortCircuits(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{
		"precise": ErrTimeout,
		"relaxed": ErrPositionUnavailable,
	}}

	_, err := Locate(context.Background(), src, DefaultTiers, nil)
	require.Error(t, err)

	assert.Equal(t, KindPositionUnavailable, Classify(err))
	assert.Equal(t, []string{"precise", "relaxed"}, src.tried)
}

func TestLocate_AllTiersTimeOut(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{
		"precise": ErrTimeout,
		"relaxed": ErrTimeout,
		"coarse":  ErrTimeout,
	}}

	_, err := Locate(context.Background(), src, DefaultTiers, nil)
	require.Error(t, err)

	assert.Equal(t, KindTimeout, Classify(err))
	assert.Equal(t, []string{"precise", "relaxed", "coarse"}, src.tried)
}

func TestLocate_TierDeadlineCountsAsTimeout(t *testing.T) {
	tiers := []Tier{
		{Name: "t1", Timeout: 10 * time.Millisecond},
		{Name: "t2", Timeout: 10 * time.Millisecond},
	}
	src := &blockingSource{}

	_, err := Locate(context.Background(), src, tiers, nil)
	require.Error(t, err)

	assert.Equal(t, KindTimeout, Classify(err))
	assert.Equal(t, []string{"t1", "t2"}, src.tried)
}

func TestLocate_ParentCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &blockingSource{}

	_, err := Locate(ctx, src, DefaultTiers, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.tried, 1)
}

func TestLocate_ObserverSeesEveryAttempt(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{"precise": ErrTimeout}, fix: lagos}

	var seen []string
	_, err := Locate(context.Background(), src, DefaultTiers, func(tier Tier, err error) {
		seen = append(seen, tier.Name+":"+string(Classify(err)))
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"precise:timeout", "relaxed:"}, seen)
}

func TestLocate_NilSourceUnsupported(t *testing.T) {
	_, err := Locate(context.Background(), nil, DefaultTiers, nil)
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}

// --- LocateWithFallback ---

func TestLocateWithFallback_NoFallbackOnSuccess(t *testing.T) {
	coarse := &mockCoarse{}
	out, err := LocateWithFallback(context.Background(), &scriptedSource{fix: lagos}, coarse, DefaultTiers, nil)
	require.NoError(t, err)

	assert.False(t, out.Fallback)
	assert.Equal(t, 0, coarse.calls)
}

func TestLocateWithFallback_IPAfterPermissionDenied(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{"precise": ErrPermissionDenied}}
	coarse := &mockCoarse{
		pos:   Position{Lat: 6.6, Lon: 3.35},
		label: "Approximate location: Ikeja, Lagos",
	}

	out, err := LocateWithFallback(context.Background(), src, coarse, DefaultTiers, nil)
	require.NoError(t, err)

	assert.True(t, out.Fallback)
	assert.Equal(t, SourceIP, out.Position.Source)
	assert.Equal(t, "Approximate location: Ikeja, Lagos", out.Label)
	assert.ErrorIs(t, out.Cause, ErrPermissionDenied)
	assert.Equal(t, []string{"precise"}, src.tried)
}

func TestLocateWithFallback_IPAfterExhaustion(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{
		"precise": ErrTimeout, "relaxed": ErrTimeout, "coarse": ErrTimeout,
	}}
	coarse := &mockCoarse{pos: Position{Lat: 9.07, Lon: 7.49}}

	out, err := LocateWithFallback(context.Background(), src, coarse, DefaultTiers, nil)
	require.NoError(t, err)

	assert.True(t, out.Fallback)
	assert.Equal(t, 1, coarse.calls)
	assert.Len(t, src.tried, 3)
}

func TestLocateWithFallback_NilSourceUsesIP(t *testing.T) {
	coarse := &mockCoarse{pos: Position{Lat: 9.07, Lon: 7.49}}

	out, err := LocateWithFallback(context.Background(), nil, coarse, DefaultTiers, nil)
	require.NoError(t, err)
	assert.True(t, out.Fallback)
}

func TestLocateWithFallback_TotalFailureKeepsClassification(t *testing.T) {
	src := &scriptedSource{errs: map[string]error{"precise": ErrPermissionDenied}}
	coarse := &mockCoarse{err: errors.New("ipapi down")}

	_, err := LocateWithFallback(context.Background(), src, coarse, DefaultTiers, nil)
	require.Error(t, err)

	assert.Equal(t, KindPermissionDenied, Classify(err))
	assert.Contains(t, err.Error(), "ipapi down")
}

func TestStaticSource(t *testing.T) {
	pos, err := StaticSource{Fix: lagos}.CurrentPosition(context.Background(), DefaultTiers[0])
	require.NoError(t, err)
	assert.Equal(t, lagos, pos)

	_, err = StaticSource{Err: ErrPermissionDenied}.CurrentPosition(context.Background(), DefaultTiers[0])
	assert.ErrorIs(t, err, ErrPermissionDenied)
}
