package domain

import (
	"context"
	"fmt"
	"time"
)

// Tier is one accuracy/timeout configuration attempted by the cascade.
type Tier struct {
	Name         string
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration // oldest cached fix the source may return
}

// DefaultTiers is the precise → relaxed → coarse cascade.
var DefaultTiers = []Tier{
	{Name: "precise", HighAccuracy: true, Timeout: 10 * time.Second, MaximumAge: 0},
	{Name: "relaxed", HighAccuracy: true, Timeout: 15 * time.Second, MaximumAge: 30 * time.Second},
	{Name: "coarse", HighAccuracy: false, Timeout: 20 * time.Second, MaximumAge: 5 * time.Minute},
}

// PositionSource produces a device fix for a single tier. Implementations
// return ErrTimeout (or honor ctx's deadline), ErrPermissionDenied or
// ErrPositionUnavailable.
type PositionSource interface {
	CurrentPosition(ctx context.Context, tier Tier) (Position, error)
}

// CoarseLocator resolves an approximate position from the client's network
// address. The label is a human description such as "Approximate location: Ikeja, Lagos".
type CoarseLocator interface {
	LocateByIP(ctx context.Context) (Position, string, error)
}

// AttemptFunc observes the outcome of every tier attempt. err is nil on success.
type AttemptFunc func(tier Tier, err error)

// LocateError reports the tier at which the cascade stopped.
type LocateError struct {
	Tier string
	Err  error
}

func (e *LocateError) Error() string {
	return fmt.Sprintf("geolocation failed at tier %s: %v", e.Tier, e.Err)
}

func (e *LocateError) Unwrap() error { return e.Err }

// Locate walks tiers in order. A timeout advances to the next tier; any other
// failure is returned immediately without trying the remaining tiers.
func Locate(ctx context.Context, src PositionSource, tiers []Tier, onAttempt AttemptFunc) (Position, error) {
	if src == nil {
		return Position{}, &LocateError{Tier: "none", Err: fmt.Errorf("geolocation not supported: %w", ErrPositionUnavailable)}
	}

	last := "none"
	for _, tier := range tiers {
		last = tier.Name
		pos, err := attempt(ctx, src, tier)
		if onAttempt != nil {
			onAttempt(tier, err)
		}
		if err == nil {
			if pos.Source == "" {
				pos.Source = SourceGPS
			}
			return pos, nil
		}
		if ctx.Err() != nil {
			return Position{}, ctx.Err()
		}
		if Classify(err) != KindTimeout {
			return Position{}, &LocateError{Tier: tier.Name, Err: err}
		}
	}
	return Position{}, &LocateError{Tier: last, Err: ErrTimeout}
}

func attempt(ctx context.Context, src PositionSource, tier Tier) (Position, error) {
	tctx, cancel := context.WithTimeout(ctx, tier.Timeout)
	defer cancel()
	return src.CurrentPosition(tctx, tier)
}

// LocateOutcome is the resolved position and how it was obtained.
type LocateOutcome struct {
	Position Position
	Label    string // set for IP fallbacks
	Fallback bool
	Cause    error // the geolocation failure that triggered the fallback
}

// LocateWithFallback runs the tier cascade and, when it fails for any reason
// other than cancellation, asks the coarse locator. If both fail the returned
// error keeps the geolocation classification.
func LocateWithFallback(ctx context.Context, src PositionSource, coarse CoarseLocator, tiers []Tier, onAttempt AttemptFunc) (LocateOutcome, error) {
	pos, err := Locate(ctx, src, tiers, onAttempt)
	if err == nil {
		return LocateOutcome{Position: pos}, nil
	}
	if ctx.Err() != nil || coarse == nil {
		return LocateOutcome{}, err
	}

	ipPos, label, ipErr := coarse.LocateByIP(ctx)
	if ipErr != nil {
		return LocateOutcome{}, fmt.Errorf("%w (ip fallback: %v)", err, ipErr)
	}
	ipPos.Source = SourceIP
	return LocateOutcome{Position: ipPos, Label: label, Fallback: true, Cause: err}, nil
}

// StaticSource returns the same fix for every tier. It adapts a fix obtained
// elsewhere (a browser, a CLI flag) to the cascade.
type StaticSource struct {
	Fix Position
	Err error
}

func (s StaticSource) CurrentPosition(ctx context.Context, _ Tier) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if s.Err != nil {
		return Position{}, s.Err
	}
	return s.Fix, nil
}
