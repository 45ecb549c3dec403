package domain

import (
	"context"
	"log/slog"
	"strings"
)

// ResolveAddress reverse geocodes pos. If geocoder is nil, the lookup fails,
// or the provider returns nothing usable, the result is a synthetic address
// built from the coordinates (graceful degradation).
func ResolveAddress(ctx context.Context, pos Position, geocoder ReverseGeocoder, logger *slog.Logger) GeocodeResult {
	if geocoder == nil {
		return SyntheticResult(pos)
	}

	result, err := geocoder.ReverseGeocode(ctx, pos)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", pos.Lat,
			"lon", pos.Lon,
			"error", err,
		)
		return SyntheticResult(pos)
	}
	if result.DisplayAddress == "" {
		return SyntheticResult(pos)
	}
	return result
}

// SyntheticResult is the address used when no provider answer is available.
func SyntheticResult(pos Position) GeocodeResult {
	return GeocodeResult{DisplayAddress: pos.Near(), Synthetic: true}
}

// FormatAddress joins road, LGA and state. When none are known it falls back
// to the provider's display name, then to "Location found".
func FormatAddress(road, lga, state, displayName string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{road, lga, state} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	if displayName != "" {
		return displayName
	}
	return "Location found"
}
