package domain

import (
	"fmt"
	"strconv"
)

// Position sources.
const (
	SourceGPS     = "gps"
	SourceIP      = "ip"
	SourcePin     = "pin"
	SourceAddress = "address"
)

// Position is a WGS-84 fix. It is never persisted.
type Position struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"` // meters, 0 when unknown
	Source   string  `json:"source,omitempty"`
}

// CacheKey returns the coordinates rounded to four decimals.
func (p Position) CacheKey() string {
	return fmt.Sprintf("%.4f,%.4f", p.Lat, p.Lon)
}

// Near is the synthetic address used when no real address is available.
func (p Position) Near() string {
	return fmt.Sprintf("Near %.4f, %.4f", p.Lat, p.Lon)
}

// Valid reports whether the coordinates are inside WGS-84 bounds.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// FormatCoordinate renders a coordinate without trailing zeros or rounding,
// so a fix at 6.5244 is written to the form as "6.5244".
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
