// Package domain models pharmacy/drug incident reports and the location flow
// that attaches coordinates and an address to them.
//
// # Location Acquisition
//
// A position is acquired through an ordered list of geolocation tiers. Each
// tier is one attempt with its own accuracy, timeout and cached-fix tolerance:
//
//	precise:  high accuracy, 10s timeout, no cached fix
//	relaxed:  high accuracy, 15s timeout, fix up to 30s old
//	coarse:   low accuracy,  20s timeout, fix up to 5m old
//
// Only a timeout moves the cascade to the next tier. Permission denied and
// position unavailable are terminal for the cascade. Whatever stops the
// cascade, the caller falls back to an IP-based coarse locator before giving
// up. See [Locate] and [LocateWithFallback].
//
// # Reverse Geocoding
//
// Addresses come from an external reverse geocoder. Results are cached by
// coordinates rounded to four decimal places (about 11m at the equator), the
// same key the browser implementation used:
//
//	6.52441,3.37922  →  "6.5244,3.3792"
//
// A failed lookup never blocks the report form. [ResolveAddress] degrades to
// a synthetic "Near <lat>, <lon>" address built from the raw coordinates.
//
// # Address Conventions
//
// Reports are Nigerian. The address hierarchy is state → LGA (Local
// Government Area) → street. Geocoders rarely return an LGA directly, so the
// LGA is taken from the county, then city, then town component.
//
// # Report Validation
//
// drug-name, pharmacy-name, description, state and lga are required. The
// field identifiers are the form field ids; [ValidationError] lists them so a
// presentation layer can flag each one. Validation always runs before any
// network call.
package domain
