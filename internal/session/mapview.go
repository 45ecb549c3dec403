package session

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/nexahealth-reporter/internal/domain"
)

// Map defaults: the whole of Nigeria before any fix, street level once a
// marker is placed.
const (
	DefaultZoom    = 6
	MarkerZoom     = 16
	DefaultTileURL = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	Attribution    = "&copy; OpenStreetMap contributors"
)

// DefaultCenter is the geographic centre of Nigeria.
var DefaultCenter = domain.Position{Lat: 9.0820, Lon: 8.6753}

// Marker is the single draggable pin on the map.
type Marker struct {
	Position domain.Position `json:"position"`
	Popup    string          `json:"popup"`
}

// MapView is the presenter state for the report map. It is created
// uninitialized and holds at most one marker. It is not safe for concurrent
// use; Session serializes access.
type MapView struct {
	tileURL     string
	initialized bool
	center      domain.Position
	zoom        int
	marker      *Marker
}

// NewMapView returns an uninitialized map. An empty tileURL selects
// DefaultTileURL.
func NewMapView(tileURL string) *MapView {
	if tileURL == "" {
		tileURL = DefaultTileURL
	}
	return &MapView{tileURL: tileURL}
}

// Init centres the map on Nigeria. Calling it again is a no-op.
func (m *MapView) Init() {
	if m.initialized {
		return
	}
	m.initialized = true
	m.center = DefaultCenter
	m.zoom = DefaultZoom
}

// Initialized reports whether the map has been shown.
func (m *MapView) Initialized() bool {
	return m.initialized
}

// PlaceMarker replaces any existing marker with one at pos and zooms to it.
// The map is initialized first if needed.
func (m *MapView) PlaceMarker(pos domain.Position, popup string) {
	m.Init()
	m.marker = &Marker{Position: pos, Popup: popup}
	m.center = pos
	m.zoom = MarkerZoom
}

// SetPopup changes the popup text of the current marker, if any.
func (m *MapView) SetPopup(popup string) {
	if m.marker != nil {
		m.marker.Popup = popup
	}
}

// RemoveMarker clears the pin. The view is left where it was.
func (m *MapView) RemoveMarker() {
	m.marker = nil
}

// Marker returns the current pin.
func (m *MapView) Marker() (Marker, bool) {
	if m.marker == nil {
		return Marker{}, false
	}
	return *m.marker, true
}

// View returns the current centre and zoom.
func (m *MapView) View() (domain.Position, int) {
	return m.center, m.zoom
}

// FeatureCollection renders the map as GeoJSON. The marker, when present, is
// the only feature; view state is carried as foreign members.
func (m *MapView) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"initialized": m.initialized,
		"tile_url":    m.tileURL,
		"attribution": Attribution,
	}
	if m.initialized {
		fc.ExtraMembers["center"] = []float64{m.center.Lon, m.center.Lat}
		fc.ExtraMembers["zoom"] = m.zoom
	}

	if m.marker != nil {
		f := geojson.NewFeature(orb.Point{m.marker.Position.Lon, m.marker.Position.Lat})
		f.ID = "marker"
		f.Properties["popup"] = m.marker.Popup
		f.Properties["draggable"] = true
		f.Properties["source"] = m.marker.Position.Source
		if m.marker.Position.Accuracy > 0 {
			f.Properties["accuracy_m"] = m.marker.Position.Accuracy
		}
		fc.Append(f)
	}
	return fc
}

// GeoJSON marshals FeatureCollection.
func (m *MapView) GeoJSON() ([]byte, error) {
	data, err := m.FeatureCollection().MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal map geojson: %w", err)
	}
	return data, nil
}
