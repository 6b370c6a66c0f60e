// Package geo converts a trip's locations into GeoJSON for the map.
package geo

import "github.com/dukerupert/roamer/internal/model"

type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	BBox     []float64 `json:"bbox,omitempty"`
	Features []Feature `json:"features"`
}

// Route builds one Point per location and, when there are at least two, a
// LineString joining them in order. Locations must already be sorted.
// GeoJSON positions are [lng, lat].
func Route(locs []model.Location) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	if len(locs) == 0 {
		return fc
	}

	line := make([][2]float64, 0, len(locs))
	minLng, minLat := locs[0].Lng, locs[0].Lat
	maxLng, maxLat := minLng, minLat
	for _, l := range locs {
		pos := [2]float64{l.Lng, l.Lat}
		line = append(line, pos)
		fc.Features = append(fc.Features, Feature{
			Type:     "Feature",
			Geometry: Geometry{Type: "Point", Coordinates: pos},
			Properties: map[string]any{
				"id":    l.ID,
				"title": l.Title,
				"order": l.Order,
			},
		})
		minLng, maxLng = min(minLng, l.Lng), max(maxLng, l.Lng)
		minLat, maxLat = min(minLat, l.Lat), max(maxLat, l.Lat)
	}

	if len(line) >= 2 {
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "LineString", Coordinates: line},
			Properties: map[string]any{"kind": "route"},
		})
	}
	fc.BBox = []float64{minLng, minLat, maxLng, maxLat}
	return fc
}
