package models

import (
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is a WGS-84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Point returns the coordinate in orb's lon/lat order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// Valid reports whether both components are finite and inside the
// latitude/longitude bounds.
func (c Coordinate) Valid() bool {
	return ValidLatLon(c.Lat, c.Lon)
}

func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// PointResource is a single OSM point of interest, e.g. a recycling point.
type PointResource struct {
	ID         string            `json:"id"`       // "node/<osm id>"
	Category   string            `json:"category"` // tag value that matched the query, e.g. "waste_basket"
	Location   *Coordinate       `json:"location"` // nil when the element has no point geometry
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Name returns the "name" attribute, or "Unknown" when the element has none.
func (r PointResource) Name() string {
	if n := r.Attributes["name"]; n != "" {
		return n
	}
	return "Unknown"
}

// BBox is an area of interest expressed as south/west/north/east degrees.
type BBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

func (b BBox) Valid() bool {
	return ValidLatLon(b.South, b.West) && ValidLatLon(b.North, b.East) &&
		b.South < b.North && b.West < b.East
}

func (b BBox) Contains(c Coordinate) bool {
	return c.Lat >= b.South && c.Lat <= b.North && c.Lon >= b.West && c.Lon <= b.East
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}
}
