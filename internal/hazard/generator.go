// Package hazard turns the static hazard seed table into zone polygons.
package hazard

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mr1hm/go-hazard-mapper/internal/analysis"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

const DefaultSegments = 64

// ErrInvalidSeed reports a seed row that cannot be buffered for reasons
// other than geometry, such as an unknown hazard type or a duplicate ID.
var ErrInvalidSeed = errors.New("invalid hazard seed")

// Generator buffers seeds into circles on a spherical earth.
type Generator struct {
	segments int
}

func NewGenerator(segments int) *Generator {
	if segments < 3 {
		segments = DefaultSegments
	}
	return &Generator{segments: segments}
}

// GenerateZones buffers seeds with DefaultSegments vertices per circle.
func GenerateZones(seeds []models.HazardSeed) ([]models.HazardZone, error) {
	return NewGenerator(DefaultSegments).GenerateZones(seeds)
}

// GenerateZones returns one zone per seed, in seed order. The output depends
// only on the seeds and the segment count.
func (g *Generator) GenerateZones(seeds []models.HazardSeed) ([]models.HazardZone, error) {
	zones := make([]models.HazardZone, 0, len(seeds))
	ids := make(map[string]struct{}, len(seeds))

	for i, s := range seeds {
		typ := models.ParseHazardType(string(s.Type))
		if typ == models.HazardTypeUnknown {
			return nil, fmt.Errorf("%w: seed %d has unknown hazard type %q", ErrInvalidSeed, i, s.Type)
		}

		id := s.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", typ, i)
		}
		if _, dup := ids[id]; dup {
			return nil, fmt.Errorf("%w: duplicate seed id %q", ErrInvalidSeed, id)
		}
		ids[id] = struct{}{}

		if !s.Center.Valid() {
			return nil, fmt.Errorf("%w: seed %s centre lat=%v lon=%v", analysis.ErrCoordinateOutOfRange, id, s.Center.Lat, s.Center.Lon)
		}
		if s.RadiusMeters <= 0 || math.IsNaN(s.RadiusMeters) || math.IsInf(s.RadiusMeters, 0) {
			return nil, fmt.Errorf("%w: seed %s radius %v must be a positive number of meters", analysis.ErrInvalidGeometry, id, s.RadiusMeters)
		}

		ring := g.circle(s.Center.Point(), s.RadiusMeters)
		if crossesAntimeridian(ring) {
			return nil, fmt.Errorf("%w: seed %s buffer crosses the antimeridian, which is not supported", analysis.ErrInvalidGeometry, id)
		}

		z := models.HazardZone{
			ID:           id,
			Type:         typ,
			Severity:     s.Severity,
			Center:       s.Center,
			RadiusMeters: s.RadiusMeters,
			Geometry:     orb.Polygon{ring},
			Attributes:   zoneAttributes(typ, s.Attributes),
		}
		if err := analysis.ValidateZone(z); err != nil {
			return nil, fmt.Errorf("buffer seed %s: %w", id, err)
		}
		zones = append(zones, z)
	}

	return zones, nil
}

// circle walks bearings from north through west so the ring is
// counter-clockwise in lon/lat.
func (g *Generator) circle(center orb.Point, radius float64) orb.Ring {
	ring := make(orb.Ring, 0, g.segments+1)
	step := 360.0 / float64(g.segments)
	for k := 0; k < g.segments; k++ {
		bearing := math.Mod(360-float64(k)*step, 360)
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radius))
	}
	return append(ring, ring[0])
}

func zoneAttributes(typ models.HazardType, seedAttrs map[string]string) map[string]string {
	attrs := make(map[string]string, len(seedAttrs)+2)
	for k, v := range seedAttrs {
		attrs[k] = v
	}
	if _, ok := attrs["label"]; !ok {
		attrs["label"] = typ.Label()
	}
	if _, ok := attrs["color"]; !ok {
		attrs["color"] = typ.Color()
	}
	return attrs
}

// crossesAntimeridian reports whether any vertex ran past ±180° longitude.
// PointAtBearingAndDistance does not wrap, and a wrapped ring would be
// self-intersecting in planar lon/lat.
func crossesAntimeridian(r orb.Ring) bool {
	for _, p := range r {
		if p.Lon() < -180 || p.Lon() > 180 {
			return true
		}
	}
	return false
}
