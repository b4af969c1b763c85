// Package analysis joins point resources against hazard zones.
//
// The join is a containment test of every usable point against every usable
// zone. A point on a zone boundary counts as inside. Results are ordered by
// point input order, then zone input order, so two calls with equal inputs
// return equal slices.
package analysis

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

// Analyzer holds join options. The zero value performs a brute-force join.
// An Analyzer has no mutable state and is safe for concurrent use.
type Analyzer struct {
	indexThreshold int
}

type Option func(*Analyzer)

// WithSpatialIndex enables an R-tree over zone bounding boxes when the
// number of usable zones is at least threshold. A threshold <= 0 disables it.
func WithSpatialIndex(threshold int) Option {
	return func(a *Analyzer) {
		a.indexThreshold = threshold
	}
}

func New(opts ...Option) *Analyzer {
	a := &Analyzer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs a brute-force join with no spatial index.
func Analyze(points []models.PointResource, zones []models.HazardZone) ([]models.VulnerabilityRecord, error) {
	return (&Analyzer{}).Analyze(points, zones)
}

// Analyze returns one record per (point, zone) pair where the zone contains
// the point. ResourceIndex is the point's position in points. Points without a location and zones without geometry are
// dropped. Every remaining coordinate and polygon is validated before any
// containment test, so bad data is reported even when the other input is
// empty.
func (a *Analyzer) Analyze(points []models.PointResource, zones []models.HazardZone) ([]models.VulnerabilityRecord, error) {
	usablePoints := make([]int, 0, len(points))
	for i, p := range points {
		if p.Location == nil {
			continue
		}
		if err := validatePoint(p); err != nil {
			return nil, err
		}
		usablePoints = append(usablePoints, i)
	}

	usableZones := make([]models.HazardZone, 0, len(zones))
	for _, z := range zones {
		if len(z.Geometry) == 0 || len(z.Geometry[0]) == 0 {
			continue
		}
		if err := ValidateZone(z); err != nil {
			return nil, err
		}
		usableZones = append(usableZones, z)
	}

	records := make([]models.VulnerabilityRecord, 0)
	if len(usablePoints) == 0 || len(usableZones) == 0 {
		return records, nil
	}

	candidates := a.candidateFunc(usableZones)
	for _, pi := range usablePoints {
		p := points[pi]
		pt := p.Location.Point()
		for _, zi := range candidates(pt) {
			z := usableZones[zi]
			if Contains(z.Geometry, pt) {
				records = append(records, models.VulnerabilityRecord{Resource: p, ResourceIndex: pi, Zone: z})
			}
		}
	}
	return records, nil
}

// candidateFunc returns the zone indexes worth testing for a point, in
// ascending order.
func (a *Analyzer) candidateFunc(zones []models.HazardZone) func(orb.Point) []int {
	if a.indexThreshold > 0 && len(zones) >= a.indexThreshold {
		if idx, err := newZoneIndex(zones); err == nil {
			return idx.candidates
		}
	}

	all := make([]int, len(zones))
	for i := range all {
		all[i] = i
	}
	return func(orb.Point) []int { return all }
}

// Contains reports whether pt lies inside polygon p or on its boundary,
// including the boundary of any hole.
func Contains(p orb.Polygon, pt orb.Point) bool {
	if planar.PolygonContains(p, pt) {
		return true
	}
	if len(p) < 2 || !planar.RingContains(p[0], pt) {
		return false
	}
	for _, hole := range p[1:] {
		if onRing(hole, pt) {
			return true
		}
	}
	return false
}

func onRing(r orb.Ring, pt orb.Point) bool {
	for i := 0; i < len(r)-1; i++ {
		if onSegment(pt, r[i], r[i+1]) {
			return true
		}
	}
	return false
}
