package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

var (
	// ErrInvalidGeometry reports a zone polygon that is unclosed, degenerate
	// or self-intersecting.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrCoordinateOutOfRange reports a non-finite coordinate or one outside
	// latitude [-90, 90] / longitude [-180, 180].
	ErrCoordinateOutOfRange = errors.New("coordinate out of range")
)

// minRingArea is the smallest |area| in square degrees treated as a real
// polygon (roughly 1 cm² near the equator).
const minRingArea = 1e-14

func validatePoint(p models.PointResource) error {
	if !p.Location.Valid() {
		return fmt.Errorf("%w: point %s at lat=%v lon=%v", ErrCoordinateOutOfRange, p.ID, p.Location.Lat, p.Location.Lon)
	}
	return nil
}

// ValidateZone checks the centre and every vertex of z, then the shape of
// each ring. Coordinate errors are reported before shape errors.
func ValidateZone(z models.HazardZone) error {
	if !z.Center.Valid() {
		return fmt.Errorf("%w: zone %s centre lat=%v lon=%v", ErrCoordinateOutOfRange, z.ID, z.Center.Lat, z.Center.Lon)
	}
	for _, ring := range z.Geometry {
		for _, pt := range ring {
			if !models.ValidLatLon(pt.Lat(), pt.Lon()) {
				return fmt.Errorf("%w: zone %s vertex lat=%v lon=%v", ErrCoordinateOutOfRange, z.ID, pt.Lat(), pt.Lon())
			}
		}
	}
	if err := ValidatePolygon(z.Geometry); err != nil {
		return fmt.Errorf("zone %s: %w", z.ID, err)
	}
	return nil
}

// ValidatePolygon checks ring structure only: at least four positions,
// closed, non-zero area and no self-intersections.
func ValidatePolygon(p orb.Polygon) error {
	for i, ring := range p {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d positions, need at least 4", ErrInvalidGeometry, i, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		if math.Abs(planar.Area(ring)) < minRingArea {
			return fmt.Errorf("%w: ring %d has zero area", ErrInvalidGeometry, i)
		}
		if a, b, ok := selfIntersection(ring); ok {
			return fmt.Errorf("%w: ring %d self-intersects at segments %d and %d", ErrInvalidGeometry, i, a, b)
		}
	}
	return nil
}

// selfIntersection returns the first pair of segments of a closed ring that
// touch anywhere other than their shared endpoint.
func selfIntersection(r orb.Ring) (int, int, bool) {
	r = dropRepeated(r)
	n := len(r) - 1
	for i := 0; i < n; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 1; j < n; j++ {
			b1, b2 := r[j], r[j+1]
			adjacent := j == i+1 || (i == 0 && j == n-1)
			if adjacent {
				if collinearOverlap(a1, a2, b1, b2) {
					return i, j, true
				}
				continue
			}
			if segmentsIntersect(a1, a2, b1, b2) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func dropRepeated(r orb.Ring) orb.Ring {
	out := make(orb.Ring, 0, len(r))
	for i, p := range r {
		if i > 0 && p == out[len(out)-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// onSegment reports whether p lies on segment ab, endpoints included.
func onSegment(p, a, b orb.Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := sign(cross(q1, q2, p1))
	d2 := sign(cross(q1, q2, p2))
	d3 := sign(cross(p1, p2, q1))
	d4 := sign(cross(p1, p2, q2))

	if d1*d2 < 0 && d3*d4 < 0 {
		return true
	}
	return (d1 == 0 && onSegment(p1, q1, q2)) ||
		(d2 == 0 && onSegment(p2, q1, q2)) ||
		(d3 == 0 && onSegment(q1, p1, p2)) ||
		(d4 == 0 && onSegment(q2, p1, p2))
}

// collinearOverlap detects a spike: two consecutive segments that fold back
// over each other.
func collinearOverlap(a1, a2, b1, b2 orb.Point) bool {
	if cross(a1, a2, b1) != 0 || cross(a1, a2, b2) != 0 {
		return false
	}
	shared, aFar, bFar := a2, a1, b2
	if a1 == b2 {
		shared, aFar, bFar = a1, a2, b1
	}
	// Opposite directions from the shared vertex mean the segments only meet there.
	dx1, dy1 := aFar[0]-shared[0], aFar[1]-shared[1]
	dx2, dy2 := bFar[0]-shared[0], bFar[1]-shared[1]
	return dx1*dx2+dy1*dy2 > 0
}
