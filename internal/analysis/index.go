package analysis

import (
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

// queryTolerance pads point lookups so points on a bounding box edge are
// still returned as candidates.
const queryTolerance = 1e-9

type zoneEntry struct {
	index int
	rect  rtreego.Rect
}

func (e *zoneEntry) Bounds() rtreego.Rect {
	return e.rect
}

type zoneIndex struct {
	tree *rtreego.Rtree
}

func newZoneIndex(zones []models.HazardZone) (*zoneIndex, error) {
	objs := make([]rtreego.Spatial, 0, len(zones))
	for i, z := range zones {
		b := z.Geometry.Bound()
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min.X(), b.Min.Y()},
			rtreego.Point{b.Max.X(), b.Max.Y()},
		)
		if err != nil {
			return nil, err
		}
		objs = append(objs, &zoneEntry{index: i, rect: rect})
	}
	return &zoneIndex{tree: rtreego.NewTree(2, 25, 50, objs...)}, nil
}

func (zi *zoneIndex) candidates(pt orb.Point) []int {
	hits := zi.tree.SearchIntersect(rtreego.Point{pt.X(), pt.Y()}.ToRect(queryTolerance))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*zoneEntry).index)
	}
	sort.Ints(out)
	return out
}
