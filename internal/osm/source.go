// Package osm fetches OpenStreetMap point resources for an area.
package osm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

var ErrInvalidQuery = errors.New("invalid osm query")

// Source returns point resources inside an area that match a tag filter.
type Source interface {
	FetchResources(ctx context.Context, q Query) ([]models.PointResource, error)
}

// TagFilter maps an OSM key to the accepted values. An empty value list
// accepts any value for that key.
type TagFilter map[string][]string

// DefaultTags selects waste infrastructure.
func DefaultTags() TagFilter {
	return TagFilter{"amenity": {"waste_basket", "recycling", "waste_transfer_station"}}
}

// ParseTagFilter reads "amenity=waste_basket|recycling;shop" style strings.
func ParseTagFilter(s string) (TagFilter, error) {
	f := make(TagFilter)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, values, _ := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: empty tag key in %q", ErrInvalidQuery, part)
		}
		var vals []string
		for _, v := range strings.Split(values, "|") {
			if v = strings.TrimSpace(v); v != "" {
				vals = append(vals, v)
			}
		}
		f[key] = append(f[key], vals...)
	}
	if len(f) == 0 {
		return nil, fmt.Errorf("%w: no tags in %q", ErrInvalidQuery, s)
	}
	return f, nil
}

func (f TagFilter) keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Match returns the category for a tag set: the value of the first matching
// key in key order.
func (f TagFilter) Match(tags map[string]string) (string, bool) {
	_, category, ok := f.matchKey(tags)
	return category, ok
}

// String is canonical: keys and values sorted, values de-duplicated.
func (f TagFilter) String() string {
	parts := make([]string, 0, len(f))
	for _, k := range f.keys() {
		vals := append([]string(nil), f[k]...)
		sort.Strings(vals)
		vals = dedupe(vals)
		if len(vals) == 0 {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+"="+strings.Join(vals, "|"))
	}
	return strings.Join(parts, ";")
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

type Query struct {
	Area models.BBox
	Tags TagFilter
}

func (q Query) Validate() error {
	if !q.Area.Valid() {
		return fmt.Errorf("%w: bad bounding box %+v", ErrInvalidQuery, q.Area)
	}
	if len(q.Tags) == 0 {
		return fmt.Errorf("%w: empty tag filter", ErrInvalidQuery)
	}
	return nil
}

// Key identifies a query for caching. Equal areas and tag sets produce
// equal keys regardless of map or slice order.
func (q Query) Key() string {
	return fmt.Sprintf("%s,%s,%s,%s|%s",
		formatCoord(q.Area.South), formatCoord(q.Area.West),
		formatCoord(q.Area.North), formatCoord(q.Area.East),
		q.Tags.String())
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// ParseBBox reads "south,west,north,east".
func ParseBBox(s string) (models.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BBox{}, fmt.Errorf("%w: bbox %q needs 4 comma separated values", ErrInvalidQuery, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.BBox{}, fmt.Errorf("%w: bbox value %q: %v", ErrInvalidQuery, p, err)
		}
		v[i] = f
	}
	b := models.BBox{South: v[0], West: v[1], North: v[2], East: v[3]}
	if !b.Valid() {
		return models.BBox{}, fmt.Errorf("%w: bbox %q out of range or inverted", ErrInvalidQuery, s)
	}
	return b, nil
}

// toResource converts a tagged node into a resource. The matched tag is
// kept out of Attributes since it becomes Category.
func toResource(id int64, lat, lon float64, hasLocation bool, tags map[string]string, category, matchedKey string) models.PointResource {
	r := models.PointResource{
		ID:         fmt.Sprintf("node/%d", id),
		Category:   category,
		Attributes: make(map[string]string, len(tags)),
	}
	if hasLocation {
		r.Location = &models.Coordinate{Lat: lat, Lon: lon}
	}
	for k, v := range tags {
		if k == matchedKey {
			continue
		}
		r.Attributes[k] = v
	}
	return r
}

func (f TagFilter) matchKey(tags map[string]string) (key, category string, ok bool) {
	for _, k := range f.keys() {
		v, present := tags[k]
		if !present {
			continue
		}
		if len(f[k]) == 0 {
			return k, v, true
		}
		for _, want := range f[k] {
			if v == want {
				return k, v, true
			}
		}
	}
	return "", "", false
}
