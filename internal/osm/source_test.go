package osm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

var pokhara = models.BBox{South: 28.15, West: 83.93, North: 28.28, East: 84.05}

func TestParseTagFilter(t *testing.T) {
	f, err := ParseTagFilter("amenity=waste_basket|recycling; shop")
	require.NoError(t, err)
	assert.Equal(t, TagFilter{"amenity": {"waste_basket", "recycling"}, "shop": nil}, f)

	_, err = ParseTagFilter(" ; ")
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = ParseTagFilter("=recycling")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestTagFilter_Match(t *testing.T) {
	f := TagFilter{"amenity": {"recycling", "waste_basket"}, "shop": nil}

	tests := []struct {
		name string
		tags map[string]string
		want string
		ok   bool
	}{
		{"listed value", map[string]string{"amenity": "recycling"}, "recycling", true},
		{"unlisted value", map[string]string{"amenity": "bench"}, "", false},
		{"any value key", map[string]string{"shop": "bakery"}, "bakery", true},
		{"first key wins", map[string]string{"amenity": "waste_basket", "shop": "bakery"}, "waste_basket", true},
		{"no tags", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.Match(tt.tags)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_KeyIsCanonical(t *testing.T) {
	a := Query{Area: pokhara, Tags: TagFilter{"amenity": {"recycling", "waste_basket"}, "shop": nil}}
	b := Query{Area: pokhara, Tags: TagFilter{"shop": {}, "amenity": {"waste_basket", "recycling", "recycling"}}}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "28.150000,83.930000,28.280000,84.050000|amenity=recycling|waste_basket;shop", a.Key())

	c := Query{Area: models.BBox{South: 28.15, West: 83.93, North: 28.29, East: 84.05}, Tags: a.Tags}
	assert.NotEqual(t, a.Key(), c.Key())

	d := Query{Area: pokhara, Tags: TagFilter{"amenity": {"recycling"}}}
	assert.NotEqual(t, a.Key(), d.Key())
}

func TestQuery_Validate(t *testing.T) {
	assert.NoError(t, Query{Area: pokhara, Tags: DefaultTags()}.Validate())
	assert.ErrorIs(t, Query{Area: pokhara}.Validate(), ErrInvalidQuery)
	inverted := models.BBox{South: 28.28, West: 83.93, North: 28.15, East: 84.05}
	assert.ErrorIs(t, Query{Area: inverted, Tags: DefaultTags()}.Validate(), ErrInvalidQuery)
}

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("28.15, 83.93, 28.28, 84.05")
	require.NoError(t, err)
	assert.Equal(t, pokhara, b)

	for _, bad := range []string{"1,2,3", "a,b,c,d", "28.3,83.9,28.1,84.0", "0,0,95,1"} {
		_, err := ParseBBox(bad)
		assert.ErrorIs(t, err, ErrInvalidQuery, bad)
	}
}

func TestBuildQuery(t *testing.T) {
	q := Query{Area: pokhara, Tags: TagFilter{"amenity": {"waste_basket", "recycling"}, "shop": nil}}
	got := BuildQuery(q, 25*time.Second)
	want := `[out:json][timeout:25];(` +
		`node["amenity"~"^(waste_basket|recycling)$"](28.150000,83.930000,28.280000,84.050000);` +
		`node["shop"](28.150000,83.930000,28.280000,84.050000);` +
		`);out body;`
	assert.Equal(t, want, got)
}

func TestBuildQuery_EscapesValues(t *testing.T) {
	q := Query{Area: pokhara, Tags: TagFilter{"name": {`a.b"c`}}}
	got := BuildQuery(q, 0)
	assert.Contains(t, got, `node["name"~"^(a\\.b\"c)$"]`)
	assert.NotContains(t, got, "[timeout:")
}
