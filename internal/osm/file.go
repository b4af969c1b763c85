package osm

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
)

// FileSource reads an OSM XML export from disk and applies the query
// locally. Only nodes are considered; ways and relations carry no point
// geometry.
type FileSource struct {
	path    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewFileSource(path string, logger *slog.Logger, metrics *observability.Metrics) *FileSource {
	return &FileSource{path: path, logger: logger, metrics: metrics}
}

func (s *FileSource) FetchResources(ctx context.Context, q Query) ([]models.PointResource, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	resources, err := s.read(ctx, q)
	s.metrics.FetchDuration.WithLabelValues("file").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.FetchRequests.WithLabelValues("file", "error").Inc()
		return nil, err
	}
	s.metrics.FetchRequests.WithLabelValues("file", "success").Inc()
	return resources, nil
}

func (s *FileSource) read(ctx context.Context, q Query) ([]models.PointResource, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("error opening osm file %s: %w", s.path, err)
	}
	defer f.Close()

	resources, err := DecodeXML(ctx, f, q)
	if err != nil {
		return nil, err
	}
	s.logger.Info("read osm resources", "path", s.path, "count", len(resources))
	return resources, nil
}

type osmNode struct {
	ID   int64    `xml:"id,attr"`
	Lat  *float64 `xml:"lat,attr"`
	Lon  *float64 `xml:"lon,attr"`
	Tags []osmTag `xml:"tag"`
}

type osmTag struct {
	Key   string `xml:"k,attr"`
	Value string `xml:"v,attr"`
}

// DecodeXML streams <node> elements out of an OSM XML document and returns
// those inside the query area that match its tags, in document order.
func DecodeXML(ctx context.Context, r io.Reader, q Query) ([]models.PointResource, error) {
	dec := xml.NewDecoder(r)
	resources := make([]models.PointResource, 0)

	sawRoot := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error decoding osm xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "osm" {
			sawRoot = true
			continue
		}
		if start.Name.Local != "node" {
			continue
		}

		var n osmNode
		if err := dec.DecodeElement(&n, &start); err != nil {
			return nil, fmt.Errorf("error decoding osm node: %w", err)
		}
		if len(n.Tags) == 0 {
			continue
		}

		tags := make(map[string]string, len(n.Tags))
		for _, t := range n.Tags {
			tags[t.Key] = t.Value
		}
		key, category, ok := q.Tags.matchKey(tags)
		if !ok {
			continue
		}

		hasLocation := n.Lat != nil && n.Lon != nil
		if hasLocation && !q.Area.Contains(models.Coordinate{Lat: *n.Lat, Lon: *n.Lon}) {
			continue
		}
		var lat, lon float64
		if hasLocation {
			lat, lon = *n.Lat, *n.Lon
		}
		resources = append(resources, toResource(n.ID, lat, lon, hasLocation, tags, category, key))
	}

	if !sawRoot {
		return nil, fmt.Errorf("error decoding osm xml: missing <osm> root element")
	}
	return resources, nil
}
