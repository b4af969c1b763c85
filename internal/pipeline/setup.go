package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/mr1hm/go-hazard-mapper/internal/config"
	"github.com/mr1hm/go-hazard-mapper/internal/hazard"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
	"github.com/mr1hm/go-hazard-mapper/internal/osm"
)

// FromConfig resolves the area query, seed table and resource source
// described by cfg. A local OSM file takes precedence over Overpass.
func FromConfig(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (Config, osm.Source, error) {
	area, err := osm.ParseBBox(cfg.Source.BBox)
	if err != nil {
		return Config{}, nil, fmt.Errorf("area bbox: %w", err)
	}
	tags, err := osm.ParseTagFilter(cfg.Source.Tags)
	if err != nil {
		return Config{}, nil, fmt.Errorf("osm tags: %w", err)
	}
	query := osm.Query{Area: area, Tags: tags}
	if err := query.Validate(); err != nil {
		return Config{}, nil, err
	}

	var seeds []models.HazardSeed
	if cfg.Hazard.SeedsFile != "" {
		seeds, err = hazard.LoadSeeds(cfg.Hazard.SeedsFile)
		if err != nil {
			return Config{}, nil, err
		}
	} else {
		seeds = hazard.DefaultSeeds()
	}

	var source osm.Source
	if cfg.Source.OSMFile != "" {
		source = osm.NewFileSource(cfg.Source.OSMFile, logger, metrics)
	} else {
		source = osm.NewOverpassClient(cfg.Source.OverpassURL, cfg.Source.UserAgent, cfg.Source.Timeout, logger, metrics)
	}
	if cfg.Source.CacheEnabled {
		source = osm.NewCachedSource(source, metrics)
	}

	return Config{
		AreaName:       cfg.Source.AreaName,
		Query:          query,
		Seeds:          seeds,
		Segments:       cfg.Hazard.Segments,
		IndexThreshold: cfg.Analysis.SpatialIndexThreshold,
	}, source, nil
}
