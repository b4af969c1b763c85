package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-hazard-mapper/internal/analysis"
	"github.com/mr1hm/go-hazard-mapper/internal/hazard"
	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
	"github.com/mr1hm/go-hazard-mapper/internal/osm"
)

// ErrFetch marks failures of the resource source, as opposed to bad
// geometry or seed data.
var ErrFetch = errors.New("fetch resources")

type Config struct {
	AreaName       string
	Query          osm.Query
	Seeds          []models.HazardSeed
	Segments       int
	IndexThreshold int
}

// Pipeline runs fetch → generate zones → analyze and keeps the latest
// successful report.
type Pipeline struct {
	cfg       Config
	source    osm.Source
	generator *hazard.Generator
	analyzer  *analysis.Analyzer
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	latest    atomic.Pointer[models.Report]
}

func New(cfg Config, source osm.Source, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		source:    source,
		generator: hazard.NewGenerator(cfg.Segments),
		analyzer:  analysis.New(analysis.WithSpatialIndex(cfg.IndexThreshold)),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a run has succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.latest.Load() == nil {
		return errors.New("no analysis run has completed yet")
	}
	return nil
}

// Latest returns the most recent successful report, or nil.
func (p *Pipeline) Latest() *models.Report {
	return p.latest.Load()
}

// Seeds returns the configured hazard seeds.
func (p *Pipeline) Seeds() []models.HazardSeed {
	return p.cfg.Seeds
}

// Run fetches resources for the configured query and analyzes them against
// the configured seeds. On success the report becomes Latest.
func (p *Pipeline) Run(ctx context.Context) (*models.Report, error) {
	start := p.clock.Now()

	report, err := p.run(ctx)
	if err != nil {
		p.metrics.Runs.WithLabelValues("error").Inc()
		p.logger.Error("analysis run failed", "area", p.cfg.AreaName, "error", err)
		return nil, err
	}

	report.Duration = p.clock.Since(start)
	p.metrics.Runs.WithLabelValues("success").Inc()
	p.metrics.RunDuration.Observe(report.Duration.Seconds())
	p.metrics.Resources.Set(float64(report.Summary.TotalResources))
	p.metrics.Zones.Set(float64(report.Summary.TotalZones))
	p.metrics.ResourcesAtRisk.Set(float64(report.Summary.ResourcesAtRisk))
	p.metrics.Records.Set(float64(report.Summary.Records))
	p.latest.Store(report)

	p.logger.Info("analysis run complete",
		"run_id", report.RunID,
		"area", report.Area,
		"resources", report.Summary.TotalResources,
		"zones", report.Summary.TotalZones,
		"at_risk", report.Summary.ResourcesAtRisk,
		"duration", report.Duration,
	)
	return report, nil
}

func (p *Pipeline) run(ctx context.Context) (*models.Report, error) {
	resources, err := p.source.FetchResources(ctx, p.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return p.Evaluate(resources, p.cfg.Seeds)
}

// Evaluate runs zone generation and analysis over caller-supplied data. It
// does not touch Latest.
func (p *Pipeline) Evaluate(resources []models.PointResource, seeds []models.HazardSeed) (*models.Report, error) {
	zones, err := p.generator.GenerateZones(seeds)
	if err != nil {
		return nil, fmt.Errorf("generate zones: %w", err)
	}

	records, err := p.analyzer.Analyze(resources, zones)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	return &models.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: p.clock.Now().UTC(),
		Area:        p.cfg.AreaName,
		Resources:   resources,
		Zones:       zones,
		Records:     records,
		Summary:     models.Summarize(resources, zones, records),
	}, nil
}
