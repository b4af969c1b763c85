// Command hazard-analyze runs a single analysis and writes the report as
// JSON. It reads the same environment as hazard-mapper; flags override the
// resource file and seed table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-hazard-mapper/internal/api"
	"github.com/mr1hm/go-hazard-mapper/internal/config"
	"github.com/mr1hm/go-hazard-mapper/internal/logging"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
	"github.com/mr1hm/go-hazard-mapper/internal/pipeline"
)

func main() {
	osmFile := flag.String("osm-file", "", "read resources from an OSM XML export instead of Overpass")
	seedsFile := flag.String("seeds", "", "YAML hazard seed table (default: built-in Pokhara seeds)")
	out := flag.String("out", "", "write the report JSON here instead of stdout")
	geoOut := flag.String("geojson", "", "also write zones and at-risk points as a GeoJSON FeatureCollection")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	if *osmFile != "" {
		cfg.Source.OSMFile = *osmFile
	}
	if *seedsFile != "" {
		cfg.Hazard.SeedsFile = *seedsFile
	}
	cfg.Source.CacheEnabled = false

	// Logs go to stderr so stdout carries only the report.
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	// Nothing scrapes a one-shot run.
	metrics := observability.NewUnregisteredMetrics()
	pcfg, source, err := pipeline.FromConfig(cfg, logger, metrics)
	if err != nil {
		logging.Fatalf("Failed to configure analysis: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pcfg, source, clockwork.NewRealClock(), logger, metrics)
	report, err := p.Run(ctx)
	if err != nil {
		logging.Fatalf("Analysis failed: %v", err)
	}

	if err := writeJSON(*out, report); err != nil {
		logging.Fatalf("Failed to write report: %v", err)
	}

	if *geoOut != "" {
		fc := api.ZonesGeoJSON(report.Zones)
		fc.Features = append(fc.Features, api.RecordsGeoJSON(report.Records).Features...)
		if err := writeJSON(*geoOut, fc); err != nil {
			logging.Fatalf("Failed to write GeoJSON: %v", err)
		}
	}

	slog.Info("analysis written",
		"resources", report.Summary.TotalResources,
		"zones", report.Summary.TotalZones,
		"at_risk", report.Summary.ResourcesAtRisk,
		"at_risk_percent", fmt.Sprintf("%.1f", report.Summary.AtRiskPercent),
	)
}

// writeJSON writes v to path, or to stdout when path is empty.
func writeJSON(path string, v any) error {
	if path == "" {
		return encodeJSON(os.Stdout, v)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encodeJSON(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
