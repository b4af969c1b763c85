package models

import "time"

// Report is the full output of one fetch → generate → analyze run.
type Report struct {
	RunID       string                `json:"run_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	Area        string                `json:"area"`
	Resources   []PointResource       `json:"resources"`
	Zones       []HazardZone          `json:"zones"`
	Records     []VulnerabilityRecord `json:"records"`
	Summary     Summary               `json:"summary"`
	Duration    time.Duration         `json:"duration_ns"`
}

type Summary struct {
	TotalResources  int            `json:"total_resources"`
	TotalZones      int            `json:"total_zones"`
	ResourcesAtRisk int            `json:"resources_at_risk"` // distinct resources, not records
	Records         int            `json:"records"`
	AtRiskPercent   float64        `json:"at_risk_percent"`
	MaxSeverity     Severity       `json:"max_severity"`
	BySeverity      map[string]int `json:"by_severity"`
	ByHazardType    map[string]int `json:"by_hazard_type"`
	ByCategory      map[string]int `json:"by_category"`
}

// Summarize computes dashboard figures. Records are counted per zone for the
// severity and hazard breakdowns and per distinct resource for categories.
// Resources are told apart by ResourceIndex, and only resources with a
// location count toward the total.
func Summarize(resources []PointResource, zones []HazardZone, records []VulnerabilityRecord) Summary {
	s := Summary{
		TotalZones:   len(zones),
		Records:      len(records),
		BySeverity:   make(map[string]int),
		ByHazardType: make(map[string]int),
		ByCategory:   make(map[string]int),
	}
	for _, r := range resources {
		if r.Location != nil {
			s.TotalResources++
		}
	}

	seen := make(map[int]struct{}, len(records))
	for _, r := range records {
		s.BySeverity[r.Zone.Severity.String()]++
		s.ByHazardType[string(r.Zone.Type)]++
		if r.Zone.Severity > s.MaxSeverity {
			s.MaxSeverity = r.Zone.Severity
		}
		if _, ok := seen[r.ResourceIndex]; ok {
			continue
		}
		seen[r.ResourceIndex] = struct{}{}
		s.ByCategory[r.Resource.Category]++
	}
	s.ResourcesAtRisk = len(seen)

	if s.TotalResources > 0 {
		s.AtRiskPercent = float64(s.ResourcesAtRisk) / float64(s.TotalResources) * 100
	}
	return s
}

// RunSummary is the persisted trace of a report. Records themselves are
// recomputed on demand and never stored.
type RunSummary struct {
	RunID           string        `json:"run_id"`
	Area            string        `json:"area"`
	GeneratedAt     time.Time     `json:"generated_at"`
	TotalResources  int           `json:"total_resources"`
	TotalZones      int           `json:"total_zones"`
	ResourcesAtRisk int           `json:"resources_at_risk"`
	Records         int           `json:"records"`
	MaxSeverity     Severity      `json:"max_severity"`
	Duration        time.Duration `json:"duration_ns"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (r *Report) RunSummary() RunSummary {
	return RunSummary{
		RunID:           r.RunID,
		Area:            r.Area,
		GeneratedAt:     r.GeneratedAt,
		TotalResources:  r.Summary.TotalResources,
		TotalZones:      r.Summary.TotalZones,
		ResourcesAtRisk: r.Summary.ResourcesAtRisk,
		Records:         r.Summary.Records,
		MaxSeverity:     r.Summary.MaxSeverity,
		Duration:        r.Duration,
	}
}
