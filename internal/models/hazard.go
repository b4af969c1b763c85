package models

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

type HazardType string

const (
	HazardTypeFlood     HazardType = "flood"
	HazardTypeLandslide HazardType = "landslide"
	HazardTypeUnknown   HazardType = "unknown"
)

func ParseHazardType(s string) HazardType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flood":
		return HazardTypeFlood
	case "landslide":
		return HazardTypeLandslide
	default:
		return HazardTypeUnknown
	}
}

// Label is the display name used by the map legend, e.g. "Flood Risk Zone".
func (t HazardType) Label() string {
	switch t {
	case HazardTypeFlood:
		return "Flood Risk Zone"
	case HazardTypeLandslide:
		return "Landslide Risk Zone"
	default:
		return "Risk Zone"
	}
}

// Color is the fill hint for the renderer: red for floods, orange otherwise.
func (t HazardType) Color() string {
	if t == HazardTypeFlood {
		return "red"
	}
	return "orange"
}

// Severity is an ordinal hazard intensity. The zero value is unspecified
// and sorts below Low.
type Severity int

const (
	SeverityUnspecified Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unspecified"
	}
}

func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	case "high":
		return SeverityHigh
	default:
		return SeverityUnspecified
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v := ParseSeverity(string(b))
	if v == SeverityUnspecified && !strings.EqualFold(strings.TrimSpace(string(b)), "unspecified") {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = v
	return nil
}

// HazardSeed is one row of the static hazard configuration table.
type HazardSeed struct {
	ID           string            `json:"id" yaml:"id"`
	Type         HazardType        `json:"type" yaml:"type"`
	Severity     Severity          `json:"severity" yaml:"severity"`
	Center       Coordinate        `json:"center" yaml:"center"`
	RadiusMeters float64           `json:"radius_m" yaml:"radius_m"`
	Attributes   map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// HazardZone is a buffered seed. An empty Geometry means the zone has no
// usable shape and is skipped by analysis.
type HazardZone struct {
	ID           string            `json:"id"`
	Type         HazardType        `json:"type"`
	Severity     Severity          `json:"severity"`
	Center       Coordinate        `json:"center"`
	RadiusMeters float64           `json:"radius_m"`
	Geometry     orb.Polygon       `json:"-"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// VulnerabilityRecord pairs a resource with one zone that contains it.
type VulnerabilityRecord struct {
	Resource      PointResource `json:"resource"`
	ResourceIndex int           `json:"resource_index"` // position in the analyzed input; IDs may repeat or be empty
	Zone          HazardZone    `json:"zone"`
}
