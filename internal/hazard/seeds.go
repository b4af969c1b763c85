package hazard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

// DefaultSeeds is the Pokhara demonstration table. These are synthetic
// zones, not output of a hazard model.
func DefaultSeeds() []models.HazardSeed {
	return []models.HazardSeed{
		{
			ID:           "flood-seti-river",
			Type:         models.HazardTypeFlood,
			Severity:     models.SeverityHigh,
			Center:       models.Coordinate{Lat: 28.228, Lon: 83.991},
			RadiusMeters: 1200,
		},
		{
			ID:           "landslide-sarangkot",
			Type:         models.HazardTypeLandslide,
			Severity:     models.SeverityHigh,
			Center:       models.Coordinate{Lat: 28.243, Lon: 83.954},
			RadiusMeters: 1000,
		},
	}
}

type seedFile struct {
	Seeds []models.HazardSeed `yaml:"seeds"`
}

// LoadSeeds reads a YAML seed table of the form:
//
//	seeds:
//	  - id: flood-seti-river
//	    type: flood
//	    severity: high
//	    center: {lat: 28.228, lon: 83.991}
//	    radius_m: 1200
func LoadSeeds(path string) ([]models.HazardSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seeds file: %w", err)
	}
	return ParseSeeds(data)
}

func ParseSeeds(data []byte) ([]models.HazardSeed, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error decoding seeds: %w", err)
	}
	if len(f.Seeds) == 0 {
		return nil, fmt.Errorf("%w: seeds file defines no seeds", ErrInvalidSeed)
	}
	return f.Seeds, nil
}
