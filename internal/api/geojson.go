package api

import (
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
)

// ResourcesGeoJSON emits located resources; atRisk is aligned with resources.
func ResourcesGeoJSON(resources []models.PointResource, atRisk []bool) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for i, r := range resources {
		if r.Location == nil {
			continue
		}
		f := geojson.NewFeature(r.Location.Point())
		f.ID = r.ID
		f.Properties["id"] = r.ID
		f.Properties["name"] = r.Name()
		f.Properties["category"] = r.Category
		f.Properties["at_risk"] = i < len(atRisk) && atRisk[i]
		fc.Append(f)
	}

	return fc
}

func ZonesGeoJSON(zones []models.HazardZone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, z := range zones {
		f := geojson.NewFeature(z.Geometry)
		f.ID = z.ID
		f.Properties["id"] = z.ID
		f.Properties["hazard_type"] = string(z.Type)
		f.Properties["severity"] = z.Severity.String()
		f.Properties["radius_m"] = z.RadiusMeters
		f.Properties["label"] = zoneLabel(z)
		f.Properties["color"] = zoneColor(z)
		fc.Append(f)
	}

	return fc
}

// RecordsGeoJSON emits one point feature per (resource, zone) pair, so a
// resource inside two zones appears twice.
func RecordsGeoJSON(records []models.VulnerabilityRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, rec := range records {
		f := geojson.NewFeature(rec.Resource.Location.Point())
		f.Properties["resource_id"] = rec.Resource.ID
		f.Properties["name"] = rec.Resource.Name()
		f.Properties["category"] = rec.Resource.Category
		f.Properties["zone_id"] = rec.Zone.ID
		f.Properties["hazard_type"] = string(rec.Zone.Type)
		f.Properties["severity"] = rec.Zone.Severity.String()
		f.Properties["label"] = zoneLabel(rec.Zone)
		f.Properties["color"] = zoneColor(rec.Zone)
		fc.Append(f)
	}

	return fc
}

func zoneLabel(z models.HazardZone) string {
	if l := z.Attributes["label"]; l != "" {
		return l
	}
	return z.Type.Label()
}

func zoneColor(z models.HazardZone) string {
	if c := z.Attributes["color"]; c != "" {
		return c
	}
	return z.Type.Color()
}
