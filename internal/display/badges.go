package display

import (
	"github.com/jamesruggles/carbonara/internal/badge"
	"github.com/jamesruggles/carbonara/internal/fieldpath"
	"github.com/jamesruggles/carbonara/internal/registry"
)

// legacyCarbonPaths cover records stored before schemas described a carbon
// field.
const legacyCarbonPaths = "data.carbonEmissions.total,data.results.carbonEstimate"

// colors assigns one badge per record. Each value is compared against the
// average of the same metric across the group's records that have it.
func (b *Builder) colors(tool string, schema *registry.DisplaySchema, recs []map[string]any) []badge.Color {
	metric := badge.CO2Emissions
	deployment := b.schemas != nil && b.schemas.UsesDeploymentBadge(tool)
	if deployment {
		metric = badge.CarbonIntensity
	}

	values := make([]*float64, len(recs))
	var present []float64
	for i, rec := range recs {
		var v float64
		var ok bool
		if deployment {
			v, ok = maxDeploymentIntensity(rec)
		} else {
			v, ok = carbonValue(rec, schema)
		}
		if ok {
			values[i] = &v
			present = append(present, v)
		}
	}

	avg := badge.Average(present)
	out := make([]badge.Color, len(recs))
	for i, v := range values {
		if v == nil {
			out[i] = badge.None
			continue
		}
		out[i] = b.badges.RelativeColor(metric, *v, avg)
	}
	return out
}

func maxDeploymentIntensity(rec map[string]any) (float64, bool) {
	deployments, _ := fieldpath.ExtractValue(rec, "data.deployments").([]any)
	var best float64
	found := false
	for _, d := range deployments {
		n, ok := fieldpath.ToFloat(fieldpath.ExtractValue(d, "carbonIntensity"))
		if !ok {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

func carbonValue(rec map[string]any, schema *registry.DisplaySchema) (float64, bool) {
	if schema != nil {
		for _, f := range schema.Fields {
			if f.Type != fieldpath.TypeCarbon {
				continue
			}
			if n, ok := fieldpath.ToFloat(fieldpath.ExtractValue(rec, f.Path)); ok {
				return n, true
			}
			break
		}
	}
	return fieldpath.ToFloat(fieldpath.ExtractValue(rec, legacyCarbonPaths))
}
