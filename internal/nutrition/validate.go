package nutrition

import (
	"log/slog"
	"math"
)

const (
	saturatedFatLimit = 1.1
	sugarLimit        = 1.2
	clampFactor       = 0.95
)

// Validate enforces cross-field consistency and rounds the final values.
// Saturated fat cannot meaningfully exceed total fat, nor sugars total
// carbohydrate; offending values are clamped to 95% of their parent.
func Validate(values map[FieldType]float64, logger *slog.Logger) map[FieldType]float64 {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(map[FieldType]float64, len(values))
	for k, v := range values {
		out[k] = v
	}

	clamp(out, FieldSaturatedFats, FieldFats, saturatedFatLimit, logger)
	clamp(out, FieldSugars, FieldCarbs, sugarLimit, logger)

	for k, v := range out {
		if k == FieldSalt {
			out[k] = roundTo(v, 3)
		} else {
			out[k] = roundTo(v, 2)
		}
	}
	return out
}

func clamp(values map[FieldType]float64, child, parent FieldType, limit float64, logger *slog.Logger) {
	c, okC := values[child]
	p, okP := values[parent]
	if !okC || !okP {
		return
	}
	if c > limit*p {
		clamped := clampFactor * p
		logger.Debug("Clamped inconsistent value",
			"field", child, "value", c, "parent", parent, "parent_value", p, "clamped", clamped)
		values[child] = clamped
	}
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
