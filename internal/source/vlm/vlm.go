// Package vlm reads nutrition values straight from a label photo by asking a
// vision-language model for per-100g JSON.
package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/disintegration/imaging"
)

// Prompt asks for the eight canonical fields as a flat JSON object.
const Prompt = `You are reading a photo of a nutrition facts label.
Return ONLY a JSON object with the values per 100 g (or per 100 ml) using these keys:
calories (kcal), fats (g), saturated_fats (g), carbs (g), sugars (g), fiber (g), proteins (g), salt (g).
Omit keys that are not printed on the label. If only kJ is printed, convert to kcal.
Do not use per-portion values. Do not add any text outside the JSON object.`

// Provider sends one prompt and one image to a model and returns its text reply.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string, jpeg []byte) (string, error)
}

// fieldAliases maps keys models commonly return to canonical field names.
var fieldAliases = map[string]nutrition.FieldType{
	"calories":       nutrition.FieldCalories,
	"energy":         nutrition.FieldCalories,
	"energy_kcal":    nutrition.FieldCalories,
	"kcal":           nutrition.FieldCalories,
	"fats":           nutrition.FieldFats,
	"fat":            nutrition.FieldFats,
	"total_fat":      nutrition.FieldFats,
	"saturated_fats": nutrition.FieldSaturatedFats,
	"saturated_fat":  nutrition.FieldSaturatedFats,
	"saturates":      nutrition.FieldSaturatedFats,
	"carbs":          nutrition.FieldCarbs,
	"carbohydrates":  nutrition.FieldCarbs,
	"carbohydrate":   nutrition.FieldCarbs,
	"sugars":         nutrition.FieldSugars,
	"sugar":          nutrition.FieldSugars,
	"fiber":          nutrition.FieldFiber,
	"fibre":          nutrition.FieldFiber,
	"proteins":       nutrition.FieldProteins,
	"protein":        nutrition.FieldProteins,
	"salt":           nutrition.FieldSalt,
}

// Extractor implements nutrition.StructuredSource.
type Extractor struct {
	provider Provider
	logger   *slog.Logger
}

// New creates an extractor around a provider.
func New(p Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: p, logger: logger}
}

// Name identifies the underlying provider.
func (e *Extractor) Name() string { return e.provider.Name() }

// ExtractFields asks the model for per-100g values.
func (e *Extractor) ExtractFields(ctx context.Context, img image.Image) (map[string]float64, error) {
	const op = "ExtractFields"
	if img == nil {
		return nil, source.Wrap(op, source.ErrSourceFailed, "nil image")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, source.Wrap(op, err, "failed to encode image")
	}

	reply, err := e.provider.Complete(ctx, Prompt, buf.Bytes())
	if err != nil {
		return nil, source.Wrap(op, err, e.provider.Name())
	}
	fields, err := ParseReply(reply)
	if err != nil {
		return nil, source.Wrap(op, err, e.provider.Name())
	}
	e.logger.Debug("VLM extraction complete", "provider", e.provider.Name(), "fields", len(fields))
	return fields, nil
}

// ParseReply extracts canonical per-100g values from a model reply. The
// first JSON object in the text is used; a nested "per_100g" or
// "nutrition_data" object takes precedence over top-level keys.
func ParseReply(reply string) (map[string]float64, error) {
	obj := firstJSONObject(reply)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", source.ErrEmptyResponse)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrEmptyResponse, err)
	}
	for _, key := range []string{"per_100g", "nutrition_data", "per100g"} {
		if nested, ok := raw[key].(map[string]any); ok {
			raw = nested
			break
		}
	}

	out := make(map[string]float64)
	for k, v := range raw {
		ft, ok := fieldAliases[normalizeKey(k)]
		if !ok {
			continue
		}
		f, ok := toNumber(v)
		if !ok || f < 0 {
			continue
		}
		if _, seen := out[string(ft)]; seen && normalizeKey(k) != string(ft) {
			continue
		}
		out[string(ft)] = f
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no nutrition values in reply", source.ErrEmptyResponse)
	}
	return out, nil
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, " ", "_")
	return strings.ReplaceAll(k, "-", "_")
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.ToLower(n))
		s = strings.TrimRight(s, "abcdefghijklmnopqrstuvwxyz ")
		s = strings.Replace(s, ",", ".", 1)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// firstJSONObject returns the first balanced {...} span, honouring strings.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
