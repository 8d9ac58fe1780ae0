package batch

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// fileResult is the JSON shape of one batch entry.
type fileResult struct {
	File       string            `json:"file"`
	Kind       Kind              `json:"kind"`
	Result     *nutrition.Result `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs float64           `json:"duration_ms"`
}

func formatBatchResults(r *Result, format string, table nutrition.FieldTable) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(r)
	case FormatCSV:
		return formatCSV(r, table)
	case FormatText, "":
		return formatText(r, table)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatText(r *Result, table nutrition.FieldTable) (string, error) {
	var b strings.Builder
	for i, f := range r.Files {
		jr := r.Results[i]
		_, _ = fmt.Fprintf(&b, "# %s\n", f.Path)
		switch {
		case jr.Err != nil:
			_, _ = fmt.Fprintf(&b, "error: %v\n", jr.Err)
		case jr.Result == nil:
			b.WriteString("error: no result\n")
		default:
			txt, err := nutrition.ToPlainText(jr.Result, table)
			if err != nil {
				return "", err
			}
			b.WriteString(txt)
			b.WriteString("\n")
		}
		if i < len(r.Files)-1 {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func formatJSON(r *Result) (string, error) {
	entries := make([]fileResult, len(r.Files))
	for i, f := range r.Files {
		jr := r.Results[i]
		entries[i] = fileResult{
			File:       f.Path,
			Kind:       f.Kind,
			Result:     jr.Result,
			DurationMs: float64(jr.Duration.Microseconds()) / 1000,
		}
		if jr.Err != nil {
			entries[i].Error = jr.Err.Error()
		}
	}
	out := struct {
		Files []fileResult           `json:"files"`
		Stats pipeline.ParallelStats `json:"stats"`
	}{Files: entries, Stats: r.Stats()}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

// formatCSV writes one row per extracted field. Files without values get a
// single row carrying the error.
func formatCSV(r *Result, table nutrition.FieldTable) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"file", "field", "value", "per_100g", "error"})

	for i, f := range r.Files {
		jr := r.Results[i]
		switch {
		case jr.Err != nil:
			_ = w.Write([]string{f.Path, "", "", "", jr.Err.Error()})
			continue
		case jr.Result == nil:
			_ = w.Write([]string{f.Path, "", "", "", "no result"})
			continue
		case !jr.Result.Success:
			_ = w.Write([]string{f.Path, "", "", "", jr.Result.Error})
			continue
		}
		per100g := fmt.Sprint(jr.Result.Per100g)
		for _, ft := range table.Types() {
			v, ok := jr.Result.NutritionData[string(ft)]
			if !ok {
				continue
			}
			_ = w.Write([]string{f.Path, string(ft), fmt.Sprint(v), per100g, ""})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
