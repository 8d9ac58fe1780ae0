package nutrition

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Messages reported in Result.Error.
const (
	NoTextMessage   = "No text detected"
	NoValuesMessage = "No nutrition values found"
)

// Result is the outcome of one scan.
type Result struct {
	Success       bool               `json:"success"`
	NutritionData map[string]float64 `json:"nutrition_data,omitempty"`
	Per100g       bool               `json:"per_100g"`
	DebugInfo     *DebugInfo         `json:"debug_info,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// DebugInfo carries provenance for the selected values.
type DebugInfo struct {
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	SourceText       map[string]string  `json:"source_text,omitempty"`
	TokenCount       int                `json:"token_count"`
	Source           string             `json:"source,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// FieldCount returns the number of extracted fields.
func (r *Result) FieldCount() int {
	if r == nil {
		return 0
	}
	return len(r.NutritionData)
}

// ToJSON serializes a result to pretty JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainText writes one "field: value" line per extracted field, in table order.
func ToPlainText(res *Result, table FieldTable) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	if !res.Success {
		return "error: " + res.Error, nil
	}
	var lines []string
	for _, ft := range table.Types() {
		v, ok := res.NutritionData[string(ft)]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", ft, formatValue(v)))
	}
	return strings.Join(lines, "\n"), nil
}

// ToCSV exports extracted fields with confidence and provenance.
func ToCSV(res *Result, table FieldTable) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"field", "value", "confidence", "source"})
	for _, ft := range table.Types() {
		v, ok := res.NutritionData[string(ft)]
		if !ok {
			continue
		}
		conf, src := "", ""
		if res.DebugInfo != nil {
			if c, ok := res.DebugInfo.ConfidenceScores[string(ft)]; ok {
				conf = fmt.Sprintf("%.3f", c)
			}
			src = res.DebugInfo.SourceText[string(ft)]
		}
		_ = w.Write([]string{string(ft), formatValue(v), conf, src})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
