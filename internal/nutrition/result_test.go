package nutrition

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	return &Result{
		Success:       true,
		NutritionData: map[string]float64{"fats": 9.66, "calories": 370},
		Per100g:       true,
		DebugInfo: &DebugInfo{
			ConfidenceScores: map[string]float64{"fats": 1.51, "calories": 1.81},
			SourceText:       map[string]string{"fats": "Rasva -> 9,66 g", "calories": "Energia -> 370 kcal"},
			TokenCount:       4,
		},
	}
}

func TestToJSON(t *testing.T) {
	s, err := ToJSON(sampleResult())
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &back))
	assert.Equal(t, true, back["success"])
	assert.Equal(t, true, back["per_100g"])
	assert.Contains(t, back, "nutrition_data")
	debug := back["debug_info"].(map[string]any)
	assert.Contains(t, debug, "confidence_scores")
	assert.NotContains(t, back, "error")

	_, err = ToJSON(nil)
	assert.Error(t, err)
}

func TestToJSON_Failure(t *testing.T) {
	s, err := ToJSON(Failure(NoTextMessage))
	require.NoError(t, err)
	assert.Contains(t, s, `"success": false`)
	assert.Contains(t, s, `"error": "No text detected"`)
	assert.NotContains(t, s, "nutrition_data")
}

func TestToPlainText(t *testing.T) {
	txt, err := ToPlainText(sampleResult(), DefaultFields())
	require.NoError(t, err)
	assert.Equal(t, "calories: 370\nfats: 9.66", txt)

	txt, err = ToPlainText(Failure(NoTextMessage), DefaultFields())
	require.NoError(t, err)
	assert.Equal(t, "error: No text detected", txt)
}

func TestToCSV(t *testing.T) {
	out, err := ToCSV(sampleResult(), DefaultFields())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "field,value,confidence,source", lines[0])
	assert.Equal(t, "calories,370,1.810,Energia -> 370 kcal", lines[1])
	assert.Equal(t, `fats,9.66,1.510,"Rasva -> 9,66 g"`, lines[2])
}

func TestFieldCount(t *testing.T) {
	assert.Equal(t, 2, sampleResult().FieldCount())
	var nilRes *Result
	assert.Equal(t, 0, nilRes.FieldCount())
}
