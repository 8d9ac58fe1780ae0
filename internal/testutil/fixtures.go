package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// LabelFixture is a token dump with the fields a scan should produce.
type LabelFixture struct {
	Name        string                `json:"name" yaml:"name"`
	Description string                `json:"description" yaml:"description"`
	Tokens      []nutrition.TextToken `json:"tokens" yaml:"tokens"`
	Expected    map[string]float64    `json:"expected,omitempty" yaml:"expected,omitempty"`
	Per100g     bool                  `json:"per_100g" yaml:"per_100g"`
	// ExpectError is the failure message for fixtures that must not succeed.
	ExpectError string `json:"expect_error,omitempty" yaml:"expect_error,omitempty"`
}

// LabelFixtures returns the built-in fixtures.
func LabelFixtures() []LabelFixture {
	return []LabelFixture{
		{
			Name:        "energy_two_columns",
			Description: "Energy row with per 100 g and per portion values",
			Tokens: []nutrition.TextToken{
				{Text: "Energia", Confidence: 0.9, X: 10, Y: 10},
				{Text: "206 kcal", Confidence: 0.95, X: 80, Y: 12},
				{Text: "103 kcal", Confidence: 0.9, X: 160, Y: 12},
			},
			Expected: map[string]float64{"calories": 206},
		},
		{
			Name:        "single_fragment_fat",
			Description: "Label and value read as one fragment with a decimal comma",
			Tokens:      []nutrition.TextToken{{Text: "Rasva 9,66 g", Confidence: 0.9, X: 10, Y: 10}},
			Expected:    map[string]float64{"fats": 9.66},
		},
		{
			Name:        "lost_leading_digit",
			Description: "Protein value whose leading digit was read as a dot",
			Tokens: []nutrition.TextToken{
				{Text: "Proteiini", Confidence: 0.9, X: 10, Y: 10},
				{Text: ".14g", Confidence: 0.8, X: 100, Y: 10},
			},
			Expected: map[string]float64{"proteins": 14},
		},
		{
			Name:        "saturated_fat_clamp",
			Description: "Saturated fat above total fat is clamped to 95 percent",
			Tokens: []nutrition.TextToken{
				{Text: "Rasva", Confidence: 0.9, X: 10, Y: 10},
				{Text: "5,0 g", Confidence: 0.9, X: 200, Y: 10},
				{Text: "josta tyydyttynyttä", Confidence: 0.9, X: 10, Y: 50},
				{Text: "6,0 g", Confidence: 0.9, X: 200, Y: 50},
			},
			Expected: map[string]float64{"fats": 5, "saturated_fats": 4.75},
		},
		{
			Name:        "headed_label",
			Description: "Finnish label with a per 100 g column header",
			Tokens: []nutrition.TextToken{
				{Text: "Ravintosisältö", Confidence: 0.9, X: 10, Y: 0},
				{Text: "100 g", Confidence: 0.9, X: 200, Y: 0},
				{Text: "Annos", Confidence: 0.9, X: 300, Y: 0},
				{Text: "Energia", Confidence: 0.9, X: 10, Y: 40},
				{Text: "1550 kJ / 370 kcal", Confidence: 0.9, X: 200, Y: 40},
				{Text: "465 kJ / 111 kcal", Confidence: 0.9, X: 300, Y: 40},
				{Text: "Proteiini", Confidence: 0.9, X: 10, Y: 80},
				{Text: "12 g", Confidence: 0.9, X: 200, Y: 80},
				{Text: "3,6 g", Confidence: 0.9, X: 300, Y: 80},
			},
			Expected: map[string]float64{"calories": 370, "proteins": 12},
			Per100g:  true,
		},
		{
			Name:        "empty",
			Description: "No tokens at all",
			Tokens:      []nutrition.TextToken{},
			ExpectError: nutrition.NoTextMessage,
		},
	}
}

// Fixture returns a built-in fixture by name.
func Fixture(t *testing.T, name string) LabelFixture {
	t.Helper()
	for _, f := range LabelFixtures() {
		if f.Name == name {
			return f
		}
	}
	require.FailNow(t, "unknown fixture", name)
	return LabelFixture{}
}

// SaveFixture writes a fixture as JSON into dir and returns its path.
func SaveFixture(t *testing.T, dir string, fixture LabelFixture) string {
	t.Helper()
	data, err := json.MarshalIndent(fixture, "", "  ")
	require.NoError(t, err)
	return WriteFile(t, filepath.Join(dir, fixture.Name+".json"), data)
}

// LoadFixture reads a fixture file written by SaveFixture.
func LoadFixture(t *testing.T, path string) LabelFixture {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // G304: test fixture path
	require.NoError(t, err)
	var f LabelFixture
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// WriteTokenFile writes tokens as a token dump. The format follows the
// extension of name: .json, or .yaml/.yml.
func WriteTokenFile(t *testing.T, dir, name string, tokens []nutrition.TextToken) string {
	t.Helper()
	dump := struct {
		Tokens []nutrition.TextToken `json:"tokens" yaml:"tokens"`
	}{Tokens: tokens}

	var data []byte
	var err error
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(dump)
	default:
		data, err = json.MarshalIndent(dump, "", "  ")
	}
	require.NoError(t, err)
	return WriteFile(t, filepath.Join(dir, name), data)
}
