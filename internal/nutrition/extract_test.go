package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want NumericCandidate
	}{
		{"decimal comma with label", "Rasva 9,66 g", NumericCandidate{9.66, UnitGrams}},
		{"decimal dot", "8.0 g", NumericCandidate{8.0, UnitGrams}},
		{"lost leading digit two digits", ".14g", NumericCandidate{14, UnitGrams}},
		{"lost leading digit one digit", ".5g", NumericCandidate{0.5, UnitGrams}},
		{"lost decimals", "14.g", NumericCandidate{14, UnitGrams}},
		{"combined energy", "1550 kJ / 370 kcal", NumericCandidate{370, UnitKilocalories}},
		{"combined energy no spaces", "1550kJ|370kcal", NumericCandidate{370, UnitKilocalories}},
		{"combined energy decimals", "1046,5 kJ 250,1 kcal", NumericCandidate{250.1, UnitKilocalories}},
		{"kcal integer", "206 kcal", NumericCandidate{206, UnitKilocalories}},
		{"kcal decimal", "2.5kcal", NumericCandidate{2.5, UnitKilocalories}},
		{"kilojoules", "1550 kJ", NumericCandidate{1550, UnitKilojoules}},
		{"milligrams", "250 mg", NumericCandidate{250, UnitMilligrams}},
		{"decimal milligrams", "3,5 mg", NumericCandidate{3.5, UnitMilligrams}},
		{"small fraction", "0,5 g", NumericCandidate{0.5, UnitGrams}},
		{"less than small fraction", "<0,5 g", NumericCandidate{0.5, UnitGrams}},
		{"integer grams", "12 g", NumericCandidate{12, UnitGrams}},
		{"header with energy", "100 g kohti 206 kcal", NumericCandidate{206, UnitKilocalories}},
		{"fullwidth digits", "１２ g", NumericCandidate{12, UnitGrams}},
		{"grouped kilojoules", "Energia 2 060 kJ", NumericCandidate{2060, UnitKilojoules}},
		{"grouped combined energy", "2 060 kJ / 490 kcal", NumericCandidate{490, UnitKilocalories}},
		{"number ending in 100", "1100 g", NumericCandidate{1100, UnitGrams}},
		{"milligrams ending in 100", "2100 mg", NumericCandidate{2100, UnitMilligrams}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.text)
			require.True(t, ok, "expected a value from %q", tt.text)
			assert.InDelta(t, tt.want.Value, got.Value, 1e-9)
			assert.Equal(t, tt.want.Unit, got.Unit)
		})
	}
}

func TestExtract_Rejected(t *testing.T) {
	for _, text := range []string{
		"",
		"Proteiini",
		"12%",
		"per 100 g",
		"100g",
		"9,66 g 12%",
		"Ravintosisältö /100 g",
		"annos kohti",
		"0,5",
		"Per 100 ml",
		"/ 100 g",
	} {
		t.Run(text, func(t *testing.T) {
			_, ok := Extract(text)
			assert.False(t, ok)
		})
	}
}

func TestExtract_FirstMatchWins(t *testing.T) {
	got, ok := Extract("3,2 g 7 g")
	require.True(t, ok)
	assert.InDelta(t, 3.2, got.Value, 1e-9)
}

func TestNumericCandidateString(t *testing.T) {
	assert.Equal(t, "9.66 g", NumericCandidate{9.66, UnitGrams}.String())
}
