package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyColumns(t *testing.T) {
	tokens := []TextToken{
		{Text: "Ravintosisältö", X: 10, Y: 0},
		{Text: "100 g", X: 200, Y: 0},
		{Text: "per 100g", X: 220, Y: 400},
		{Text: "Annos", X: 300, Y: 0},
	}
	layout := ClassifyColumns(tokens, 50)
	require.NotNil(t, layout.Per100gX)
	require.NotNil(t, layout.PortionX)
	assert.InDelta(t, 210, *layout.Per100gX, 1e-9)
	assert.InDelta(t, 300, *layout.PortionX, 1e-9)
	assert.True(t, layout.HasColumns())

	tests := []struct {
		x    float64
		want ColumnType
	}{
		{205, ColumnPer100g},
		{160, ColumnPer100g},
		{290, ColumnPortion},
		{258, ColumnPortion},
		{255, ColumnPer100g},
		{100, ColumnUnknown},
		{400, ColumnUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, layout.Classify(tt.x), "x=%g", tt.x)
	}
}

func TestClassifyColumns_NoHeaders(t *testing.T) {
	layout := ClassifyColumns([]TextToken{{Text: "Energia"}, {Text: "206 kcal", X: 80}}, 50)
	assert.Nil(t, layout.Per100gX)
	assert.Nil(t, layout.PortionX)
	assert.False(t, layout.HasColumns())
	assert.Equal(t, ColumnUnknown, layout.Classify(80))
	assert.Equal(t, "per100g=- portion=-", layout.String())
}

func TestClassifyColumns_LargerNumberIsNotHeader(t *testing.T) {
	layout := ClassifyColumns([]TextToken{{Text: "1100 g", X: 120}, {Text: "2100 ml", X: 140}}, 50)
	assert.Nil(t, layout.Per100gX)
}

func TestClassifyColumns_TokenInBothGroups(t *testing.T) {
	layout := ClassifyColumns([]TextToken{{Text: "100 g / annos", X: 120}}, 50)
	require.NotNil(t, layout.Per100gX)
	require.NotNil(t, layout.PortionX)
	assert.Equal(t, *layout.Per100gX, *layout.PortionX)
}

func TestColumnLayout_ZeroToleranceUsesDefault(t *testing.T) {
	x := 100.0
	layout := ColumnLayout{Per100gX: &x}
	assert.Equal(t, ColumnPer100g, layout.Classify(140))
	assert.Equal(t, ColumnUnknown, layout.Classify(160))
}
