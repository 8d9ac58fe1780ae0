package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLookup(t *testing.T, ft FieldType) FieldSpec {
	t.Helper()
	spec, ok := DefaultFields().Lookup(ft)
	require.True(t, ok, "field %s missing", ft)
	return spec
}

func TestMatchesLabel(t *testing.T) {
	tests := []struct {
		field FieldType
		text  string
		want  bool
	}{
		{FieldCalories, "Energia", true},
		{FieldCalories, "Energy value", true},
		{FieldCalories, "Brennwert", true},
		{FieldFats, "Rasva", true},
		{FieldFats, "Fat", true},
		{FieldFats, "josta tyydyttynyttä rasvaa", false},
		{FieldFats, "Saturated fat", false},
		{FieldFats, "Rasva 9,66 g", true},
		{FieldSaturatedFats, "josta tyydyttynyttä rasvaa", true},
		{FieldSaturatedFats, "of which saturates", true},
		{FieldSaturatedFats, "monityydyttymätöntä", false},
		{FieldCarbs, "Hiilihydraatit", true},
		{FieldCarbs, "Carbohydrate of which sugars", false},
		{FieldCarbs, "Hiilihydraatit, joista sokereita", false},
		{FieldCarbs, "hiilihydraatteja", true},
		{FieldSugars, "josta sokereita", true},
		{FieldSugars, "Hiilihydraatit, joista sokereita", true},
		{FieldSugars, "Sokeri", true},
		{FieldSaturatedFats, "tyydyttyneitä rasvahappoja", true},
		{FieldFiber, "Ravintokuitu", true},
		{FieldProteins, "PROTEIINI", true},
		{FieldProteins, "Eiweiß", true},
		{FieldSalt, "Suola", true},
		{FieldSalt, "suolaa", true},
		{FieldSalt, "Salt 1,1 g", true},
		{FieldSalt, "Salaatti", false},
		{FieldSalt, "Ravintosisältö", false},
		{FieldSalt, "  ", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.field)+"/"+tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, mustLookup(t, tt.field).MatchesLabel(tt.text))
		})
	}
}

func TestIsReasonable(t *testing.T) {
	tests := []struct {
		field FieldType
		value float64
		want  bool
	}{
		{FieldCalories, 370, true},
		{FieldCalories, 1000, false},
		{FieldCalories, 0, false},
		{FieldFats, 0, false},
		{FieldFats, 0.1, true},
		{FieldFats, 101, false},
		{FieldSugars, 0, true},
		{FieldFiber, 0, true},
		{FieldSaturatedFats, 0, true},
		{FieldProteins, 0.05, false},
		{FieldSalt, 0, true},
		{FieldSalt, 0.005, false},
		{FieldSalt, 5, true},
		{FieldSalt, 12, false},
	}
	for _, tt := range tests {
		spec := mustLookup(t, tt.field)
		assert.Equal(t, tt.want, spec.IsReasonable(tt.value), "%s %g", tt.field, tt.value)
	}
}

func TestDefaultFields(t *testing.T) {
	table := DefaultFields()
	require.NoError(t, table.Validate())
	assert.Equal(t, []FieldType{
		FieldCalories, FieldFats, FieldCarbs, FieldProteins,
		FieldSaturatedFats, FieldFiber, FieldSugars, FieldSalt,
	}, table.Types())

	_, ok := table.Lookup("alcohol")
	assert.False(t, ok)
}

func TestFieldTableValidate(t *testing.T) {
	base := func() FieldTable { return DefaultFields() }

	tests := []struct {
		name   string
		mutate func(FieldTable) FieldTable
		errMsg string
	}{
		{"empty", func(FieldTable) FieldTable { return FieldTable{} }, "empty"},
		{"duplicate name", func(ft FieldTable) FieldTable {
			ft[1].Type = FieldCalories
			return ft
		}, "duplicate field"},
		{"duplicate priority", func(ft FieldTable) FieldTable {
			ft[1].Priority = 1
			return ft
		}, "share priority"},
		{"no keywords", func(ft FieldTable) FieldTable {
			ft[2].Keywords = nil
			return ft
		}, "no keywords"},
		{"inverted range", func(ft FieldTable) FieldTable {
			ft[0].Min, ft[0].Max = 900, 1
			return ft
		}, "invalid range"},
		{"uppercase keyword", func(ft FieldTable) FieldTable {
			ft[3].Keywords = []string{"Protein"}
			return ft
		}, "not lowercase"},
		{"keyword also excluded", func(ft FieldTable) FieldTable {
			ft[1].ExcludeKeywords = append(ft[1].ExcludeKeywords, "rasva")
			return ft
		}, "keyword and exclusion"},
		{"unnamed", func(ft FieldTable) FieldTable {
			ft[0].Type = ""
			return ft
		}, "no name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(base()).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
