package nutrition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   map[FieldType]float64
		want map[FieldType]float64
	}{
		{
			name: "saturated fat above total fat",
			in:   map[FieldType]float64{FieldFats: 5.0, FieldSaturatedFats: 6.0},
			want: map[FieldType]float64{FieldFats: 5.0, FieldSaturatedFats: 4.75},
		},
		{
			name: "saturated fat within margin",
			in:   map[FieldType]float64{FieldFats: 5.0, FieldSaturatedFats: 5.4},
			want: map[FieldType]float64{FieldFats: 5.0, FieldSaturatedFats: 5.4},
		},
		{
			name: "sugars above carbs",
			in:   map[FieldType]float64{FieldCarbs: 10, FieldSugars: 13},
			want: map[FieldType]float64{FieldCarbs: 10, FieldSugars: 9.5},
		},
		{
			name: "sugars without carbs untouched",
			in:   map[FieldType]float64{FieldSugars: 13},
			want: map[FieldType]float64{FieldSugars: 13},
		},
		{
			name: "rounding",
			in:   map[FieldType]float64{FieldSalt: 1.23456, FieldFats: 9.666, FieldCalories: 250.00478},
			want: map[FieldType]float64{FieldSalt: 1.235, FieldFats: 9.67, FieldCalories: 250},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Validate(tt.in, nil)
			assert.Len(t, got, len(tt.want))
			for k, v := range tt.want {
				assert.InDelta(t, v, got[k], 1e-9, "field %s", k)
			}
		})
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	in := map[FieldType]float64{FieldFats: 5.0, FieldSaturatedFats: 6.0}
	_ = Validate(in, nil)
	assert.Equal(t, 6.0, in[FieldSaturatedFats])
}
