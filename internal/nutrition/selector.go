package nutrition

import (
	"fmt"
	"math"
	"sort"
)

// Selection is the outcome of choosing one value per field.
type Selection struct {
	Values map[FieldType]NutritionValue
	// Order lists the selected fields in the order they were claimed.
	Order []FieldType
}

type positionKey struct{ gx, gy int64 }

// claimSet records the quantized positions and values already used by a
// selection. It lives for a single Select call.
type claimSet struct {
	gridX, gridY float64
	positions    map[positionKey]struct{}
	values       map[string]struct{}
}

func newClaimSet(p Params) *claimSet {
	return &claimSet{
		gridX:     p.GridX,
		gridY:     p.GridY,
		positions: make(map[positionKey]struct{}),
		values:    make(map[string]struct{}),
	}
}

func (c *claimSet) posKey(v NutritionValue) positionKey {
	return positionKey{
		gx: int64(math.Round(v.X / c.gridX)),
		gy: int64(math.Round(v.Y / c.gridY)),
	}
}

func valueKey(v NutritionValue) string {
	return fmt.Sprintf("%.2f|%s", math.Round(v.Value*100)/100, v.Unit)
}

func (c *claimSet) taken(v NutritionValue) bool {
	if _, ok := c.positions[c.posKey(v)]; ok {
		return true
	}
	_, ok := c.values[valueKey(v)]
	return ok
}

func (c *claimSet) claim(v NutritionValue) {
	c.positions[c.posKey(v)] = struct{}{}
	c.values[valueKey(v)] = struct{}{}
}

// narrowing keeps the candidates a field prefers, if any.
type narrowing func(NutritionValue) bool

var fieldPreferences = map[FieldType]narrowing{
	FieldCalories: func(v NutritionValue) bool { return v.Column == ColumnPer100g },
	FieldProteins: func(v NutritionValue) bool { return v.Value >= 10 },
	FieldCarbs:    func(v NutritionValue) bool { return v.Value >= 5 },
	FieldFiber:    func(v NutritionValue) bool { return v.Value >= 5 },
	FieldFats:     func(v NutritionValue) bool { return v.Value >= 1 },
}

// Select picks the best candidate for each field in priority order. A
// printed number backs at most one field. The input slice is not modified.
func Select(table FieldTable, candidates []NutritionValue, params Params) Selection {
	params = params.withDefaults()

	byField := make(map[FieldType][]NutritionValue)
	for _, c := range candidates {
		byField[c.Field] = append(byField[c.Field], c)
	}

	ordered := make(FieldTable, len(table))
	copy(ordered, table)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	claims := newClaimSet(params)
	sel := Selection{Values: make(map[FieldType]NutritionValue)}
	for _, spec := range ordered {
		var free []NutritionValue
		for _, c := range byField[spec.Type] {
			if !claims.taken(c) {
				free = append(free, c)
			}
		}
		if pref, ok := fieldPreferences[spec.Type]; ok {
			free = narrow(free, pref)
		}
		best, ok := highestConfidence(free)
		if !ok {
			continue
		}
		best.Claimed = true
		claims.claim(best)
		sel.Values[spec.Type] = best
		sel.Order = append(sel.Order, spec.Type)
	}
	return sel
}

// narrow applies pref and falls back to all candidates when none qualify.
func narrow(values []NutritionValue, pref narrowing) []NutritionValue {
	var kept []NutritionValue
	for _, v := range values {
		if pref(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return values
	}
	return kept
}

// highestConfidence returns the first candidate with the top score.
func highestConfidence(values []NutritionValue) (NutritionValue, bool) {
	if len(values) == 0 {
		return NutritionValue{}, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Confidence > best.Confidence {
			best = v
		}
	}
	return best, true
}
