package nutrition

import (
	"math"
	"sort"
)

// Params holds the spatial tolerances used for association and selection.
// Distances are in the detection source's pixel coordinates.
type Params struct {
	MaxLeftOffset         float64
	RowTolerance          float64
	ProteinRowTolerance   float64
	RowHysteresis         float64
	ColumnTolerance       float64
	GridX                 float64
	GridY                 float64
	MaxCandidatesPerLabel int
}

// DefaultParams returns tolerances tuned for phone photos of labels.
func DefaultParams() Params {
	return Params{
		MaxLeftOffset:         50,
		RowTolerance:          35,
		ProteinRowTolerance:   50,
		RowHysteresis:         10,
		ColumnTolerance:       50,
		GridX:                 20,
		GridY:                 15,
		MaxCandidatesPerLabel: 2,
	}
}

// withDefaults replaces non-positive values with defaults.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.MaxLeftOffset <= 0 {
		p.MaxLeftOffset = d.MaxLeftOffset
	}
	if p.RowTolerance <= 0 {
		p.RowTolerance = d.RowTolerance
	}
	if p.ProteinRowTolerance <= 0 {
		p.ProteinRowTolerance = d.ProteinRowTolerance
	}
	if p.RowHysteresis < 0 {
		p.RowHysteresis = d.RowHysteresis
	}
	if p.ColumnTolerance <= 0 {
		p.ColumnTolerance = d.ColumnTolerance
	}
	if p.GridX <= 0 {
		p.GridX = d.GridX
	}
	if p.GridY <= 0 {
		p.GridY = d.GridY
	}
	if p.MaxCandidatesPerLabel <= 0 {
		p.MaxCandidatesPerLabel = d.MaxCandidatesPerLabel
	}
	return p
}

// Score weights.
const (
	rightOfLabelBonus  = 0.2
	sameRowBonus       = 0.3
	nearRowBonus       = 0.15
	per100gEnergyBonus = 0.5
	per100gBonus       = 0.2
	magnitudeBonus     = 0.1
	distancePenalty    = 0.001
	sameRowDistance    = 15
	nearRowDistance    = 25
	kilojoulesPerKcal  = 4.184
	milligramsPerGram  = 1000
	caloriesMagnitude  = 100
	macroMagnitude     = 10
	fatMagnitude       = 1
)

// Associator binds numeric candidates to field labels by page geometry.
type Associator struct {
	table  FieldTable
	params Params
}

// NewAssociator creates an associator for the given table.
func NewAssociator(table FieldTable, params Params) *Associator {
	return &Associator{table: table, params: params.withDefaults()}
}

// Associate returns the plausible bindings for every label, best first,
// at most MaxCandidatesPerLabel per label.
func (a *Associator) Associate(labels []Label, candidates []Candidate) []NutritionValue {
	var out []NutritionValue
	for li, label := range labels {
		spec, ok := a.table.Lookup(label.Field)
		if !ok {
			continue
		}
		var bound []NutritionValue
		for _, cand := range candidates {
			v, ok := a.bind(spec, li, label, labels, cand)
			if ok {
				bound = append(bound, v)
			}
		}
		if spec.IsEnergy() {
			bound = preferPer100gEnergy(bound)
		}
		sort.SliceStable(bound, func(i, j int) bool {
			return bound[i].Confidence > bound[j].Confidence
		})
		if len(bound) > a.params.MaxCandidatesPerLabel {
			bound = bound[:a.params.MaxCandidatesPerLabel]
		}
		out = append(out, bound...)
	}
	return out
}

func (a *Associator) bind(spec FieldSpec, li int, label Label, labels []Label, cand Candidate) (NutritionValue, bool) {
	p := a.params
	if cand.X < label.X-p.MaxLeftOffset {
		return NutritionValue{}, false
	}

	dy := math.Abs(cand.Y - label.Y)
	rowTol := p.RowTolerance
	if spec.Type == FieldProteins {
		rowTol = p.ProteinRowTolerance
	}
	if dy > rowTol {
		return NutritionValue{}, false
	}
	for oi, other := range labels {
		if oi == li || other.Field == label.Field {
			continue
		}
		if math.Abs(cand.Y-other.Y)+p.RowHysteresis < dy {
			return NutritionValue{}, false
		}
	}

	value, ok := toCanonical(spec, cand.NumericCandidate)
	if !ok || !spec.IsReasonable(value) {
		return NutritionValue{}, false
	}

	score := cand.Confidence
	if cand.X > label.X {
		score += rightOfLabelBonus
	}
	switch {
	case dy <= sameRowDistance:
		score += sameRowBonus
	case dy <= nearRowDistance:
		score += nearRowBonus
	}
	if cand.Column == ColumnPer100g {
		if spec.IsEnergy() {
			score += per100gEnergyBonus
		} else {
			score += per100gBonus
		}
	}
	if hasTypicalMagnitude(spec.Type, value) {
		score += magnitudeBonus
	}
	score -= distancePenalty * math.Hypot(cand.X-label.X, cand.Y-label.Y)

	return NutritionValue{
		Field:      spec.Type,
		Value:      value,
		Unit:       cand.Unit,
		Confidence: score,
		SourceText: label.Text + " -> " + cand.Text,
		X:          cand.X,
		Y:          cand.Y,
		Column:     cand.Column,
		labelIndex: label.TokenIndex,
		tokenIndex: cand.TokenIndex,
	}, true
}

// toCanonical converts a value to kcal for energy fields and grams otherwise.
// Energy units never bind mass fields and vice versa.
func toCanonical(spec FieldSpec, n NumericCandidate) (float64, bool) {
	if spec.IsEnergy() != n.Unit.IsEnergy() {
		return 0, false
	}
	switch n.Unit {
	case UnitKilojoules:
		return n.Value / kilojoulesPerKcal, true
	case UnitMilligrams:
		return n.Value / milligramsPerGram, true
	default:
		return n.Value, true
	}
}

func hasTypicalMagnitude(ft FieldType, value float64) bool {
	switch ft {
	case FieldCalories:
		return value >= caloriesMagnitude
	case FieldProteins, FieldCarbs, FieldFiber:
		return value >= macroMagnitude
	case FieldFats, FieldSaturatedFats:
		return value >= fatMagnitude
	default:
		return false
	}
}

// preferPer100gEnergy drops per-portion energy readings when the same label
// row already has a per-100g one.
func preferPer100gEnergy(values []NutritionValue) []NutritionValue {
	has100g := false
	for _, v := range values {
		if v.Column == ColumnPer100g {
			has100g = true
			break
		}
	}
	if !has100g {
		return values
	}
	out := values[:0:0]
	for _, v := range values {
		if v.Column != ColumnPortion {
			out = append(out, v)
		}
	}
	return out
}
