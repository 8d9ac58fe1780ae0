package nutrition

import "fmt"

// TextToken is one OCR-detected text fragment.
// X and Y are the top-left corner of the detected region.
type TextToken struct {
	Text       string  `json:"text" yaml:"text"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	X          float64 `json:"x" yaml:"x"`
	Y          float64 `json:"y" yaml:"y"`
	Width      float64 `json:"width,omitempty" yaml:"width,omitempty"`
	Height     float64 `json:"height,omitempty" yaml:"height,omitempty"`
}

// Unit is the unit printed next to a number.
type Unit string

const (
	UnitGrams        Unit = "g"
	UnitMilligrams   Unit = "mg"
	UnitKilocalories Unit = "kcal"
	UnitKilojoules   Unit = "kJ"
)

// IsEnergy reports whether the unit measures energy.
func (u Unit) IsEnergy() bool { return u == UnitKilocalories || u == UnitKilojoules }

// NumericCandidate is a value parsed out of a single token.
type NumericCandidate struct {
	Value float64
	Unit  Unit
}

func (n NumericCandidate) String() string {
	return fmt.Sprintf("%g %s", n.Value, n.Unit)
}

// ColumnType tells which printed sub-table a number belongs to.
type ColumnType string

const (
	ColumnPer100g ColumnType = "per_100g"
	ColumnPortion ColumnType = "per_portion"
	ColumnUnknown ColumnType = "unknown"
)

// Candidate is a numeric token placed on the page and tagged with its column.
type Candidate struct {
	NumericCandidate
	TokenIndex int
	Text       string
	Confidence float64
	X          float64
	Y          float64
	Column     ColumnType
}

// Label is a token recognised as naming a field.
type Label struct {
	Field      FieldType
	TokenIndex int
	Text       string
	X          float64
	Y          float64
}

// NutritionValue binds a field to a number. Value is in the field's
// canonical unit, Unit is the unit that was printed.
type NutritionValue struct {
	Field      FieldType  `json:"field"`
	Value      float64    `json:"value"`
	Unit       Unit       `json:"unit"`
	Confidence float64    `json:"confidence"`
	SourceText string     `json:"source_text"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Column     ColumnType `json:"column"`
	Claimed    bool       `json:"claimed"`

	labelIndex int
	tokenIndex int
}

// TokenIndex returns the index of the numeric token backing the value.
func (v NutritionValue) TokenIndex() int { return v.tokenIndex }

// LabelIndex returns the index of the label token the value was bound to.
func (v NutritionValue) LabelIndex() int { return v.labelIndex }
