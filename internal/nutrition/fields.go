package nutrition

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// FieldType names one of the canonical nutrition quantities.
type FieldType string

// Canonical field names as they appear in results.
const (
	FieldCalories      FieldType = "calories"
	FieldFats          FieldType = "fats"
	FieldSaturatedFats FieldType = "saturated_fats"
	FieldCarbs         FieldType = "carbs"
	FieldSugars        FieldType = "sugars"
	FieldFiber         FieldType = "fiber"
	FieldProteins      FieldType = "proteins"
	FieldSalt          FieldType = "salt"
)

// FieldSpec describes how a nutrition field is recognised on a label.
type FieldSpec struct {
	Type FieldType

	// Keywords are lowercase substrings that identify a label for this field.
	Keywords []string
	// ExcludeKeywords veto a match even when a keyword matched.
	ExcludeKeywords []string
	// ContextKeywords mark sub-values ("of which"). Descriptive only.
	ContextKeywords []string

	// Min and Max bound plausible values in the canonical unit.
	Min float64
	Max float64

	// Priority orders selection, lower first.
	Priority int

	// ZeroCommon accepts an exact zero even when Min is above zero.
	ZeroCommon bool
	// WholeWord requires keywords to match complete words.
	WholeWord bool
}

// IsEnergy reports whether the field is measured in energy units.
func (f FieldSpec) IsEnergy() bool { return f.Type == FieldCalories }

// MatchesLabel reports whether text names this field.
// Exclusions are checked before keywords.
func (f FieldSpec) MatchesLabel(text string) bool {
	lower := normalizeText(text)
	if lower == "" {
		return false
	}
	for _, ex := range f.ExcludeKeywords {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	if f.WholeWord {
		words := splitWords(lower)
		for _, kw := range f.Keywords {
			for _, w := range words {
				if w == kw {
					return true
				}
			}
		}
		return false
	}
	for _, kw := range f.Keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsReasonable reports whether a value in the canonical unit is plausible.
func (f FieldSpec) IsReasonable(value float64) bool {
	if value >= f.Min && value <= f.Max {
		return true
	}
	if f.ZeroCommon && value == 0 {
		return true
	}
	if f.Type == FieldSalt && value >= 0.01 && value <= 3.0 {
		return true
	}
	return false
}

// FieldTable is the fixed set of field descriptors, ordered by priority.
type FieldTable []FieldSpec

// DefaultFields returns the built-in multilingual field table.
func DefaultFields() FieldTable {
	return FieldTable{
		{
			Type: FieldCalories,
			Keywords: []string{
				"energia", "energy", "energi", "energie", "énergie",
				"brennwert", "kalorit", "calories", "kalorier", "valore energetico",
			},
			Min:      1,
			Max:      900,
			Priority: 1,
		},
		{
			Type:     FieldFats,
			Keywords: []string{"rasva", "fat", "fett", "matières grasses", "grassi", "grasas", "vet"},
			ExcludeKeywords: []string{
				"tyydyttyn", "satur", "gesättigt", "mättat", "mættede", "verzadigd",
				"kyllästet", "trans", "omega", "mono", "poly", "kertatyydyttym", "monityydyttym",
			},
			Min:      0.1,
			Max:      100,
			Priority: 2,
		},
		{
			Type:            FieldCarbs,
			Keywords:        []string{"hiilihydraat", "carbohydrate", "carbs", "kohlenhydrat", "kolhydrat", "glucides", "carboidrati", "hidratos", "koolhydraten"},
			ExcludeKeywords: []string{"soker", "sugar", "zucker", "socker", "sucres", "zuccheri", "azúcares", "suikers"},
			Min:             0.1,
			Max:             100,
			Priority:        3,
		},
		{
			Type:     FieldProteins,
			Keywords: []string{"proteiini", "protein", "eiweiß", "eiweiss", "protéines", "proteine", "proteínas", "eiwitten"},
			Min:      0.1,
			Max:      100,
			Priority: 4,
		},
		{
			Type:            FieldSaturatedFats,
			Keywords:        []string{"tyydyttyn", "saturated", "saturates", "gesättigt", "mättat", "mættede", "saturés", "verzadigd"},
			ExcludeKeywords: []string{"kertatyydyttym", "monityydyttym", "unsaturated", "ungesättigt", "omättat"},
			ContextKeywords: []string{"josta", "joista", "of which", "davon", "varav", "dont"},
			Min:             0.1,
			Max:             100,
			Priority:        5,
			ZeroCommon:      true,
		},
		{
			Type:       FieldFiber,
			Keywords:   []string{"kuitu", "fibre", "fiber", "ballaststoff", "kostfiber", "fibres", "vezels"},
			Min:        0.1,
			Max:        100,
			Priority:   6,
			ZeroCommon: true,
		},
		{
			Type:            FieldSugars,
			Keywords:        []string{"soker", "sugar", "zucker", "socker", "sucres", "zuccheri", "azúcares", "suikers"},
			ContextKeywords: []string{"josta", "joista", "of which", "davon", "varav", "dont"},
			Min:             0.1,
			Max:             100,
			Priority:        7,
			ZeroCommon:      true,
		},
		{
			Type:       FieldSalt,
			Keywords:   []string{"suola", "suolaa", "salt", "salz", "sel", "sale", "sal", "zout"},
			Min:        0.01,
			Max:        10,
			Priority:   8,
			ZeroCommon: true,
			WholeWord:  true,
		},
	}
}

// Lookup returns the descriptor for a field type.
func (t FieldTable) Lookup(ft FieldType) (FieldSpec, bool) {
	for _, f := range t {
		if f.Type == ft {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Types returns the field types in table order.
func (t FieldTable) Types() []FieldType {
	out := make([]FieldType, len(t))
	for i, f := range t {
		out[i] = f.Type
	}
	return out
}

// Validate checks the table for duplicate names or priorities, empty keyword
// sets, inverted ranges and keywords that are also excluded.
func (t FieldTable) Validate() error {
	if len(t) == 0 {
		return errors.New("field table is empty")
	}
	names := make(map[FieldType]bool, len(t))
	priorities := make(map[int]FieldType, len(t))
	for i, f := range t {
		if f.Type == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if names[f.Type] {
			return fmt.Errorf("duplicate field %q", f.Type)
		}
		names[f.Type] = true
		if other, ok := priorities[f.Priority]; ok {
			return fmt.Errorf("fields %q and %q share priority %d", other, f.Type, f.Priority)
		}
		priorities[f.Priority] = f.Type
		if len(f.Keywords) == 0 {
			return fmt.Errorf("field %q has no keywords", f.Type)
		}
		if f.Min >= f.Max {
			return fmt.Errorf("field %q has invalid range [%g, %g]", f.Type, f.Min, f.Max)
		}
		for _, kw := range f.Keywords {
			if kw != strings.ToLower(kw) {
				return fmt.Errorf("field %q keyword %q is not lowercase", f.Type, kw)
			}
			for _, ex := range f.ExcludeKeywords {
				if kw == ex {
					return fmt.Errorf("field %q lists %q as keyword and exclusion", f.Type, kw)
				}
			}
		}
	}
	return nil
}

// normalizeText folds OCR text into the form keyword lists are written in.
func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
