package nutrition

import (
	"fmt"
	"math"
	"strings"
)

var portionPhrases = []string{
	"portion", "annos", "per serving", "serving", "portie", "per 40g", "per 30g", "per 50g", "pro portion",
}

// ColumnLayout holds the detected horizontal centres of the printed
// sub-tables. A nil centre means the header was not found.
type ColumnLayout struct {
	Per100gX *float64 `json:"per_100g_x,omitempty"`
	PortionX *float64 `json:"portion_x,omitempty"`

	tolerance float64
}

// ClassifyColumns locates column headers among tokens. A token may count
// towards both groups.
func ClassifyColumns(tokens []TextToken, tolerance float64) ColumnLayout {
	var sum100, sumPortion float64
	var n100, nPortion int
	for _, tok := range tokens {
		lower := normalizeText(tok.Text)
		if per100Re.MatchString(lower) {
			sum100 += tok.X
			n100++
		}
		if containsAny(lower, portionPhrases) {
			sumPortion += tok.X
			nPortion++
		}
	}

	layout := ColumnLayout{tolerance: tolerance}
	if n100 > 0 {
		x := sum100 / float64(n100)
		layout.Per100gX = &x
	}
	if nPortion > 0 {
		x := sumPortion / float64(nPortion)
		layout.PortionX = &x
	}
	return layout
}

// Classify returns the column whose centre is within tolerance of x.
// When both qualify the nearer one wins.
func (l ColumnLayout) Classify(x float64) ColumnType {
	tol := l.tolerance
	if tol <= 0 {
		tol = DefaultParams().ColumnTolerance
	}
	best := ColumnUnknown
	bestDist := math.Inf(1)
	if l.Per100gX != nil {
		if d := math.Abs(x - *l.Per100gX); d <= tol && d < bestDist {
			best, bestDist = ColumnPer100g, d
		}
	}
	if l.PortionX != nil {
		if d := math.Abs(x - *l.PortionX); d <= tol && d < bestDist {
			best = ColumnPortion
		}
	}
	return best
}

// HasColumns reports whether any header was detected.
func (l ColumnLayout) HasColumns() bool {
	return l.Per100gX != nil || l.PortionX != nil
}

func (l ColumnLayout) String() string {
	return fmt.Sprintf("per100g=%s portion=%s", fmtCentre(l.Per100gX), fmtCentre(l.PortionX))
}

func fmtCentre(x *float64) string {
	if x == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *x)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
