package nutrition

import (
	"regexp"
	"strconv"
	"strings"
)

// numberMatcher tries to read one value out of normalised token text.
type numberMatcher func(text string) (NumericCandidate, bool)

// contaminationPhrases mark column headers and percentage annotations in
// addition to per100Re.
var contaminationPhrases = []string{"kohti", "%"}

const (
	numPattern = `(\d+(?:[.,]\d+)?)`
	decPattern = `(\d+[.,]\d+)`
	intPattern = `(\d+)`
)

var (
	combinedEnergyRe = regexp.MustCompile(`(?i)` + numPattern + `\s*kj\s*[/|]?\s*` + numPattern + `\s*kcal`)
	leadingDropRe    = regexp.MustCompile(`(?i)(?:^|[^\d.,])[.,](\d{1,2})\s*g\b`)
	trailingSepRe    = regexp.MustCompile(`(?i)(?:^|[^\d.,])(\d{1,3})[.,]\s*g\b`)
	smallFractionRe  = regexp.MustCompile(`(?i)(?:^|[^\d.,])(0[.,]\d+)\s*g\b`)

	// per100Re matches "100 g", "100ml", "/100" and "per 100" but not the
	// tail of a larger number such as "1100 g".
	per100Re = regexp.MustCompile(`(?:^|[^\d.,])100\s?(?:g|ml|gramm\w*)\b|/\s?100\b|\bper 100\b`)

	// groupedEnergyRe finds energy values printed with a space as the
	// thousands separator, e.g. "2 060 kj".
	groupedEnergyRe = regexp.MustCompile(`(^|[^\d.,])(\d{1,3}) (\d{3})(\s*(?:kj|kcal))`)
)

// extractionOrder is the priority cascade. The first matcher that succeeds
// decides the token's value.
var extractionOrder = []numberMatcher{
	matchCombinedEnergy,
	matchLeadingDrop,
	matchTrailingSeparator,
	unitMatcher(regexp.MustCompile(`(?i)` + decPattern + `\s*kcal`)),
	unitMatcher(regexp.MustCompile(`(?i)` + decPattern + `\s*kj`)),
	unitMatcher(regexp.MustCompile(`(?i)` + decPattern + `\s*mg`)),
	unitMatcher(regexp.MustCompile(`(?i)` + decPattern + `\s*g\b`)),
	matchSmallFraction,
	unitMatcher(regexp.MustCompile(`(?i)` + intPattern + `\s*kcal`)),
	unitMatcher(regexp.MustCompile(`(?i)` + intPattern + `\s*kj`)),
	unitMatcher(regexp.MustCompile(`(?i)` + intPattern + `\s*mg`)),
	unitMatcher(regexp.MustCompile(`(?i)` + intPattern + `\s*g\b`)),
}

// Extract parses a token's text into at most one value and unit.
// A token naming a column header or a percentage is rejected unless it
// also carries an energy unit.
func Extract(text string) (NumericCandidate, bool) {
	lower := normalizeText(text)
	if lower == "" || isContaminated(lower) {
		return NumericCandidate{}, false
	}
	lower = groupedEnergyRe.ReplaceAllString(lower, "${1}${2}${3}${4}")
	for _, m := range extractionOrder {
		if c, ok := m(lower); ok {
			return c, true
		}
	}
	return NumericCandidate{}, false
}

func isContaminated(lower string) bool {
	if strings.Contains(lower, "kcal") || strings.Contains(lower, "kj") {
		return false
	}
	return per100Re.MatchString(lower) || containsAny(lower, contaminationPhrases)
}

func matchCombinedEnergy(text string) (NumericCandidate, bool) {
	m := combinedEnergyRe.FindStringSubmatch(text)
	if m == nil {
		return NumericCandidate{}, false
	}
	v, ok := parseNumber(m[2])
	if !ok {
		return NumericCandidate{}, false
	}
	return NumericCandidate{Value: v, Unit: UnitKilocalories}, true
}

// matchLeadingDrop handles ".14g": OCR lost the digit before the separator.
// Two-digit readings are taken as whole grams, shorter ones as a fraction.
func matchLeadingDrop(text string) (NumericCandidate, bool) {
	m := leadingDropRe.FindStringSubmatch(text)
	if m == nil {
		return NumericCandidate{}, false
	}
	digits := m[1]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return NumericCandidate{}, false
	}
	if n >= 10 {
		return NumericCandidate{Value: float64(n), Unit: UnitGrams}, true
	}
	v, ok := parseNumber("0." + digits)
	if !ok {
		return NumericCandidate{}, false
	}
	return NumericCandidate{Value: v, Unit: UnitGrams}, true
}

// matchTrailingSeparator handles "14.g" where the decimals were lost.
func matchTrailingSeparator(text string) (NumericCandidate, bool) {
	m := trailingSepRe.FindStringSubmatch(text)
	if m == nil {
		return NumericCandidate{}, false
	}
	v, ok := parseNumber(m[1])
	if !ok {
		return NumericCandidate{}, false
	}
	return NumericCandidate{Value: v, Unit: UnitGrams}, true
}

func matchSmallFraction(text string) (NumericCandidate, bool) {
	m := smallFractionRe.FindStringSubmatch(text)
	if m == nil {
		return NumericCandidate{}, false
	}
	v, ok := parseNumber(m[1])
	if !ok || v >= 1 {
		return NumericCandidate{}, false
	}
	return NumericCandidate{Value: v, Unit: UnitGrams}, true
}

// unitMatcher builds a matcher whose unit is inferred from the matched text.
func unitMatcher(re *regexp.Regexp) numberMatcher {
	return func(text string) (NumericCandidate, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return NumericCandidate{}, false
		}
		v, ok := parseNumber(m[1])
		if !ok {
			return NumericCandidate{}, false
		}
		return NumericCandidate{Value: v, Unit: inferUnit(m[0])}, true
	}
}

func inferUnit(matched string) Unit {
	lower := strings.ToLower(matched)
	switch {
	case strings.Contains(lower, "kcal"):
		return UnitKilocalories
	case strings.Contains(lower, "kj"):
		return UnitKilojoules
	case strings.Contains(lower, "mg"):
		return UnitMilligrams
	default:
		return UnitGrams
	}
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
