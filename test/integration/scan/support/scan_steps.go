package support

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/cucumber/godog"
)

// RegisterScanSteps registers token and extraction steps.
func (testCtx *TestContext) RegisterScanSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a label with the tokens:$`, testCtx.aLabelWithTheTokens)
	sc.Step(`^an empty token list$`, testCtx.anEmptyTokenList)
	sc.Step(`^the label is scanned$`, testCtx.theLabelIsScanned)
	sc.Step(`^the scan succeeds$`, testCtx.theScanSucceeds)
	sc.Step(`^the scan fails with "([^"]*)"$`, testCtx.theScanFailsWith)
	sc.Step(`^the field "([^"]*)" is ([0-9.]+)$`, testCtx.theFieldIs)
	sc.Step(`^the field "([^"]*)" is absent$`, testCtx.theFieldIsAbsent)
	sc.Step(`^(\d+) fields? (?:is|are) extracted$`, testCtx.fieldsAreExtracted)
	sc.Step(`^the values are( not)? marked per 100 g$`, testCtx.theValuesArePer100g)
}

// aLabelWithTheTokens reads a table with the header
// | text | confidence | x | y |.
func (testCtx *TestContext) aLabelWithTheTokens(table *godog.Table) error {
	tokens, err := tokensFromTable(table)
	if err != nil {
		return err
	}
	testCtx.Tokens = tokens
	return nil
}

func tokensFromTable(table *godog.Table) ([]nutrition.TextToken, error) {
	if len(table.Rows) < 2 {
		return nil, fmt.Errorf("token table needs a header and at least one row")
	}
	header := make(map[string]int, len(table.Rows[0].Cells))
	for i, c := range table.Rows[0].Cells {
		header[c.Value] = i
	}
	for _, col := range []string{"text", "confidence", "x", "y"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("token table is missing column %q", col)
		}
	}

	tokens := make([]nutrition.TextToken, 0, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		cell := func(name string) string { return row.Cells[header[name]].Value }
		conf, err := strconv.ParseFloat(cell("confidence"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid confidence %q: %w", cell("confidence"), err)
		}
		x, err := strconv.ParseFloat(cell("x"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid x %q: %w", cell("x"), err)
		}
		y, err := strconv.ParseFloat(cell("y"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid y %q: %w", cell("y"), err)
		}
		tokens = append(tokens, nutrition.TextToken{Text: cell("text"), Confidence: conf, X: x, Y: y})
	}
	return tokens, nil
}

func (testCtx *TestContext) anEmptyTokenList() error {
	testCtx.Tokens = []nutrition.TextToken{}
	return nil
}

func (testCtx *TestContext) theLabelIsScanned() error {
	pl, err := testCtx.newPipeline()
	if err != nil {
		return err
	}
	testCtx.LastResult, testCtx.LastError = pl.ProcessTokens(context.Background(), testCtx.Tokens)
	return nil
}

func (testCtx *TestContext) result() (*nutrition.Result, error) {
	if testCtx.LastError != nil {
		return nil, fmt.Errorf("scan returned an error: %w", testCtx.LastError)
	}
	if testCtx.LastResult == nil {
		return nil, fmt.Errorf("no scan has been run")
	}
	return testCtx.LastResult, nil
}

func (testCtx *TestContext) theScanSucceeds() error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("expected success, got error %q", res.Error)
	}
	return nil
}

func (testCtx *TestContext) theScanFailsWith(msg string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Success {
		return fmt.Errorf("expected failure, got %v", res.NutritionData)
	}
	if res.Error != msg {
		return fmt.Errorf("expected error %q, got %q", msg, res.Error)
	}
	return nil
}

func (testCtx *TestContext) theFieldIs(field, value string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	want, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	got, ok := res.NutritionData[field]
	if !ok {
		return fmt.Errorf("field %s missing from %v", field, res.NutritionData)
	}
	if math.Abs(got-want) > 1e-6 {
		return fmt.Errorf("expected %s = %g, got %g", field, want, got)
	}
	return nil
}

func (testCtx *TestContext) theFieldIsAbsent(field string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if v, ok := res.NutritionData[field]; ok {
		return fmt.Errorf("expected %s to be absent, got %g", field, v)
	}
	return nil
}

func (testCtx *TestContext) fieldsAreExtracted(n int) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.FieldCount() != n {
		return fmt.Errorf("expected %d fields, got %d (%v)", n, res.FieldCount(), res.NutritionData)
	}
	return nil
}

func (testCtx *TestContext) theValuesArePer100g(not string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	want := not == ""
	if res.Per100g != want {
		return fmt.Errorf("expected per_100g %v, got %v", want, res.Per100g)
	}
	return nil
}
