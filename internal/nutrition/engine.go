package nutrition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"strings"
)

// ErrNoText is returned by Analyze when the token list carries no text.
var ErrNoText = errors.New("no text detected")

// TokenSource detects positioned text fragments in an image.
type TokenSource interface {
	DetectTokens(ctx context.Context, img image.Image) ([]TextToken, error)
}

// StructuredSource reads per-100g values directly from an image.
type StructuredSource interface {
	ExtractFields(ctx context.Context, img image.Image) (map[string]float64, error)
}

// Options configure an Engine.
type Options struct {
	Fields FieldTable
	Params Params
	Logger *slog.Logger
}

// Engine turns token lists into nutrition results. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	table      FieldTable
	params     Params
	associator *Associator
	logger     *slog.Logger
}

// New builds an engine. A nil field table selects DefaultFields.
func New(opts Options) (*Engine, error) {
	table := opts.Fields
	if table == nil {
		table = DefaultFields()
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field table: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	params := opts.Params.withDefaults()
	return &Engine{
		table:      table,
		params:     params,
		associator: NewAssociator(table, params),
		logger:     logger,
	}, nil
}

// Fields returns the engine's field table.
func (e *Engine) Fields() FieldTable { return e.table }

// Params returns the effective tolerances.
func (e *Engine) Params() Params { return e.params }

// Analysis exposes every intermediate stage of a scan.
type Analysis struct {
	Tokens     []TextToken
	Layout     ColumnLayout
	Labels     []Label
	Candidates []Candidate
	Bindings   []NutritionValue
	Selection  Selection
	Final      map[FieldType]float64
}

// Analyze runs all stages over tokens.
func (e *Engine) Analyze(tokens []TextToken) (*Analysis, error) {
	if !hasText(tokens) {
		return nil, ErrNoText
	}

	a := &Analysis{Tokens: tokens}
	a.Layout = ClassifyColumns(tokens, e.params.ColumnTolerance)
	a.Labels = e.findLabels(tokens)
	a.Candidates = findCandidates(tokens, a.Layout)
	a.Bindings = e.associator.Associate(a.Labels, a.Candidates)
	a.Selection = Select(e.table, a.Bindings, e.params)

	raw := make(map[FieldType]float64, len(a.Selection.Values))
	for ft, v := range a.Selection.Values {
		raw[ft] = v.Value
	}
	a.Final = Validate(raw, e.log())

	e.log().Debug("Scan analysed",
		"tokens", len(tokens),
		"labels", len(a.Labels),
		"candidates", len(a.Candidates),
		"bindings", len(a.Bindings),
		"fields", len(a.Final),
		"columns", a.Layout.String())
	return a, nil
}

// Result converts an analysis into the public result shape.
func (a *Analysis) Result() *Result {
	res := &Result{
		Success:       true,
		NutritionData: make(map[string]float64, len(a.Final)),
		Per100g:       a.Layout.Per100gX != nil,
		DebugInfo: &DebugInfo{
			ConfidenceScores: make(map[string]float64, len(a.Final)),
			SourceText:       make(map[string]string, len(a.Final)),
			TokenCount:       len(a.Tokens),
			Source:           "ocr",
		},
	}
	for ft, v := range a.Final {
		res.NutritionData[string(ft)] = v
		if sel, ok := a.Selection.Values[ft]; ok {
			res.DebugInfo.ConfidenceScores[string(ft)] = roundTo(sel.Confidence, 3)
			res.DebugInfo.SourceText[string(ft)] = sel.SourceText
		}
	}
	return res
}

// Scan extracts per-100g fields from tokens. It never panics; failures are
// reported through Result.Error.
func (e *Engine) Scan(tokens []TextToken) *Result {
	res, _ := e.ScanDetailed(tokens)
	return res
}

// ScanDetailed is Scan that also returns the analysis behind a successful
// result. The analysis is nil for failures.
func (e *Engine) ScanDetailed(tokens []TextToken) (res *Result, a *Analysis) {
	defer func() {
		if r := recover(); r != nil {
			e.log().Error("Scan panicked", "panic", r, "stack", string(debug.Stack()))
			res, a = Failure(fmt.Sprint(r)), nil
		}
	}()

	a, err := e.Analyze(tokens)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			return Failure(NoTextMessage), nil
		}
		return Failure(err.Error()), nil
	}
	return a.Result(), a
}

// FromStructured builds a result from values already keyed by field name,
// as produced by a StructuredSource. Unknown keys and negative values are
// dropped. Consistency clamps and rounding still apply.
func (e *Engine) FromStructured(fields map[string]float64) *Result {
	raw := make(map[FieldType]float64, len(fields))
	for k, v := range fields {
		ft := FieldType(strings.ToLower(strings.TrimSpace(k)))
		if _, ok := e.table.Lookup(ft); !ok || v < 0 {
			continue
		}
		raw[ft] = v
	}
	if len(raw) == 0 {
		return Failure(NoValuesMessage)
	}
	final := Validate(raw, e.log())
	res := &Result{
		Success:       true,
		NutritionData: make(map[string]float64, len(final)),
		Per100g:       true,
		DebugInfo: &DebugInfo{
			ConfidenceScores: make(map[string]float64, len(final)),
			Source:           "vlm",
		},
	}
	for ft, v := range final {
		res.NutritionData[string(ft)] = v
		res.DebugInfo.ConfidenceScores[string(ft)] = 1
	}
	return res
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

func (e *Engine) findLabels(tokens []TextToken) []Label {
	var labels []Label
	for i, tok := range tokens {
		for _, spec := range e.table {
			if spec.MatchesLabel(tok.Text) {
				labels = append(labels, Label{
					Field:      spec.Type,
					TokenIndex: i,
					Text:       tok.Text,
					X:          tok.X,
					Y:          tok.Y,
				})
				break
			}
		}
	}
	return labels
}

func findCandidates(tokens []TextToken, layout ColumnLayout) []Candidate {
	var out []Candidate
	for i, tok := range tokens {
		n, ok := Extract(tok.Text)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			NumericCandidate: n,
			TokenIndex:       i,
			Text:             tok.Text,
			Confidence:       tok.Confidence,
			X:                tok.X,
			Y:                tok.Y,
			Column:           layout.Classify(tok.X),
		})
	}
	return out
}

func hasText(tokens []TextToken) bool {
	for _, t := range tokens {
		if strings.TrimSpace(t.Text) != "" {
			return true
		}
	}
	return false
}
