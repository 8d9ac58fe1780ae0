package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a token dump.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the dump format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidTokens, filepath.Ext(path))
	}
}

type tokenDump struct {
	Tokens []nutrition.TextToken `json:"tokens" yaml:"tokens"`
}

// ParseTokens decodes a token dump. Both {"tokens": [...]} and a bare list
// are accepted. Tokens are returned in reading order (y, then x).
func ParseTokens(data []byte, format Format) ([]nutrition.TextToken, error) {
	const op = "ParseTokens"
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, Wrap(op, ErrInvalidTokens, "empty input")
	}

	var tokens []nutrition.TextToken
	var err error
	switch format {
	case FormatJSON:
		tokens, err = parseJSON(trimmed)
	case FormatYAML:
		tokens, err = parseYAML(trimmed)
	default:
		return nil, Wrap(op, ErrInvalidTokens, fmt.Sprintf("unknown format %q", format))
	}
	if err != nil {
		return nil, Wrap(op, fmt.Errorf("%w: %v", ErrInvalidTokens, err), string(format))
	}

	for i, t := range tokens {
		if t.Confidence < 0 || t.Confidence > 1 {
			return nil, Wrap(op, ErrInvalidTokens, fmt.Sprintf("token %d confidence %g out of range", i, t.Confidence))
		}
	}
	SortReadingOrder(tokens)
	return tokens, nil
}

func parseJSON(data []byte) ([]nutrition.TextToken, error) {
	if data[0] == '[' {
		var list []nutrition.TextToken
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var dump tokenDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, err
	}
	return dump.Tokens, nil
}

func parseYAML(data []byte) ([]nutrition.TextToken, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var list []nutrition.TextToken
		if err := node.Content[0].Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var dump tokenDump
	if err := node.Decode(&dump); err != nil {
		return nil, err
	}
	return dump.Tokens, nil
}

// ReadTokens decodes a token dump from r.
func ReadTokens(r io.Reader, format Format) ([]nutrition.TextToken, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Wrap("ReadTokens", err, "read failed")
	}
	return ParseTokens(data, format)
}

// LoadTokenFile reads a token dump, picking the format from the extension.
func LoadTokenFile(path string) ([]nutrition.TextToken, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, Wrap("LoadTokenFile", err, path)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading user-specified token dump is expected
	if err != nil {
		return nil, Wrap("LoadTokenFile", err, path)
	}
	return ParseTokens(data, format)
}

// SortReadingOrder sorts tokens top to bottom, then left to right.
func SortReadingOrder(tokens []nutrition.TextToken) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].Y == tokens[j].Y {
			return tokens[i].X < tokens[j].X
		}
		return tokens[i].Y < tokens[j].Y
	})
}

// TokenFile replays a recorded token dump as a detection source. The image
// passed to DetectTokens is ignored.
type TokenFile struct {
	Path string
}

// DetectTokens loads the dump on every call so edits are picked up.
func (f TokenFile) DetectTokens(ctx context.Context, _ image.Image) ([]nutrition.TextToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadTokenFile(f.Path)
}

// Static is a detection source that always returns the same tokens.
type Static []nutrition.TextToken

// DetectTokens returns a copy of the stored tokens.
func (s Static) DetectTokens(ctx context.Context, _ image.Image) ([]nutrition.TextToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]nutrition.TextToken, len(s))
	copy(out, s)
	return out, nil
}
