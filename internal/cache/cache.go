// Package cache stores scan results keyed by image content so repeated
// uploads of the same photo skip detection.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "labelscan"

// Cache stores successful results.
type Cache interface {
	Get(ctx context.Context, key string) (*nutrition.Result, bool, error)
	Set(ctx context.Context, key string, res *nutrition.Result) error
}

// Key builds the cache key for an image processed by the named source.
func Key(source string, data []byte) string {
	sum := sha256.Sum256(data)
	return KeyPrefix + ":" + source + ":" + hex.EncodeToString(sum[:])
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*nutrition.Result, bool, error) { return nil, false, nil }

func (Noop) Set(context.Context, string, *nutrition.Result) error { return nil }

// cacheable keeps every successful result, including ones without fields.
func cacheable(res *nutrition.Result) bool {
	return res != nil && res.Success
}
