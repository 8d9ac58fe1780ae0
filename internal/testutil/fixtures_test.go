package testutil

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFixtures_Scan(t *testing.T) {
	engine, err := nutrition.New(nutrition.Options{})
	require.NoError(t, err)

	for _, f := range LabelFixtures() {
		t.Run(f.Name, func(t *testing.T) {
			res := engine.Scan(f.Tokens)
			if f.ExpectError != "" {
				assert.False(t, res.Success)
				assert.Equal(t, f.ExpectError, res.Error)
				return
			}
			require.True(t, res.Success, res.Error)
			assert.Equal(t, f.Per100g, res.Per100g)
			for field, want := range f.Expected {
				assert.InDelta(t, want, res.NutritionData[field], 1e-9, field)
			}
		})
	}
}

func TestFixture_ByName(t *testing.T) {
	f := Fixture(t, "headed_label")
	assert.True(t, f.Per100g)
	assert.Len(t, f.Tokens, 9)
}

func TestSaveAndLoadFixture(t *testing.T) {
	dir := CreateTempDir(t)
	want := Fixture(t, "saturated_fat_clamp")

	path := SaveFixture(t, dir, want)
	assert.Equal(t, filepath.Join(dir, "saturated_fat_clamp.json"), path)
	assert.Equal(t, want, LoadFixture(t, path))
}

func TestWriteTokenFile(t *testing.T) {
	dir := CreateTempDir(t)
	tokens := Fixture(t, "lost_leading_digit").Tokens

	for _, name := range []string{"label.json", "label.yaml", "label.yml"} {
		t.Run(name, func(t *testing.T) {
			path := WriteTokenFile(t, dir, name, tokens)
			got, err := source.LoadTokenFile(path)
			require.NoError(t, err)
			assert.Equal(t, tokens, got)
		})
	}
}
