package vision

import (
	"context"
	"errors"
	"image"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
)

type fakeAnnotator struct {
	resp   *visionpb.BatchAnnotateImagesResponse
	err    error
	got    *visionpb.BatchAnnotateImagesRequest
	closed bool
}

func (f *fakeAnnotator) BatchAnnotate(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeAnnotator) Close() error {
	f.closed = true
	return nil
}

func word(text string, x, y, w, h int32) *visionpb.EntityAnnotation {
	return &visionpb.EntityAnnotation{
		Description: text,
		BoundingPoly: &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
			{X: x, Y: y}, {X: x + w, Y: y}, {X: x + w, Y: y + h}, {X: x, Y: y + h},
		}},
	}
}

func TestDetectTokens(t *testing.T) {
	fake := &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			TextAnnotations: []*visionpb.EntityAnnotation{
				{Description: "Energia 206 kcal"},
				word("206", 80, 12, 30, 10),
				word("Energia", 10, 10, 60, 12),
			},
		}},
	}}
	d := NewWithAnnotator(fake, Options{LanguageHints: []string{"fi"}})

	tokens, err := d.DetectTokens(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 20)))
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "Energia", tokens[0].Text)
	assert.Equal(t, 10.0, tokens[0].X)
	assert.Equal(t, 60.0, tokens[0].Width)
	assert.Equal(t, 12.0, tokens[0].Height)
	assert.Equal(t, 1.0, tokens[0].Confidence)

	require.NotNil(t, fake.got)
	req := fake.got.Requests[0]
	assert.NotEmpty(t, req.Image.Content)
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, req.Features[0].Type)
	assert.Equal(t, []string{"fi"}, req.ImageContext.LanguageHints)

	require.NoError(t, d.Close())
	assert.True(t, fake.closed)
}

func TestDetectTokens_Errors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	tests := []struct {
		name string
		fake *fakeAnnotator
		want error
	}{
		{"call fails", &fakeAnnotator{err: errors.New("unavailable")}, source.ErrSourceFailed},
		{"no responses", &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{}}, source.ErrEmptyResponse},
		{"api error", &fakeAnnotator{resp: &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{Error: &status.Status{Message: "bad image"}}},
		}}, source.ErrSourceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithAnnotator(tt.fake, Options{}).DetectTokens(context.Background(), img)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewWithAnnotator(&fakeAnnotator{}, Options{}).DetectTokens(context.Background(), nil)
	assert.ErrorIs(t, err, source.ErrSourceFailed)
}

func TestTokensFromAnnotations(t *testing.T) {
	single := TokensFromAnnotations([]*visionpb.EntityAnnotation{word("Suola", 5, 5, 20, 8)})
	require.Len(t, single, 1)
	assert.Equal(t, "Suola", single[0].Text)

	withConf := word("Rasva", 0, 0, 10, 10)
	withConf.Confidence = 0.75
	tokens := TokensFromAnnotations([]*visionpb.EntityAnnotation{{Description: "all"}, withConf, {Description: ""}, nil})
	require.Len(t, tokens, 1)
	assert.InDelta(t, 0.75, tokens[0].Confidence, 1e-6)

	assert.Empty(t, TokensFromAnnotations(nil))
}
