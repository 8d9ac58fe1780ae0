// Package vision adapts Google Cloud Vision text detection into positioned
// tokens for the nutrition engine.
package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"
)

// MaxImageBytes is the inline request limit of the Vision API.
const MaxImageBytes = 20 * 1024 * 1024

// Annotator is the subset of the Vision client the detector needs.
type Annotator interface {
	BatchAnnotate(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

type clientAnnotator struct {
	client *visionapi.ImageAnnotatorClient
}

func (a clientAnnotator) BatchAnnotate(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	return a.client.BatchAnnotateImages(ctx, req)
}

func (a clientAnnotator) Close() error { return a.client.Close() }

// Options configure credential lookup.
type Options struct {
	// CredentialsFile is a service account JSON file.
	CredentialsFile string
	// CredentialsJSON holds inline service account JSON.
	CredentialsJSON string
	// LanguageHints are passed to the API, e.g. "fi", "en".
	LanguageHints []string
	Logger        *slog.Logger
}

// Detector implements nutrition.TokenSource using TEXT_DETECTION.
type Detector struct {
	annotator Annotator
	hints     []string
	logger    *slog.Logger
}

// New creates a detector. Credentials are taken from opts, then from
// GOOGLE_CREDENTIALS or GOOGLE_APPLICATION_CREDENTIALS, then from the
// default credential chain.
func New(ctx context.Context, opts Options) (*Detector, error) {
	const op = "vision.New"

	credJSON := opts.CredentialsJSON
	if credJSON == "" {
		credJSON = os.Getenv("GOOGLE_CREDENTIALS")
	}
	credFile := opts.CredentialsFile
	if credFile == "" {
		credFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	var client *visionapi.ImageAnnotatorClient
	var err error
	switch {
	case credJSON != "":
		client, err = visionapi.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, source.Wrap(op, err, "failed to create client with inline credentials")
		}
	case credFile != "":
		client, err = visionapi.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, source.Wrap(op, err, "failed to create client with credentials file")
		}
	default:
		client, err = visionapi.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, source.Wrap(op, source.ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return NewWithAnnotator(clientAnnotator{client: client}, opts), nil
}

// NewWithAnnotator creates a detector around an existing annotator.
func NewWithAnnotator(a Annotator, opts Options) *Detector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{annotator: a, hints: opts.LanguageHints, logger: logger}
}

// DetectTokens sends img to the API and returns one token per word.
func (d *Detector) DetectTokens(ctx context.Context, img image.Image) ([]nutrition.TextToken, error) {
	const op = "DetectTokens"
	if img == nil {
		return nil, source.Wrap(op, source.ErrSourceFailed, "nil image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, source.Wrap(op, err, "failed to encode image")
	}
	if buf.Len() > MaxImageBytes {
		return nil, source.Wrap(op, source.ErrSourceFailed, fmt.Sprintf("encoded image is %d bytes", buf.Len()))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
			},
		},
	}
	if len(d.hints) > 0 {
		req.Requests[0].ImageContext = &visionpb.ImageContext{LanguageHints: d.hints}
	}

	resp, err := d.annotator.BatchAnnotate(ctx, req)
	if err != nil {
		return nil, source.Wrap(op, source.ErrSourceFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if resp == nil || len(resp.Responses) == 0 {
		return nil, source.Wrap(op, source.ErrEmptyResponse, "no response from Vision API")
	}
	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return nil, source.Wrap(op, source.ErrSourceFailed, fmt.Sprintf("Vision API error: %s", imgResp.Error.Message))
	}

	tokens := TokensFromAnnotations(imgResp.TextAnnotations)
	d.logger.Debug("Vision detection complete", "annotations", len(imgResp.TextAnnotations), "tokens", len(tokens))
	return tokens, nil
}

// Close releases the underlying client.
func (d *Detector) Close() error {
	if d.annotator != nil {
		return d.annotator.Close()
	}
	return nil
}

// TokensFromAnnotations converts word annotations into tokens. The first
// annotation holds the full text block and is skipped when more follow.
func TokensFromAnnotations(anns []*visionpb.EntityAnnotation) []nutrition.TextToken {
	if len(anns) > 1 {
		anns = anns[1:]
	}
	tokens := make([]nutrition.TextToken, 0, len(anns))
	for _, a := range anns {
		if a == nil || a.Description == "" {
			continue
		}
		x, y, w, h := boundsOf(a.BoundingPoly)
		conf := float64(a.Confidence)
		if conf <= 0 {
			conf = 1.0
		}
		tokens = append(tokens, nutrition.TextToken{
			Text:       a.Description,
			Confidence: conf,
			X:          x,
			Y:          y,
			Width:      w,
			Height:     h,
		})
	}
	source.SortReadingOrder(tokens)
	return tokens
}

func boundsOf(poly *visionpb.BoundingPoly) (x, y, w, h float64) {
	if poly == nil || len(poly.Vertices) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range poly.Vertices {
		fx, fy := float64(v.X), float64(v.Y)
		minX = math.Min(minX, fx)
		minY = math.Min(minY, fy)
		maxX = math.Max(maxX, fx)
		maxY = math.Max(maxY, fy)
	}
	return minX, minY, maxX - minX, maxY - minY
}
