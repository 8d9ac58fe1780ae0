package support

import (
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"

	"github.com/MeKo-Tech/labelscan/internal/batch"
	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Scan state
	Tokens     []nutrition.TextToken
	LastResult *nutrition.Result
	LastError  error

	// Batch state
	InputDir        string
	LastBatch       *batch.Result
	LastBatchOutput string

	// HTTP state
	Pipeline           *pipeline.Pipeline
	HTTPServer         *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   []byte

	TempDir string
	Logger  *slog.Logger
}

// NewTestContext creates a context with its own temp directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "labelscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir: tempDir,
		Logger:  slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}, nil
}

// newPipeline builds a pipeline without an image source.
func (testCtx *TestContext) newPipeline() (*pipeline.Pipeline, error) {
	if testCtx.Pipeline != nil {
		return testCtx.Pipeline, nil
	}
	pl, err := pipeline.NewBuilder().
		WithLogger(testCtx.Logger).
		WithoutPreprocess().
		WithWorkers(2).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	testCtx.Pipeline = pl
	return pl, nil
}

// Cleanup stops the test server and removes temporary files.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.Pipeline != nil {
		_ = testCtx.Pipeline.Close()
		testCtx.Pipeline = nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}
