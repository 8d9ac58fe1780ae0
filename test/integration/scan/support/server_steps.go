package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/server"
	"github.com/cucumber/godog"
)

// RegisterServerSteps registers HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the scanning server is running$`, testCtx.theScanningServerIsRunning)
	sc.Step(`^I post the tokens to "([^"]*)"$`, testCtx.iPostTheTokensTo)
	sc.Step(`^I post the body "([^"]*)" to "([^"]*)"$`, testCtx.iPostTheBodyTo)
	sc.Step(`^I upload a blank label photo to "([^"]*)"$`, testCtx.iUploadABlankLabelPhotoTo)
	sc.Step(`^I request "([^"]*)"$`, testCtx.iRequest)
	sc.Step(`^the response status is (\d+)$`, testCtx.theResponseStatusIs)
	sc.Step(`^the response JSON field "([^"]*)" is "([^"]*)"$`, testCtx.theResponseJSONFieldIs)
	sc.Step(`^the response reports "([^"]*)" as ([0-9.]+)$`, testCtx.theResponseReports)
	sc.Step(`^the response reports the error "([^"]*)"$`, testCtx.theResponseReportsTheError)
}

func (testCtx *TestContext) theScanningServerIsRunning() error {
	pl, err := testCtx.newPipeline()
	if err != nil {
		return err
	}
	srv, err := server.NewServer(server.Config{
		Host:        "127.0.0.1",
		CORSOrigin:  "*",
		MaxUploadMB: 1,
		TimeoutSec:  10,
		Version:     "test",
	}, pl, testCtx.Logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	testCtx.HTTPServer = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) do(req *http.Request) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	return nil
}

func (testCtx *TestContext) post(path, contentType string, body io.Reader) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, testCtx.HTTPServer.URL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return testCtx.do(req)
}

func (testCtx *TestContext) iPostTheTokensTo(path string) error {
	data, err := json.Marshal(map[string]any{"tokens": testCtx.Tokens})
	if err != nil {
		return err
	}
	return testCtx.post(path, "application/json", bytes.NewReader(data))
}

func (testCtx *TestContext) iPostTheBodyTo(body, path string) error {
	return testCtx.post(path, "application/json", bytes.NewBufferString(body))
}

func (testCtx *TestContext) iUploadABlankLabelPhotoTo(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "label.png")
	if err != nil {
		return err
	}
	if err := png.Encode(part, img); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return testCtx.post(path, mw.FormDataContentType(), &body)
}

func (testCtx *TestContext) iRequest(path string) error {
	if testCtx.HTTPServer == nil {
		return fmt.Errorf("server is not running")
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, testCtx.HTTPServer.URL+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusIs(code int) error {
	if testCtx.LastHTTPStatusCode != code {
		return fmt.Errorf("expected status %d, got %d: %s", code, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldIs(field, value string) error {
	var doc map[string]any
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &doc); err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if got := fmt.Sprint(doc[field]); got != value {
		return fmt.Errorf("expected %s = %q, got %q", field, value, got)
	}
	return nil
}

func (testCtx *TestContext) scanResponse() (*server.ScanResponse, error) {
	var resp server.ScanResponse
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &resp); err != nil {
		return nil, fmt.Errorf("response is not a scan response: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("response has no result: %s", testCtx.LastHTTPResponse)
	}
	return &resp, nil
}

func (testCtx *TestContext) theResponseReports(field, value string) error {
	resp, err := testCtx.scanResponse()
	if err != nil {
		return err
	}
	var want float64
	if _, err := fmt.Sscan(value, &want); err != nil {
		return err
	}
	got, ok := resp.Result.NutritionData[field]
	if !ok {
		return fmt.Errorf("field %s missing from %v", field, resp.Result.NutritionData)
	}
	if math.Abs(got-want) > 1e-6 {
		return fmt.Errorf("expected %s = %g, got %g", field, want, got)
	}
	return nil
}

func (testCtx *TestContext) theResponseReportsTheError(msg string) error {
	resp, err := testCtx.scanResponse()
	if err != nil {
		return err
	}
	if resp.Result.Success || resp.Result.Error != msg {
		return fmt.Errorf("expected failed result %q, got success=%v error=%q", msg, resp.Result.Success, resp.Result.Error)
	}
	return nil
}
