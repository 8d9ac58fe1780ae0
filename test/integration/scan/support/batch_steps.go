package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/batch"
	"github.com/cucumber/godog"
)

// RegisterBatchSteps registers directory scanning steps.
func (testCtx *TestContext) RegisterBatchSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the token dump "([^"]*)" contains the tokens:$`, testCtx.theTokenDumpContainsTheTokens)
	sc.Step(`^the file "([^"]*)" contains "([^"]*)"$`, testCtx.theFileContains)
	sc.Step(`^the directory is batch scanned as "([^"]*)"$`, testCtx.theDirectoryIsBatchScannedAs)
	sc.Step(`^the directory is batch scanned as "([^"]*)" continuing on errors$`, testCtx.theDirectoryIsBatchScannedContinuing)
	sc.Step(`^the batch fails with "([^"]*)"$`, testCtx.theBatchFailsWith)
	sc.Step(`^(\d+) files? (?:was|were) processed$`, testCtx.filesWereProcessed)
	sc.Step(`^(\d+) files? failed$`, testCtx.filesFailed)
	sc.Step(`^the batch output contains "([^"]*)"$`, testCtx.theBatchOutputContains)
}

func (testCtx *TestContext) inputDir() (string, error) {
	if testCtx.InputDir == "" {
		dir := filepath.Join(testCtx.TempDir, "inputs")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return "", err
		}
		testCtx.InputDir = dir
	}
	return testCtx.InputDir, nil
}

func (testCtx *TestContext) theTokenDumpContainsTheTokens(name string, table *godog.Table) error {
	tokens, err := tokensFromTable(table)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(map[string]any{"tokens": tokens}, "", "  ")
	if err != nil {
		return err
	}
	return testCtx.theFileContains(name, string(data))
}

func (testCtx *TestContext) theFileContains(name, content string) error {
	dir, err := testCtx.inputDir()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600)
}

func (testCtx *TestContext) runBatch(format string, continueOnError bool) error {
	pl, err := testCtx.newPipeline()
	if err != nil {
		return err
	}
	dir, err := testCtx.inputDir()
	if err != nil {
		return err
	}
	cfg := batch.DefaultConfig()
	cfg.Workers = 2
	cfg.Format = format
	cfg.Quiet = true
	cfg.ContinueOnError = continueOnError

	testCtx.LastBatch, testCtx.LastError = batch.ProcessBatch(context.Background(), pl, []string{dir}, cfg, testCtx.Logger)
	testCtx.LastBatchOutput = ""
	if testCtx.LastError != nil {
		return nil
	}
	var out bytes.Buffer
	if err := testCtx.LastBatch.SaveResults(format, "", pl.Engine.Fields(), &out, true); err != nil {
		return err
	}
	testCtx.LastBatchOutput = out.String()
	return nil
}

func (testCtx *TestContext) theDirectoryIsBatchScannedAs(format string) error {
	return testCtx.runBatch(format, false)
}

func (testCtx *TestContext) theDirectoryIsBatchScannedContinuing(format string) error {
	return testCtx.runBatch(format, true)
}

func (testCtx *TestContext) theBatchFailsWith(msg string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected batch error containing %q", msg)
	}
	if !strings.Contains(testCtx.LastError.Error(), msg) {
		return fmt.Errorf("expected batch error containing %q, got %v", msg, testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) batchResult() (*batch.Result, error) {
	if testCtx.LastError != nil {
		return nil, fmt.Errorf("batch returned an error: %w", testCtx.LastError)
	}
	if testCtx.LastBatch == nil {
		return nil, fmt.Errorf("no batch has been run")
	}
	return testCtx.LastBatch, nil
}

func (testCtx *TestContext) filesWereProcessed(n int) error {
	r, err := testCtx.batchResult()
	if err != nil {
		return err
	}
	if len(r.Files) != n {
		return fmt.Errorf("expected %d files, got %d", n, len(r.Files))
	}
	return nil
}

func (testCtx *TestContext) filesFailed(n int) error {
	r, err := testCtx.batchResult()
	if err != nil {
		return err
	}
	if got := r.Failed(); got != n {
		return fmt.Errorf("expected %d failed files, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) theBatchOutputContains(text string) error {
	if !strings.Contains(testCtx.LastBatchOutput, text) {
		return fmt.Errorf("expected output to contain %q, got:\n%s", text, testCtx.LastBatchOutput)
	}
	return nil
}
