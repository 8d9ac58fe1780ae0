// Package batch scans many token dumps and label photos in one run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// ProcessBatch discovers inputs under args and scans them on a worker pool.
// Without ContinueOnError the first unreadable file or failing job aborts
// the batch with an error. With it, such files are reported in the result
// instead. Scans that ran but found no values are never errors.
func ProcessBatch(ctx context.Context, pl *pipeline.Pipeline, args []string, cfg Config, logger *slog.Logger) (*Result, error) {
	if pl == nil {
		return nil, errors.New("pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	files, err := DiscoverFiles(args, cfg.Recursive, cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover input files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no token or image files found")
	}
	logger.Debug("Discovered batch inputs", "count", len(files))

	jobs, loadErrs := loadJobs(files)
	runnable := make([]pipeline.Job, 0, len(jobs))
	positions := make([]int, 0, len(jobs))
	for i, err := range loadErrs {
		if err != nil {
			if !cfg.ContinueOnError {
				return nil, err
			}
			logger.Warn("Skipping unreadable input", "file", files[i].Path, "error", err)
			continue
		}
		runnable = append(runnable, jobs[i])
		positions = append(positions, i)
	}

	workers := effectiveWorkers(cfg.Workers, pl, len(runnable))
	results := make([]pipeline.JobResult, len(files))
	for i, err := range loadErrs {
		if err != nil {
			results[i] = pipeline.JobResult{Name: files[i].Path, Err: err}
		}
	}

	start := time.Now()
	if len(runnable) > 0 {
		pcfg := pipeline.ParallelConfig{
			MaxWorkers: workers,
			ErrorHandler: func(_ int, j pipeline.Job, err error) {
				logger.Warn("Batch job failed", "file", j.Name, "error", err)
			},
		}
		if cfg.ShowProgress && !cfg.Quiet {
			pcfg.ProgressCallback = pipeline.NewConsoleProgressCallback(cfg.ProgressWriter, "Scanning: ").
				WithUpdateInterval(cfg.ProgressInterval)
		}

		jobResults, err := pl.ProcessJobs(ctx, runnable, pcfg)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("batch cancelled: %w", ctxErr)
			}
			if !cfg.ContinueOnError {
				return nil, fmt.Errorf("batch processing failed: %w", err)
			}
		}
		for k, jr := range jobResults {
			results[positions[k]] = jr
		}
	}
	duration := time.Since(start)

	out := &Result{
		Files:       files,
		Results:     results,
		Duration:    duration,
		WorkerCount: workers,
	}
	stats := out.Stats()
	logger.Info("Batch complete",
		"files", stats.TotalJobs,
		"succeeded", stats.Succeeded,
		"unsuccessful", stats.Unsuccessful,
		"errored", stats.Errored,
		"duration", duration)
	return out, nil
}

func effectiveWorkers(requested int, pl *pipeline.Pipeline, jobs int) int {
	n := requested
	if n <= 0 {
		n = pl.Config().Parallel.MaxWorkers
	}
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if jobs > 0 && n > jobs {
		n = jobs
	}
	return n
}
