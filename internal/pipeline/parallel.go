package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
)

// ParallelConfig holds configuration for parallel processing.
type ParallelConfig struct {
	MaxWorkers       int                   // Number of parallel workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback      // Optional progress reporting
	ErrorHandler     func(int, Job, error) // Optional per-job error handler
}

// DefaultParallelConfig returns sensible defaults for parallel processing.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// Job is one unit of batch work: either detected tokens or an encoded image.
// Tokens win when both are set.
type Job struct {
	Name   string
	Tokens []nutrition.TextToken
	Image  []byte
}

// JobResult is the outcome of a Job.
type JobResult struct {
	Name     string
	Result   *nutrition.Result
	Err      error
	Duration time.Duration
}

var errEmptyJob = errors.New("job has neither tokens nor image data")

type indexedJob struct {
	index int
	job   Job
}

// ProcessJobs runs jobs on a worker pool. Results come back in input order.
// A failing job does not stop the others; the returned error is the first
// job error, or the context error when cancelled.
func (p *Pipeline) ProcessJobs(ctx context.Context, jobs []Job, config ParallelConfig) ([]JobResult, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no jobs provided")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = p.cfg.Parallel.MaxWorkers
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.MaxWorkers > len(jobs) {
		config.MaxWorkers = len(jobs)
	}
	if config.ProgressCallback == nil {
		config.ProgressCallback = p.cfg.Parallel.ProgressCallback
	}
	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(jobs))
		defer config.ProgressCallback.OnComplete()
	}

	queue := make(chan indexedJob)
	results := make([]JobResult, len(jobs))
	done := make(chan int, len(jobs))

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range queue {
				results[ij.index] = p.runJob(ctx, ij.job)
				done <- ij.index
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, j := range jobs {
			select {
			case queue <- indexedJob{index: i, job: j}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	processed := 0
	for idx := range done {
		processed++
		if config.ProgressCallback != nil {
			if err := results[idx].Err; err != nil {
				config.ProgressCallback.OnError(idx, err)
			}
			config.ProgressCallback.OnProgress(processed, len(jobs))
		}
	}

	if err := ctx.Err(); err != nil {
		return results, err
	}

	var firstErr error
	for i, r := range results {
		if r.Err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("job %d (%s): %w", i, r.Name, r.Err)
		}
		if config.ErrorHandler != nil {
			config.ErrorHandler(i, jobs[i], r.Err)
		}
	}
	return results, firstErr
}

func (p *Pipeline) runJob(ctx context.Context, j Job) JobResult {
	start := time.Now()
	out := JobResult{Name: j.Name}
	switch {
	case j.Tokens != nil:
		out.Result, out.Err = p.ProcessTokens(ctx, j.Tokens)
	case len(j.Image) > 0:
		out.Result, out.Err = p.ProcessImage(ctx, j.Image)
	default:
		out.Err = errEmptyJob
	}
	out.Duration = time.Since(start)
	return out
}

// ParallelStats holds statistics about a job batch.
type ParallelStats struct {
	TotalJobs        int           `json:"total_jobs"`
	Succeeded        int           `json:"succeeded"`
	Unsuccessful     int           `json:"unsuccessful"`
	Errored          int           `json:"errored"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerJob    time.Duration `json:"average_per_job_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// CalculateParallelStats summarises job results. Unsuccessful counts jobs
// that ran but produced a failed result; Errored counts jobs that could not
// run at all.
func CalculateParallelStats(results []JobResult, duration time.Duration, workerCount int) ParallelStats {
	stats := ParallelStats{
		TotalJobs:     len(results),
		WorkerCount:   workerCount,
		TotalDuration: duration,
	}
	for _, r := range results {
		switch {
		case r.Err != nil || r.Result == nil:
			stats.Errored++
		case r.Result.Success:
			stats.Succeeded++
		default:
			stats.Unsuccessful++
		}
	}
	ran := stats.Succeeded + stats.Unsuccessful
	if ran > 0 && duration > 0 {
		stats.AveragePerJob = duration / time.Duration(ran)
		stats.ThroughputPerSec = float64(ran) / duration.Seconds()
	}
	return stats
}
