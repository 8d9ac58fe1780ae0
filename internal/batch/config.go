package batch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
)

// Output formats understood by FormatResults.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Config holds all configuration for batch processing.
type Config struct {
	Workers         int
	ContinueOnError bool

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	Format     string
	OutputFile string

	// Progress settings
	ShowProgress     bool
	Quiet            bool
	ShowStats        bool
	ProgressInterval time.Duration
	// ProgressWriter receives the progress bar. Nil selects stderr.
	ProgressWriter io.Writer
}

// DefaultConfig returns the batch defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		Format:           FormatText,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d (must be >= 0)", c.Workers)
	}
	if c.Format != "" && !slices.Contains([]string{FormatText, FormatJSON, FormatCSV}, c.Format) {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	for _, p := range append(slices.Clone(c.IncludePatterns), c.ExcludePatterns...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return nil
}

// Result holds the result of batch processing. Results[i] belongs to Files[i].
type Result struct {
	Files       []File
	Results     []pipeline.JobResult
	Duration    time.Duration
	WorkerCount int
}

// Stats summarises the batch.
func (r *Result) Stats() pipeline.ParallelStats {
	return pipeline.CalculateParallelStats(r.Results, r.Duration, r.WorkerCount)
}

// Failed returns the number of files that could not be processed or whose
// scan did not succeed.
func (r *Result) Failed() int {
	s := r.Stats()
	return s.Errored + s.Unsuccessful
}

// FormatResults formats the batch processing results in the specified format.
func (r *Result) FormatResults(format string, table nutrition.FieldTable) (string, error) {
	if table == nil {
		table = nutrition.DefaultFields()
	}
	return formatBatchResults(r, format, table)
}

// SaveResults writes the formatted results to outputFile, or to w when no
// file is given.
func (r *Result) SaveResults(format, outputFile string, table nutrition.FieldTable, w io.Writer, quiet bool) error {
	output, err := r.FormatResults(format, table)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, err = io.WriteString(w, output)
	return err
}

// WriteStats prints processing statistics.
func (r *Result) WriteStats(w io.Writer) {
	if len(r.Results) == 0 {
		return
	}
	stats := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total files: %d\n", stats.TotalJobs)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", stats.Succeeded+stats.Unsuccessful)
	_, _ = fmt.Fprintf(w, "  With values: %d\n", stats.Succeeded)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", stats.Errored+stats.Unsuccessful)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", stats.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", stats.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per file: %v\n", stats.AveragePerJob.Round(time.Microsecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f files/sec\n", stats.ThroughputPerSec)
}
