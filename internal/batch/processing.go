package batch

import (
	"fmt"
	"os"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/source"
)

// loadJob reads one input file into a pipeline job.
func loadJob(f File) (pipeline.Job, error) {
	job := pipeline.Job{Name: f.Path}
	switch f.Kind {
	case KindTokens:
		tokens, err := source.LoadTokenFile(f.Path)
		if err != nil {
			return job, fmt.Errorf("failed to load %s: %w", f.Path, err)
		}
		if tokens == nil {
			// An empty dump still runs and reports "no text".
			tokens = []nutrition.TextToken{}
		}
		job.Tokens = tokens
	case KindImage:
		data, err := os.ReadFile(f.Path) //nolint:gosec // G304: path comes from discovery over user arguments
		if err != nil {
			return job, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		if len(data) == 0 {
			return job, fmt.Errorf("empty image file: %s", f.Path)
		}
		job.Image = data
	default:
		return job, fmt.Errorf("unknown input kind %q for %s", f.Kind, f.Path)
	}
	return job, nil
}

// loadJobs reads every file. Index i of the returned slices refers to
// files[i]; a failed load leaves a zero job and a non-nil error.
func loadJobs(files []File) ([]pipeline.Job, []error) {
	jobs := make([]pipeline.Job, len(files))
	errs := make([]error, len(files))
	for i, f := range files {
		jobs[i], errs[i] = loadJob(f)
	}
	return jobs, errs
}
