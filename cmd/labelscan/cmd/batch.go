package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/batch"
	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd scans many token dumps and photos in parallel.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Scan many token dumps and label photos in parallel",
	Long: `Scan token dumps (*.json, *.yaml, *.yml) and label photos found in the
given files and directories on a pool of workers. Results are printed in
discovery order.

Examples:
  labelscan batch dumps/
  labelscan batch dumps/ photos/ --recursive --workers 8
  labelscan batch dumps/ --include "*.json" --format json --output results.json
  labelscan batch dumps/ --continue-on-error --stats`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps the loaded configuration and flags to batch.Config.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) batch.Config {
	bc := batch.DefaultConfig()
	bc.Workers = intFlag(cmd, "workers", cfg.Batch.Workers)
	bc.ContinueOnError = boolFlag(cmd, "continue-on-error", cfg.Batch.ContinueOnError)
	bc.Recursive = boolFlag(cmd, "recursive", cfg.Batch.Recursive)
	bc.IncludePatterns = cfg.Batch.Include
	if cmd.Flags().Changed("include") {
		bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	}
	bc.ExcludePatterns = cfg.Batch.Exclude
	if cmd.Flags().Changed("exclude") {
		bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	}
	bc.Format = stringFlag(cmd, "format", cfg.Output.Format)
	bc.OutputFile = stringFlag(cmd, "output", cfg.Output.File)

	bc.ShowProgress, _ = cmd.Flags().GetBool("progress")
	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	bc.ShowStats, _ = cmd.Flags().GetBool("stats")
	bc.ProgressInterval, _ = cmd.Flags().GetDuration("progress-interval")
	bc.ProgressWriter = cmd.ErrOrStderr()
	return bc
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig()
	// Photos need an explicit source; token dumps are scanned directly.
	cfg.Source.Kind = stringFlag(cmd, "source", config.SourceTokens)
	bc := configToBatchConfig(&cfg, cmd)
	if err := bc.Validate(); err != nil {
		return err
	}
	tokenFile, _ := cmd.Flags().GetString("tokens")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := pipelineOptions{tokenFile: tokenFile}
	if cfg.Source.Kind == config.SourceTokens && tokenFile == "" {
		opts.tokensOnly = true
	}
	pl, err := buildPipeline(ctx, &cfg, opts)
	if err != nil {
		return err
	}
	defer func() { _ = pl.Close() }()

	result, err := batch.ProcessBatch(ctx, pl, args, bc, nil)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if err := result.SaveResults(bc.Format, bc.OutputFile, pl.Engine.Fields(), cmd.OutOrStdout(), bc.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if bc.ShowStats && !bc.Quiet {
		result.WriteStats(cmd.ErrOrStderr())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("format", "f", "text", "output format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().String("source", config.SourceTokens, "detection source for photos: tokens, vision or vlm")
	batchCmd.Flags().String("tokens", "", "replay this token dump for every photo")

	batchCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	batchCmd.Flags().Bool("continue-on-error", false, "report unreadable files instead of aborting")

	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", []string{}, "file patterns to include")
	batchCmd.Flags().StringSlice("exclude", []string{}, "file patterns to exclude")

	batchCmd.Flags().Bool("progress", false, "show progress bar")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")
	batchCmd.Flags().Duration("progress-interval", 500*time.Millisecond, "progress update interval")
}
