package cmd

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/config"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/spf13/cobra"
)

// imageCmd scans label photos through the configured detection source.
var imageCmd = &cobra.Command{
	Use:   "image [files...]",
	Short: "Extract nutrition values from label photos",
	Long: `Process one or more label photos. Text is detected with the configured
source (Google Cloud Vision by default) and passed through the extraction
engine. With --source vlm a vision-language model reads the values directly.

Supported formats: JPEG, PNG, BMP, WEBP

Examples:
  labelscan image label.jpg
  labelscan image *.png --format json
  labelscan image label.jpg --source vlm
  labelscan image label.jpg --tokens label.json --overlay-dir out/`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE:         runImageCommand,
}

func runImageCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoInput
	}
	cfg := *GetConfig()
	cfg.Source.Kind = stringFlag(cmd, "source", cfg.Source.Kind)
	cfg.Source.VLM.Provider = stringFlag(cmd, "vlm-provider", cfg.Source.VLM.Provider)
	cfg.Source.VLM.Model = stringFlag(cmd, "vlm-model", cfg.Source.VLM.Model)
	cfg.Output.OverlayDir = stringFlag(cmd, "overlay-dir", cfg.Output.OverlayDir)
	format := stringFlag(cmd, "format", cfg.Output.Format)
	outputFile := stringFlag(cmd, "output", cfg.Output.File)
	tokenFile, _ := cmd.Flags().GetString("tokens")
	if boolFlag(cmd, "no-cache", false) {
		cfg.Cache.Kind = config.CacheNone
	}

	if !slices.Contains(validOutputFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validOutputFormats, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pl, err := buildPipeline(ctx, &cfg, pipelineOptions{tokenFile: tokenFile})
	if err != nil {
		return err
	}
	defer func() { _ = pl.Close() }()

	style := pipeline.OverlayStyleFromHex(cfg.Output.LabelColor, cfg.Output.ValueColor, cfg.Output.LinkColor)
	var sections []string
	for _, path := range args {
		data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified image path
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		out, err := pl.Run(ctx, data)
		if err != nil {
			return fmt.Errorf("failed to process %s: %w", path, err)
		}
		if cfg.Output.OverlayDir != "" {
			if err := saveOverlay(cfg.Output.OverlayDir, path, out, style); err != nil {
				return err
			}
		}

		text, err := formatResult(out.Result, format, pl.Engine.Fields())
		if err != nil {
			return err
		}
		if len(args) > 1 && format == outputFormatText {
			text = fmt.Sprintf("# %s\n%s", path, text)
		}
		sections = append(sections, text)
	}
	return writeOutput(cmd, strings.Join(sections, "\n"), outputFile)
}

// saveOverlay writes <dir>/<base>_overlay.png.
func saveOverlay(dir, imagePath string, out *pipeline.Outcome, style pipeline.OverlayStyle) error {
	ov := pipeline.RenderOverlay(out.Image, out.Analysis, style)
	if ov == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create overlay dir: %w", err)
	}
	base := filepath.Base(imagePath)
	outPath := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+"_overlay.png")
	f, err := os.Create(outPath) //nolint:gosec // G304: outPath built from the overlay-dir flag
	if err != nil {
		return fmt.Errorf("failed to create overlay: %w", err)
	}
	if err := png.Encode(f, ov); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode overlay: %w", err)
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.Flags().StringP("format", "f", outputFormatText, "output format: text, json, csv")
	imageCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	imageCmd.Flags().String("source", config.SourceVision, "detection source: vision, vlm or tokens")
	imageCmd.Flags().String("vlm-provider", "anthropic", "vision-language model provider: anthropic or openai")
	imageCmd.Flags().String("vlm-model", "", "model name (default: provider default)")
	imageCmd.Flags().String("tokens", "", "replay this token dump instead of calling a detection source")
	imageCmd.Flags().String("overlay-dir", "", "directory to save overlay images")
	imageCmd.Flags().Bool("no-cache", false, "disable the result cache")
}
