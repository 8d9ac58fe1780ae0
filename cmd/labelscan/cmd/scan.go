package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/spf13/cobra"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

var validOutputFormats = []string{outputFormatText, outputFormatJSON, outputFormatCSV}

// scanCmd extracts values from recorded token dumps.
var scanCmd = &cobra.Command{
	Use:   "scan [token files...]",
	Short: "Extract nutrition values from OCR token dumps",
	Long: `Read one or more token dumps (JSON or YAML, either {"tokens": [...]} or a
bare list of {text, confidence, x, y, width, height}) and print the per-100g
nutrition values found in them. Use "-" to read a dump from stdin.

Examples:
  labelscan scan tokens.json
  labelscan scan label.yaml --format json
  cat tokens.json | labelscan scan - --input-format json`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runScanCommand,
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	cfg := *GetConfig()
	format := stringFlag(cmd, "format", cfg.Output.Format)
	outputFile := stringFlag(cmd, "output", cfg.Output.File)
	if !slices.Contains(validOutputFormats, format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", format, strings.Join(validOutputFormats, ", "))
	}
	inputFormat, _ := cmd.Flags().GetString("input-format")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pl, err := buildPipeline(ctx, &cfg, pipelineOptions{tokensOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = pl.Close() }()

	var sections []string
	for _, arg := range args {
		tokens, err := readTokens(cmd.InOrStdin(), arg, inputFormat)
		if err != nil {
			return fmt.Errorf("failed to load tokens from %s: %w", arg, err)
		}
		res, err := pl.ProcessTokens(ctx, tokens)
		if err != nil {
			return fmt.Errorf("scan of %s failed: %w", arg, err)
		}
		out, err := formatResult(res, format, pl.Engine.Fields())
		if err != nil {
			return err
		}
		if len(args) > 1 && format == outputFormatText {
			out = fmt.Sprintf("# %s\n%s", arg, out)
		}
		sections = append(sections, out)
	}

	return writeOutput(cmd, strings.Join(sections, "\n"), outputFile)
}

// readTokens loads a dump from path, or from stdin for "-".
func readTokens(stdin io.Reader, path, inputFormat string) ([]nutrition.TextToken, error) {
	if path == "-" {
		if inputFormat == "" {
			inputFormat = string(source.FormatJSON)
		}
		return source.ReadTokens(stdin, source.Format(inputFormat))
	}
	if inputFormat != "" {
		data, err := os.ReadFile(path) //nolint:gosec // G304: user-specified token dump
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return source.ParseTokens(data, source.Format(inputFormat))
	}
	return source.LoadTokenFile(path)
}

// formatResult renders one result. JSON output is indented; text and CSV
// end with a newline.
func formatResult(res *nutrition.Result, format string, table nutrition.FieldTable) (string, error) {
	switch format {
	case outputFormatJSON:
		out, err := nutrition.ToJSON(res)
		if err != nil {
			return "", err
		}
		return out + "\n", nil
	case outputFormatCSV:
		return nutrition.ToCSV(res, table)
	case outputFormatText:
		out, err := nutrition.ToPlainText(res, table)
		if err != nil {
			return "", err
		}
		return out + "\n", nil
	default:
		return "", fmt.Errorf("invalid output format: %s", format)
	}
}

// writeOutput prints to stdout or writes outputFile.
func writeOutput(cmd *cobra.Command, output, outputFile string) error {
	if outputFile == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), output)
		return err
	}
	if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

var errNoInput = errors.New("no input files provided")

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("format", "f", outputFormatText, "output format: text, json, csv")
	scanCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	scanCmd.Flags().String("input-format", "", "token dump format: json or yaml (default: from extension, json for stdin)")
}
