package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/spf13/cobra"
)

// fieldsCmd lists the nutrition fields the engine recognises.
var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List recognised nutrition fields and their keywords",
	Long: `Print the field table used for classification: each field's keywords,
plausible per-100g range and priority.

Examples:
  labelscan fields
  labelscan fields --format json`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := buildEngine(GetConfig(), nil)
		if err != nil {
			return fmt.Errorf("failed to create engine: %w", err)
		}
		format, _ := cmd.Flags().GetString("format")
		return writeFields(cmd.OutOrStdout(), engine.Fields(), format)
	},
}

type fieldEntry struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Min      float64  `json:"min"`
	Max      float64  `json:"max"`
	Priority int      `json:"priority"`
}

func writeFields(w io.Writer, table nutrition.FieldTable, format string) error {
	switch format {
	case outputFormatJSON:
		entries := make([]fieldEntry, 0, len(table))
		for _, f := range table {
			entries = append(entries, fieldEntry{
				Name:     string(f.Type),
				Keywords: f.Keywords,
				Min:      f.Min,
				Max:      f.Max,
				Priority: f.Priority,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case outputFormatText:
		for _, f := range table {
			if _, err := fmt.Fprintf(w, "%-14s %g-%g  priority %d  %s\n",
				f.Type, f.Min, f.Max, f.Priority, strings.Join(f.Keywords, ", ")); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("invalid output format: %s (must be text or json)", format)
	}
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
	fieldsCmd.Flags().StringP("format", "f", outputFormatText, "output format: text, json")
}
