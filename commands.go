package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/username/taxcore/src/config"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/parsers"
	"github.com/username/taxcore/src/security/validation"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readDocument loads a local text document the same way an upload is checked.
func readDocument(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() > config.Cfg.MaxUploadSizeBytes {
		return "", fmt.Errorf("%s is %s, max %s", path, humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(config.Cfg.MaxUploadSizeBytes)))
	}
	if _, err := validation.ValidateFileContentByMagicBytes(f); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return validation.StripUnprintable(string(raw)), nil
}

func importConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-config [file]",
		Short: "Replace the stored tax tables with the years in a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Cfg.TaxConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			summary, err := a.config.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d brackets and %d standard deductions for %v from %s\n",
				summary.Brackets, summary.Deductions, summary.Years, path)
			return nil
		},
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Show which tax form a text document looks like",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			scores := parsers.ClassifyWithScores(text)
			if scores == nil {
				scores = []parsers.ClassificationScore{}
			}
			return printJSON(map[string]any{
				"document_type": parsers.Classify(text),
				"matches":       scores,
			})
		},
	}
}

func extractCmd() *cobra.Command {
	var docType string

	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "Classify a text document and extract its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocument(args[0])
			if err != nil {
				return err
			}
			t := models.DocumentType(strings.ToLower(docType))
			if t == "" {
				t = parsers.Classify(text)
			}
			if !t.Known() {
				return fmt.Errorf("could not classify %s; pass --type", args[0])
			}

			extractor, err := parsers.NewExtractorFromConfig(cmd.Context(), config.Cfg)
			if err != nil {
				return err
			}
			outcome, err := extractor.Extract(cmd.Context(), t, text)
			if err != nil {
				_ = printJSON(outcome.Attempts)
				return err
			}
			return printJSON(map[string]any{
				"document_type": t,
				"method":        outcome.Method,
				"provider":      outcome.Provider,
				"confidence":    outcome.Result.Confidence,
				"needs_review":  outcome.NeedsReview,
				"fields":        outcome.Result.Fields,
			})
		},
	}

	cmd.Flags().StringVar(&docType, "type", "", "document type (w2, 1099_div, 1099_int, 1099_b); classified when empty")
	return cmd
}

func calculateCmd() *cobra.Command {
	var filingStatus string

	cmd := &cobra.Command{
		Use:   "calculate [tax-return-id]",
		Short: "Recalculate a stored return and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			_, returns, err := a.buildServices(cmd.Context())
			if err != nil {
				return err
			}
			result, err := returns.Calculate(cmd.Context(), args[0], models.FilingStatus(filingStatus))
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&filingStatus, "filing-status", "", "override the return's filing status")
	return cmd
}
