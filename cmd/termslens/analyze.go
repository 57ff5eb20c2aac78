package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"termslens/internal/models"
	"termslens/internal/services"
	"termslens/internal/view"
)

func analyzeCmd(newService func() *services.AnalysisService) *cobra.Command {
	var (
		input  inputOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a document and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input.resolve(services.NewDocumentExtractor())
			if err != nil {
				return err
			}

			result, err := analyze(cmd.Context(), newService(), text, input.url)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return view.RenderResultText(cmd.OutOrStdout(), *result)
		},
	}

	input.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decoded response as JSON")
	return cmd
}

// Analyzer runs a risk analysis on text or a URL.
type Analyzer interface {
	Analyze(ctx context.Context, text, url string) (*models.AnalysisResult, error)
}

func analyze(ctx context.Context, a Analyzer, text, url string) (*models.AnalysisResult, error) {
	result, err := a.Analyze(ctx, text, url)
	if err != nil {
		if detail := services.ErrorDetail(err); detail != "" {
			return nil, fmt.Errorf("analyze: %s", detail)
		}
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return result, nil
}

// resolve returns the text to submit. A file replaces --text.
func (o *inputOptions) resolve(extractor *services.DocumentExtractor) (string, error) {
	if o.file == "" {
		return o.text, nil
	}
	text, err := extractor.ExtractFile(o.file)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return text, nil
}
