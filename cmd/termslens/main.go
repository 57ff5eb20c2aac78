// Package main provides the termslens terminal client. It analyzes Terms &
// Conditions through the analysis service and lets the user ask follow-up
// questions from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"termslens/internal/config"
	"termslens/internal/services"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "termslens"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// inputOptions are the document flags shared by analyze and chat.
type inputOptions struct {
	text string
	url  string
	file string
}

func (o *inputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.text, "text", "", "Terms & Conditions text to analyze")
	cmd.Flags().StringVar(&o.url, "url", "", "URL of the Terms & Conditions page")
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "Document to analyze (.txt, .md, .pdf, .docx)")
}

func rootCmd() *cobra.Command {
	var (
		apiURL  string
		timeout time.Duration
	)

	cfg := config.LoadClient()

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Analyze Terms & Conditions for risk",
		Long: `termslens sends Terms & Conditions to the analysis service and prints
a summary, a risk score and the clauses worth a closer look.

The chat command keeps the analyzed document as context so follow-up
questions are answered against it.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&apiURL, "api", cfg.AnalysisAPIURL, "Analysis service base URL (ANALYSIS_API_URL)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", cfg.AnalysisTimeout, "Per-request timeout, 0 for none (ANALYSIS_TIMEOUT)")

	newService := func() *services.AnalysisService {
		return services.NewAnalysisService(apiURL, services.WithTimeout(timeout))
	}

	cmd.AddCommand(analyzeCmd(newService), chatCmd(newService))

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}
