package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"termslens/internal/chat"
	"termslens/internal/models"
	"termslens/internal/services"
	"termslens/internal/view"
)

func chatCmd(newService func() *services.AnalysisService) *cobra.Command {
	var input inputOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Analyze a document, then ask questions about it",
		Long: `chat prints the analysis and then reads questions line by line.

  /suggest N   fill the input with suggestion N without sending it
  (empty line) send the filled input
  /quit        exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := input.resolve(services.NewDocumentExtractor())
			if err != nil {
				return err
			}

			svc := newService()
			result, err := analyze(cmd.Context(), svc, text, input.url)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := view.RenderResultText(out, *result); err != nil {
				return err
			}
			fmt.Fprintln(out)

			panel := chat.NewPanel(svc, chat.ContextFor(text, input.url, *result))
			return runChat(cmd.Context(), panel, cmd.InOrStdin(), out)
		},
	}

	input.register(cmd)
	return cmd
}

// runChat drives panel from line input until /quit or EOF.
func runChat(ctx context.Context, panel *chat.Panel, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask a question about the Terms & Conditions to get started!")
	for i, s := range chat.Suggestions {
		fmt.Fprintf(out, "  /suggest %d  %s\n", i+1, s)
	}

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/suggest"):
			chooseSuggestion(panel, strings.TrimSpace(strings.TrimPrefix(line, "/suggest")), out)
		case line == "":
			if strings.TrimSpace(panel.State().Input) != "" {
				submit(ctx, panel, out)
			}
		default:
			panel.SetInput(line)
			submit(ctx, panel, out)
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func chooseSuggestion(panel *chat.Panel, arg string, out io.Writer) {
	n, err := strconv.Atoi(arg)
	if err == nil {
		err = panel.ChooseSuggestion(n - 1)
	}
	if err != nil {
		fmt.Fprintf(out, "Pick a suggestion from 1 to %d.\n", len(chat.Suggestions))
		return
	}
	fmt.Fprintf(out, "Input: %s (press Enter to send)\n", panel.State().Input)
}

func submit(ctx context.Context, panel *chat.Panel, out io.Writer) {
	fmt.Fprintln(out, "Thinking...")
	err := panel.Submit(ctx)
	state := panel.State()

	switch {
	case err == nil:
		fmt.Fprintf(out, "Assistant: %s\n", lastAnswer(state))
	case errors.Is(err, chat.ErrBlankQuestion), errors.Is(err, chat.ErrBusy):
	default:
		fmt.Fprintf(out, "⚠️ %s\n", state.Error)
	}
}

func lastAnswer(state models.ChatState) string {
	if n := len(state.Transcript); n > 0 && state.Transcript[n-1].Role == models.RoleAssistant {
		return state.Transcript[n-1].Content
	}
	return ""
}
