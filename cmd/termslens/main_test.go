package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"termslens/internal/chat"
	"termslens/internal/models"
	"termslens/internal/services"
)

type stubAsker struct {
	questions []string
	contexts  []string
	err       error
}

func (s *stubAsker) Chat(ctx context.Context, question, contextText string) (*models.ChatResponse, error) {
	s.questions = append(s.questions, question)
	s.contexts = append(s.contexts, contextText)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChatResponse{Answer: "answer to " + question}, nil
}

func TestRunChat_TypedLineIsSubmitted(t *testing.T) {
	asker := &stubAsker{}
	panel := chat.NewPanel(asker, "terms")

	var out bytes.Buffer
	err := runChat(context.Background(), panel, strings.NewReader("Can I cancel?\n/quit\n"), &out)
	if err != nil {
		t.Fatalf("runChat: %v", err)
	}

	if len(asker.questions) != 1 || asker.questions[0] != "Can I cancel?" || asker.contexts[0] != "terms" {
		t.Errorf("unexpected calls: %v %v", asker.questions, asker.contexts)
	}
	if !strings.Contains(out.String(), "Assistant: answer to Can I cancel?") {
		t.Errorf("answer not printed:\n%s", out.String())
	}
	if len(panel.State().Transcript) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(panel.State().Transcript))
	}
}

func TestRunChat_SuggestFillsThenEmptyLineSends(t *testing.T) {
	asker := &stubAsker{}
	panel := chat.NewPanel(asker, "terms")

	var out bytes.Buffer
	runChat(context.Background(), panel, strings.NewReader("/suggest 3\n\n"), &out)

	if !strings.Contains(out.String(), "Input: Are there any automatic renewals? (press Enter to send)") {
		t.Errorf("suggestion not echoed:\n%s", out.String())
	}
	if len(asker.questions) != 1 || asker.questions[0] != "Are there any automatic renewals?" {
		t.Errorf("Expected the suggestion to be sent once, got %v", asker.questions)
	}
}

func TestRunChat_EmptyLineWithoutInputDoesNothing(t *testing.T) {
	asker := &stubAsker{}
	panel := chat.NewPanel(asker, "terms")

	runChat(context.Background(), panel, strings.NewReader("\n   \n"), &bytes.Buffer{})

	if len(asker.questions) != 0 {
		t.Errorf("blank lines must not submit, got %v", asker.questions)
	}
}

func TestRunChat_BadSuggestion(t *testing.T) {
	panel := chat.NewPanel(&stubAsker{}, "terms")

	var out bytes.Buffer
	runChat(context.Background(), panel, strings.NewReader("/suggest 9\n/suggest x\n"), &out)

	if strings.Count(out.String(), "Pick a suggestion from 1 to 3.") != 2 {
		t.Errorf("Expected two hints:\n%s", out.String())
	}
	if panel.State().Input != "" {
		t.Errorf("input should be untouched, got %q", panel.State().Input)
	}
}

func TestRunChat_FailureShowsError(t *testing.T) {
	asker := &stubAsker{err: &services.HTTPError{StatusCode: http.StatusBadRequest, Detail: "Context is too short"}}
	panel := chat.NewPanel(asker, "terms")

	var out bytes.Buffer
	runChat(context.Background(), panel, strings.NewReader("question\n"), &out)

	if !strings.Contains(out.String(), "⚠️ Context is too short") {
		t.Errorf("error not printed:\n%s", out.String())
	}
	if len(panel.State().Transcript) != 0 {
		t.Errorf("failed round must leave the transcript empty")
	}
}

type stubAnalyzer struct{ err error }

func (s stubAnalyzer) Analyze(ctx context.Context, text, url string) (*models.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.AnalysisResult{Summary: "ok", RiskScore: "High", Alerts: []string{"auto-renewal"}}, nil
}

func TestAnalyze_ErrorUsesServerDetail(t *testing.T) {
	_, err := analyze(context.Background(), stubAnalyzer{err: &services.HTTPError{StatusCode: 400, Detail: "Provide either text or url"}}, "", "")
	if err == nil || err.Error() != "analyze: Provide either text or url" {
		t.Errorf("unexpected error: %v", err)
	}

	cause := errors.New("connection refused")
	_, err = analyze(context.Background(), stubAnalyzer{err: cause}, "t", "")
	if !errors.Is(err, cause) {
		t.Errorf("transport error should be wrapped, got %v", err)
	}
}

func TestInputOptions_FileReplacesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.md")
	if err := os.WriteFile(path, []byte("# Terms\n\nNo refunds.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := inputOptions{text: "ignored", file: path}
	text, err := opts.resolve(services.NewDocumentExtractor())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if text != "# Terms\n\nNo refunds." {
		t.Errorf("unexpected text %q", text)
	}

	opts = inputOptions{text: "kept"}
	if text, _ := opts.resolve(services.NewDocumentExtractor()); text != "kept" {
		t.Errorf("Expected text flag, got %q", text)
	}
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"ok","risk_score":"High","alerts":["auto-renewal"]}`))
	}))
	defer srv.Close()

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--api", srv.URL, "analyze", "--text", "terms", "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if body["text"] != "terms" || body["url"] != nil {
		t.Errorf("unexpected request body: %v", body)
	}
	var result models.AnalysisResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if result.RiskScore != "High" || len(result.Alerts) != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestChatCommand_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/analyze":
			w.Write([]byte(`{"summary":"ok","risk_score":"Low","alerts":[]}`))
		case "/chat":
			var req models.ChatRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(models.ChatResponse{Answer: "context was " + req.Context})
		}
	}))
	defer srv.Close()

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("What fees?\n/quit\n"))
	cmd.SetArgs([]string{"--api", srv.URL, "chat", "--text", "the terms"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(out.String(), "Risk Score: Low") {
		t.Errorf("result cards missing:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Assistant: context was the terms") {
		t.Errorf("chat answer missing:\n%s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	cmd.Execute()

	if !strings.HasPrefix(out.String(), "termslens version "+Version) {
		t.Errorf("unexpected version output %q", out.String())
	}
}
