package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"termslens/internal/chat"
	"termslens/internal/models"
	"termslens/internal/repository"
	"termslens/internal/services"
	"termslens/internal/view"
)

const analyzeFallbackMessage = "Failed to analyze. Please try again."

var errStoreSession = errors.New("store session")

// Form uploads carry one document plus the text and url fields.
const maxFormBytes = services.MaxDocumentBytes + 1<<20

// Analyzer runs a risk analysis on text or a URL.
type Analyzer interface {
	Analyze(ctx context.Context, text, url string) (*models.AnalysisResult, error)
}

type AnalyzeHandler struct {
	analyzer  Analyzer
	sessions  repository.SessionRepo
	extractor *services.DocumentExtractor
}

func NewAnalyzeHandler(analyzer Analyzer, sessions repository.SessionRepo, extractor *services.DocumentExtractor) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:  analyzer,
		sessions:  sessions,
		extractor: extractor,
	}
}

type analysisInput struct {
	text      string
	url       string
	source    string
	sourceRef string
}

func (h *AnalyzeHandler) Index(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, http.StatusOK, view.IndexPage{})
}

// Submit handles the analyze form. Text, url and an optional document are
// forwarded without local validation; the service decides what is valid.
func (h *AnalyzeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.renderIndex(w, http.StatusBadRequest, view.IndexPage{Error: "Invalid form submission"})
		return
	}

	page := view.IndexPage{
		Text: r.FormValue("text"),
		URL:  strings.TrimSpace(r.FormValue("url")),
	}
	input := analysisInput{text: page.Text, url: page.URL}

	if r.MultipartForm != nil {
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			text, err := h.extractor.Extract(header.Filename, file)
			if err != nil {
				log.Printf("Document extraction failed for %s: %v", header.Filename, err)
				page.Error = "Could not read the document: " + err.Error()
				h.renderIndex(w, http.StatusBadRequest, page)
				return
			}
			input.text = text
			input.source = models.SourceFile
			input.sourceRef = filepath.Base(header.Filename)
		}
	}

	session, err := h.createSession(r.Context(), input)
	if err != nil {
		page.Error = analyzeErrorMessage(err)
		h.renderIndex(w, analyzeErrorStatus(err), page)
		return
	}

	http.Redirect(w, r, sessionURL(session.ID), http.StatusSeeOther)
}

// Create is the JSON form of Submit: `{text, url}` in, the new session out.
func (h *AnalyzeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	input := analysisInput{}
	if req.Text != nil {
		input.text = *req.Text
	}
	if req.URL != nil {
		input.url = *req.URL
	}

	session, err := h.createSession(r.Context(), input)
	if err != nil {
		writeJSON(w, analyzeErrorStatus(err), errorResp("ANALYSIS_FAILED", analyzeErrorMessage(err), r))
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *AnalyzeHandler) SupportedFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"formats": []map[string]string{
			{"extension": ".pdf", "mime_type": "application/pdf", "description": "PDF Document"},
			{"extension": ".docx", "mime_type": "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "description": "Word Document"},
			{"extension": ".txt", "mime_type": "text/plain", "description": "Plain Text"},
			{"extension": ".md", "mime_type": "text/markdown", "description": "Markdown"},
		},
		"max_bytes": services.MaxDocumentBytes,
	})
}

func (h *AnalyzeHandler) createSession(ctx context.Context, input analysisInput) (*models.Session, error) {
	result, err := h.analyzer.Analyze(ctx, input.text, input.url)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		Source:    input.source,
		SourceRef: input.sourceRef,
		Context:   chat.ContextFor(input.text, input.url, *result),
		Result:    *result,
	}
	if session.Source == "" {
		session.Source = models.SourceText
		if strings.TrimSpace(input.text) == "" && input.url != "" {
			session.Source = models.SourceURL
			session.SourceRef = input.url
		}
	}

	if err := h.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %w", errStoreSession, err)
	}
	return session, nil
}

func (h *AnalyzeHandler) renderIndex(w http.ResponseWriter, status int, page view.IndexPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := view.RenderIndex(w, page); err != nil {
		log.Printf("Render index failed: %v", err)
	}
}

// analyzeErrorMessage follows the chat panel's priority: the service's
// detail, then the error's message, then a fixed fallback.
func analyzeErrorMessage(err error) string {
	if detail := services.ErrorDetail(err); detail != "" {
		return detail
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return analyzeFallbackMessage
}

func analyzeErrorStatus(err error) int {
	var httpErr *services.HTTPError
	switch {
	case errors.Is(err, errStoreSession):
		return http.StatusInternalServerError
	case errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
