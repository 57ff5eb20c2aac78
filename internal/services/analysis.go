package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"termslens/internal/models"
)

const DefaultAnalysisURL = "http://localhost:8000"

const (
	endpointAnalyze = "/analyze"
	endpointChat    = "/chat"
)

// HTTPError is returned for any non-2xx response from the analysis service.
type HTTPError struct {
	StatusCode int
	// Detail is the server-supplied "detail" field, empty when absent.
	Detail string
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// ErrorDetail returns the server-supplied detail carried by err, if any.
func ErrorDetail(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Detail
	}
	return ""
}

// AnalysisService talks to the external analysis and question-answering
// service. It forwards what it is given and returns decoded bodies as-is.
type AnalysisService struct {
	baseURL    string
	httpClient *http.Client
	metrics    *Metrics
}

type AnalysisOption func(*AnalysisService)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) AnalysisOption {
	return func(s *AnalysisService) { s.httpClient = c }
}

// WithTimeout sets a per-request timeout on a copy of the current client,
// keeping its transport. Zero means none.
func WithTimeout(d time.Duration) AnalysisOption {
	return func(s *AnalysisService) {
		if d > 0 {
			c := *s.httpClient
			c.Timeout = d
			s.httpClient = &c
		}
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) AnalysisOption {
	return func(s *AnalysisService) { s.metrics = m }
}

func NewAnalysisService(baseURL string, opts ...AnalysisOption) *AnalysisService {
	if baseURL == "" {
		baseURL = DefaultAnalysisURL
	}
	s := &AnalysisService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AnalysisService) BaseURL() string {
	return s.baseURL
}

// Analyze submits text or a URL for risk analysis. Empty arguments are sent
// as null; whether exactly one is set is left to the service.
func (s *AnalysisService) Analyze(ctx context.Context, text, url string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := s.post(ctx, endpointAnalyze, models.NewAnalysisRequest(text, url), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Chat asks a question grounded in the given context.
func (s *AnalysisService) Chat(ctx context.Context, question, contextText string) (*models.ChatResponse, error) {
	var resp models.ChatResponse
	req := models.ChatRequest{Question: question, Context: contextText}
	if err := s.post(ctx, endpointChat, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *AnalysisService) post(ctx context.Context, endpoint string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() { s.metrics.observeRequest(endpoint, start, err) }()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(respBody),
			Body:       respBody,
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// parseDetail extracts the "detail" field of an error body. FastAPI sends
// either a string or a list of validation errors with a "msg" each.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		return detail
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
