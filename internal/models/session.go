package models

import (
	"time"

	"github.com/google/uuid"
)

// Session sources
const (
	SourceText = "text"
	SourceURL  = "url"
	SourceFile = "file"
)

// Session is one analyzed document together with its chat panel state.
type Session struct {
	ID        uuid.UUID      `json:"id"`
	Source    string         `json:"source"`
	SourceRef string         `json:"source_ref,omitempty"` // URL or file name
	Context   string         `json:"context"`
	Result    AnalysisResult `json:"result"`
	Chat      ChatState      `json:"chat"`
	CreatedAt time.Time      `json:"created_at"`
}
