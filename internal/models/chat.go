package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is the payload sent to the analysis service's chat endpoint.
type ChatRequest struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// ChatResponse is the answer returned by the chat endpoint.
type ChatResponse struct {
	Answer string `json:"answer"`
}

// ChatState is everything a chat panel owns. Version grows by one with
// every change the panel makes.
type ChatState struct {
	Input      string        `json:"input"`
	Transcript []ChatMessage `json:"transcript"`
	InFlight   bool          `json:"in_flight"`
	Error      string        `json:"error,omitempty"`
	Version    uint64        `json:"version"`
}

// Clone returns a copy whose transcript does not alias s.
func (s ChatState) Clone() ChatState {
	out := s
	out.Transcript = make([]ChatMessage, len(s.Transcript))
	copy(out.Transcript, s.Transcript)
	return out
}
