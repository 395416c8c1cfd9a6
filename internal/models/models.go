package models

import "time"

// ==================== Conversation Models ====================

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one side of a conversation turn.
// Content of an assistant message grows while its turn streams.
type Message struct {
	ID               string         `json:"id"`
	Role             Role           `json:"role"`
	Content          string         `json:"content"`
	CreatedAt        time.Time      `json:"created_at"`
	Model            string         `json:"model,omitempty"`
	SearchResults    []SearchResult `json:"search_results,omitempty"`
	RelatedQuestions []string       `json:"related_questions,omitempty"`
	IsSearching      bool           `json:"is_searching,omitempty"`
	Attachments      []string       `json:"attachments,omitempty"` // file names folded into Content
	Query            string         `json:"query,omitempty"`       // user text as typed, without attachments
}

// Clone returns a copy with its own RelatedQuestions and Attachments slices.
// SearchResults is shared: results are never modified once attached.
func (m Message) Clone() Message {
	if m.RelatedQuestions != nil {
		m.RelatedQuestions = append([]string(nil), m.RelatedQuestions...)
	}
	if m.Attachments != nil {
		m.Attachments = append([]string(nil), m.Attachments...)
	}
	return m
}

// ==================== Search Models ====================

// ResultType classifies a search hit
type ResultType string

const (
	ResultWeb   ResultType = "web"
	ResultImage ResultType = "image"
	ResultVideo ResultType = "video"
)

// SearchResult is a normalized hit produced by a search provider
type SearchResult struct {
	Title    string     `json:"title"`
	Link     string     `json:"link"`
	Snippet  string     `json:"snippet"`
	Source   string     `json:"source"` // bare hostname
	Type     ResultType `json:"type"`
	ImageURL string     `json:"image_url,omitempty"`
}

// ==================== Completion API Models ====================

// CompletionRequest is the body sent to the chat completion endpoint
type CompletionRequest struct {
	Model    string            `json:"model"`
	Messages []ChatMessage     `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  GenerationOptions `json:"options"`
}

// ChatMessage represents a message replayed to the completion endpoint
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationOptions are the sampling parameters of a completion request
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	TopK        int     `json:"top_k"`
	TopP        float64 `json:"top_p"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
