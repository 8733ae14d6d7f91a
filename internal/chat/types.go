package chat

import "encoding/json"

// Message is a chat message as the completion backend returns it. Context is
// the raw JSON of the search-grounding payload; nil means the field was
// absent, which is the normal case for plain assistant replies.
type Message struct {
	Role    string          `json:"role,omitempty"`
	Content string          `json:"content,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Choice wraps one completion result.
type Choice struct {
	Message *Message `json:"message,omitempty"`
}

// Completion is a non-streaming chat completion.
type Completion struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Object  string   `json:"object"`
	Choices []Choice `json:"choices"`
}

// ChunkChoice wraps one streamed delta. Delta.Role may be empty on
// continuation chunks.
type ChunkChoice struct {
	Delta *Message `json:"delta,omitempty"`
}

// Chunk is one streamed piece of a chat completion.
type Chunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Created int64         `json:"created"`
	Object  string        `json:"object"`
	Choices []ChunkChoice `json:"choices"`
}

// HistoryMessage is one entry of the conversation history the UI posts.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ConversationRequest is the body of POST /conversation.
type ConversationRequest struct {
	Messages        []HistoryMessage `json:"messages"`
	Stream          bool             `json:"stream"`
	HistoryMetadata map[string]any   `json:"history_metadata,omitempty"`
}
