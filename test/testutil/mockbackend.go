package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"
)

// MockChatBackend is an httptest.Server that simulates an OpenAI-compatible
// chat-completions endpoint at /v1/chat/completions.
type MockChatBackend struct {
	Server *httptest.Server

	// Configurable response fields. Answer is returned verbatim, so tests
	// supply search-encoded text when they want to observe decoding.
	Answer    string
	MessageID string
	Model     string
	RequestID string

	// AbortStreamAfter, when > 0, tears down the connection after that many
	// content chunks of a streaming response, simulating a backend that dies
	// mid-stream.
	AbortStreamAfter int

	// LastRequest captures the most recent request body parsed.
	LastRequest map[string]any
}

// NewMockChatBackend creates and starts a mock completion backend.
func NewMockChatBackend(answer, messageID, requestID string) *MockChatBackend {
	m := &MockChatBackend{
		Answer:    answer,
		MessageID: messageID,
		Model:     "gpt-4",
		RequestID: requestID,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockChatBackend) Close() {
	m.Server.Close()
}

// URL returns the base URL of the mock server.
func (m *MockChatBackend) URL() string {
	return m.Server.URL
}

func (m *MockChatBackend) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	m.LastRequest = body

	if stream, _ := body["stream"].(bool); stream {
		m.writeStreaming(w)
		return
	}
	m.writeBlocking(w)
}

func (m *MockChatBackend) writeBlocking(w http.ResponseWriter) {
	resp := map[string]any{
		"id":      m.MessageID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   m.Model,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": m.Answer},
				"finish_reason": "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("apim-request-id", m.RequestID)
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *MockChatBackend) writeStreaming(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("apim-request-id", m.RequestID)
	flusher, hasFlusher := w.(http.Flusher)

	send := func(delta map[string]any, finish any) {
		chunk := map[string]any{
			"id":      m.MessageID,
			"object":  "chat.completion.chunk",
			"created": time.Now().Unix(),
			"model":   m.Model,
			"choices": []map[string]any{
				{"index": 0, "delta": delta, "finish_reason": finish},
			},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if hasFlusher {
			flusher.Flush()
		}
	}

	// Role-only opening frame, then the answer split into pieces.
	send(map[string]any{"role": "assistant"}, nil)
	for i, piece := range splitPieces(m.Answer) {
		if m.AbortStreamAfter > 0 && i == m.AbortStreamAfter {
			// Close the raw connection without the terminal chunk so the
			// client sees an unexpected EOF, not a clean end of stream.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		if i > 0 {
			piece = " " + piece
		}
		send(map[string]any{"content": piece}, nil)
	}
	send(map[string]any{}, "stop")

	fmt.Fprint(w, "data: [DONE]\n\n")
	if hasFlusher {
		flusher.Flush()
	}
}

func splitPieces(s string) []string {
	pieces := strings.Fields(s)
	if len(pieces) == 0 {
		return []string{s}
	}
	return pieces
}
