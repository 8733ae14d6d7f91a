// Package chat normalizes completion-backend responses into the JSON
// envelope the chat UI consumes. The formatters return a plain map so the
// empty-object contract serializes exactly: an empty map means the response
// carried no usable message, and callers rely on that rather than on errors.
package chat

import (
	"github.com/chatbridge/chatbridge/internal/searchsafe"
)

// FormatNonStreamingResponse reshapes a full completion into the UI envelope.
// Content and context fields are decoded from their search-safe form. When
// the completion has no choices or no message the envelope is discarded and
// an empty map is returned.
func FormatNonStreamingResponse(completion *Completion, historyMetadata map[string]any, apimRequestID string) map[string]any {
	if completion == nil || len(completion.Choices) == 0 {
		return map[string]any{}
	}
	message := completion.Choices[0].Message
	if message == nil {
		return map[string]any{}
	}

	messages := make([]map[string]any, 0, 2)
	if message.Context != nil {
		messages = append(messages, map[string]any{
			"role":    "tool",
			"content": searchsafe.Decode(string(message.Context)),
		})
	}
	messages = append(messages, map[string]any{
		"role":    "assistant",
		"content": searchsafe.Decode(message.Content),
	})
	return envelope(completion.ID, completion.Model, completion.Created, completion.Object, historyMetadata, apimRequestID, messages)
}

// FormatStreamResponse reshapes one streamed chunk into the UI envelope,
// producing at most one message per chunk. Chunks whose delta carries neither
// context nor content (role-only continuation frames, keep-alives) yield an
// empty map.
func FormatStreamResponse(chunk *Chunk, historyMetadata map[string]any, apimRequestID string) map[string]any {
	if chunk == nil || len(chunk.Choices) == 0 {
		return map[string]any{}
	}
	delta := chunk.Choices[0].Delta
	if delta == nil {
		return map[string]any{}
	}

	switch {
	case delta.Context != nil:
		msg := map[string]any{
			"role":    "tool",
			"content": searchsafe.Decode(string(delta.Context)),
		}
		return envelope(chunk.ID, chunk.Model, chunk.Created, chunk.Object, historyMetadata, apimRequestID, []map[string]any{msg})
	case delta.Role == "assistant" && delta.Context != nil:
		// Never taken: the case above already claims every context-carrying
		// delta. Kept because the UI contract documents this shape (note the
		// context key in place of content) and removing it would change the
		// envelope if the branch order is ever revisited.
		msg := map[string]any{
			"role":    "assistant",
			"context": searchsafe.Decode(string(delta.Context)),
		}
		return envelope(chunk.ID, chunk.Model, chunk.Created, chunk.Object, historyMetadata, apimRequestID, []map[string]any{msg})
	case delta.Content != "":
		msg := map[string]any{
			"role":    "assistant",
			"content": searchsafe.Decode(delta.Content),
		}
		return envelope(chunk.ID, chunk.Model, chunk.Created, chunk.Object, historyMetadata, apimRequestID, []map[string]any{msg})
	}
	return map[string]any{}
}

func envelope(id, model string, created int64, object string, historyMetadata map[string]any, apimRequestID string, messages []map[string]any) map[string]any {
	return map[string]any{
		"id":               id,
		"model":            model,
		"created":          created,
		"object":           object,
		"choices":          []map[string]any{{"messages": messages}},
		"history_metadata": historyMetadata,
		"apim-request-id":  apimRequestID,
	}
}
