// Package promptflow adapts conversations to and from the promptflow chat
// flow contract, whose request and response field names are configurable.
package promptflow

import (
	"github.com/chatbridge/chatbridge/internal/chat"
	"github.com/chatbridge/chatbridge/internal/searchsafe"
)

// Turn is one request/response pair in the chat flow's history format.
type Turn struct {
	Inputs  map[string]string `json:"inputs"`
	Outputs map[string]string `json:"outputs"`
}

// ConvertToChatHistory reshapes the UI's message history into the
// list-of-turns form the chat flow expects. Each user message opens a turn
// with its content encoded for search ingestion; the following assistant
// message back-fills that turn's output. An assistant message with no
// preceding user turn is dropped, as are messages of any other role.
func ConvertToChatHistory(messages []chat.HistoryMessage, requestFieldName, responseFieldName string) []Turn {
	turns := []Turn{}
	for _, m := range messages {
		switch {
		case m.Role == "user":
			turns = append(turns, Turn{
				Inputs:  map[string]string{requestFieldName: searchsafe.Encode(m.Content)},
				Outputs: map[string]string{responseFieldName: ""},
			})
		case m.Role == "assistant" && len(turns) > 0:
			turns[len(turns)-1].Outputs[responseFieldName] = searchsafe.Decode(m.Content)
		}
	}
	return turns
}

// BuildRequest assembles the chat flow request body: the latest user turn's
// encoded input becomes the query field and the preceding turns become
// chat_history. filter, when non-empty, is the group authorization filter
// forwarded to the search-backed flow.
func BuildRequest(messages []chat.HistoryMessage, requestFieldName, responseFieldName, filter string) map[string]any {
	turns := ConvertToChatHistory(messages, requestFieldName, responseFieldName)

	body := map[string]any{
		requestFieldName: "",
		"chat_history":   []Turn{},
	}
	if len(turns) > 0 {
		body[requestFieldName] = turns[len(turns)-1].Inputs[requestFieldName]
		body["chat_history"] = turns[:len(turns)-1]
	}
	if filter != "" {
		body["filter"] = filter
	}
	return body
}
