package promptflow

import (
	"encoding/json"
	"log/slog"

	"github.com/chatbridge/chatbridge/internal/searchsafe"
)

// TimeoutErrorMessage is the user-visible payload emitted when the flow
// endpoint never answered.
const TimeoutErrorMessage = "No response received from promptflow endpoint. Increase PROMPTFLOW_RESPONSE_TIMEOUT parameter or check the promptflow endpoint."

// FormatNonStreamingResponse reshapes a chat flow response into the UI
// envelope. completion nil means the endpoint did not answer in time and
// yields an {"error": ...} payload with an actionable hint; a flow-reported
// error is passed through as {"error": <value>}. Any shape failure (missing
// id, non-string response field, unserializable citations) is logged and
// degrades to an empty map, never an error.
func FormatNonStreamingResponse(completion map[string]any, historyMetadata map[string]any, responseFieldName, citationsFieldName, messageUUID string) map[string]any {
	if completion == nil {
		slog.Error("promptflow returned no response; increase the PROMPTFLOW_RESPONSE_TIMEOUT parameter or check the promptflow endpoint")
		return map[string]any{"error": TimeoutErrorMessage}
	}
	if errVal, ok := completion["error"]; ok {
		slog.Error("error in promptflow response api", "error", errVal)
		return map[string]any{"error": errVal}
	}

	slog.Debug("formatting promptflow response", "message_uuid", messageUUID)

	messages := []map[string]any{}
	if raw, ok := completion[responseFieldName]; ok {
		content, ok := raw.(string)
		if !ok {
			slog.Error("promptflow response field is not a string", "field", responseFieldName)
			return map[string]any{}
		}
		messages = append(messages, map[string]any{
			"role":    "assistant",
			"content": searchsafe.Decode(content),
		})
	}
	if raw, ok := completion[citationsFieldName]; ok {
		// The citation payload stays JSON text nested inside the outer
		// content string; the UI parses the inner document itself.
		serialized, err := json.Marshal(raw)
		if err != nil {
			slog.Error("failed to serialize promptflow citations", "error", err)
			return map[string]any{}
		}
		citationContent, err := json.Marshal(map[string]string{
			"citations": searchsafe.Decode(string(serialized)),
		})
		if err != nil {
			slog.Error("failed to serialize promptflow citations", "error", err)
			return map[string]any{}
		}
		messages = append(messages, map[string]any{
			"role":    "tool",
			"content": string(citationContent),
		})
	}

	id, ok := completion["id"]
	if !ok {
		slog.Error("promptflow response has no id field")
		return map[string]any{}
	}
	return map[string]any{
		"id":               id,
		"model":            "",
		"created":          "",
		"object":           "",
		"history_metadata": historyMetadata,
		"choices":          []map[string]any{{"messages": messages}},
	}
}
