package promptflow

import (
	"encoding/json"
	"testing"

	"github.com/chatbridge/chatbridge/internal/searchsafe"
)

func TestFormatNonStreamingResponseNilCompletion(t *testing.T) {
	got := FormatNonStreamingResponse(nil, nil, "reply", "documents", "uuid-1")
	if len(got) != 1 {
		t.Fatalf("expected error to be the only key, got %v", got)
	}
	if got["error"] != TimeoutErrorMessage {
		t.Errorf("error = %v", got["error"])
	}
}

func TestFormatNonStreamingResponseErrorPassthrough(t *testing.T) {
	completion := map[string]any{"error": map[string]any{"code": 42, "message": "flow failed"}}
	got := FormatNonStreamingResponse(completion, nil, "reply", "documents", "")
	if len(got) != 1 {
		t.Fatalf("expected error to be the only key, got %v", got)
	}
	errVal, ok := got["error"].(map[string]any)
	if !ok || errVal["message"] != "flow failed" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestFormatNonStreamingResponseFull(t *testing.T) {
	citations := []any{map[string]any{"title": "doc1"}}
	completion := map[string]any{
		"id":        "run-1",
		"reply":     searchsafe.Encode("A/B"),
		"documents": citations,
	}
	hm := map[string]any{"conversation_id": "c1"}
	got := FormatNonStreamingResponse(completion, hm, "reply", "documents", "uuid-2")

	if got["id"] != "run-1" || got["model"] != "" || got["created"] != "" || got["object"] != "" {
		t.Errorf("envelope header = %v", got)
	}
	choices := got["choices"].([]map[string]any)
	msgs := choices[0]["messages"].([]map[string]any)
	if len(msgs) != 2 {
		t.Fatalf("expected assistant + tool messages, got %v", msgs)
	}
	if msgs[0]["role"] != "assistant" || msgs[0]["content"] != "A/B" {
		t.Errorf("assistant message = %v", msgs[0])
	}

	// The tool content is JSON text whose citations value is itself the
	// decoded JSON serialization of the citation payload.
	if msgs[1]["role"] != "tool" {
		t.Fatalf("tool message = %v", msgs[1])
	}
	var outer map[string]string
	if err := json.Unmarshal([]byte(msgs[1]["content"].(string)), &outer); err != nil {
		t.Fatalf("tool content is not JSON: %v", err)
	}
	serialized, _ := json.Marshal(citations)
	if outer["citations"] != string(serialized) {
		t.Errorf("citations = %q, want %q", outer["citations"], serialized)
	}
}

func TestFormatNonStreamingResponseMissingID(t *testing.T) {
	completion := map[string]any{"reply": "hello"}
	if got := FormatNonStreamingResponse(completion, nil, "reply", "documents", ""); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestFormatNonStreamingResponseNonStringReply(t *testing.T) {
	completion := map[string]any{"id": "run-2", "reply": 12345}
	if got := FormatNonStreamingResponse(completion, nil, "reply", "documents", ""); len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestFormatNonStreamingResponseAbsentFields(t *testing.T) {
	completion := map[string]any{"id": "run-3"}
	got := FormatNonStreamingResponse(completion, nil, "reply", "documents", "")
	choices := got["choices"].([]map[string]any)
	msgs := choices[0]["messages"].([]map[string]any)
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %v", msgs)
	}
}
