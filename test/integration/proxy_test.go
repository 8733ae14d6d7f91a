package integration

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/promptflow"
	"github.com/chatbridge/chatbridge/internal/proxy"
	"github.com/chatbridge/chatbridge/internal/searchsafe"
	"github.com/chatbridge/chatbridge/test/testutil"
)

const (
	testMessageID = "cmpl-abc123"
	testRequestID = "rid-42"
)

func newTestProxy(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":0"
	}
	srv := proxy.New(cfg)
	return httptest.NewServer(srv.Handler())
}

func postConversation(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/conversation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestConversationBlocking(t *testing.T) {
	answer := "Hello, world"
	mock := testutil.NewMockChatBackend(searchsafe.Encode(answer), testMessageID, testRequestID)
	defer mock.Close()

	proxySrv := newTestProxy(t, &config.Config{
		OpenAIBaseURL:    mock.URL() + "/v1",
		AzureOpenAIKey:   "test-key",
		AzureOpenAIModel: "gpt-4",
	})
	defer proxySrv.Close()

	resp := postConversation(t, proxySrv.URL, `{"messages":[{"role":"user","content":"Say hello"}],"history_metadata":{"conversation_id":"c1"}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope["id"] != testMessageID {
		t.Errorf("id = %v", envelope["id"])
	}
	if envelope["apim-request-id"] != testRequestID {
		t.Errorf("apim-request-id = %v", envelope["apim-request-id"])
	}
	hm, _ := envelope["history_metadata"].(map[string]any)
	if hm["conversation_id"] != "c1" {
		t.Errorf("history_metadata = %v", envelope["history_metadata"])
	}

	choices, _ := envelope["choices"].([]any)
	if len(choices) != 1 {
		t.Fatalf("choices = %v", envelope["choices"])
	}
	msgs := choices[0].(map[string]any)["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", msgs)
	}
	msg := msgs[0].(map[string]any)
	if msg["role"] != "assistant" || msg["content"] != answer {
		t.Errorf("message = %v, want decoded %q", msg, answer)
	}
}

func TestConversationStreaming(t *testing.T) {
	answer := "streamed reply text"
	mock := testutil.NewMockChatBackend(answer, testMessageID, testRequestID)
	defer mock.Close()

	proxySrv := newTestProxy(t, &config.Config{
		OpenAIBaseURL:    mock.URL() + "/v1",
		AzureOpenAIKey:   "test-key",
		AzureOpenAIModel: "gpt-4",
	})
	defer proxySrv.Close()

	resp := postConversation(t, proxySrv.URL, `{"messages":[{"role":"user","content":"Say hello"}],"stream":true}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json-lines") {
		t.Errorf("content-type = %q", ct)
	}

	var content strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	lines := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines++
		var envelope map[string]any
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			t.Fatalf("line %d is not JSON: %q", lines, line)
		}
		if len(envelope) == 0 {
			// Role-only and finish frames normalize to empty objects.
			continue
		}
		if envelope["apim-request-id"] != testRequestID {
			t.Errorf("apim-request-id = %v", envelope["apim-request-id"])
		}
		choices := envelope["choices"].([]any)
		msgs := choices[0].(map[string]any)["messages"].([]any)
		if len(msgs) != 1 {
			t.Fatalf("expected one message per chunk, got %v", msgs)
		}
		msg := msgs[0].(map[string]any)
		content.WriteString(msg["content"].(string))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines < 3 {
		t.Errorf("expected several NDJSON lines, got %d", lines)
	}
	if content.String() != answer {
		t.Errorf("reassembled content = %q, want %q", content.String(), answer)
	}
}

func TestConversationStreamingBackendDiesMidStream(t *testing.T) {
	mock := testutil.NewMockChatBackend("one two three four", testMessageID, testRequestID)
	mock.AbortStreamAfter = 2
	defer mock.Close()

	proxySrv := newTestProxy(t, &config.Config{
		OpenAIBaseURL:    mock.URL() + "/v1",
		AzureOpenAIKey:   "test-key",
		AzureOpenAIModel: "gpt-4",
	})
	defer proxySrv.Close()

	resp := postConversation(t, proxySrv.URL, `{"messages":[{"role":"user","content":"Say hello"}],"stream":true}`)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := string(raw)
	if strings.HasSuffix(body, "\n") {
		t.Error("error sentinel must be the last line, with no trailing newline")
	}

	lines := strings.Split(body, "\n")
	if len(lines) < 2 {
		t.Fatalf("expected content lines before the error sentinel, got %q", body)
	}
	for _, line := range lines[:len(lines)-1] {
		var envelope map[string]any
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			t.Fatalf("line is not JSON: %q", line)
		}
		if _, ok := envelope["error"]; ok {
			t.Fatalf("error sentinel must terminate the stream, found %q mid-stream", line)
		}
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("final line is not JSON: %q", lines[len(lines)-1])
	}
	if msg, ok := last["error"].(string); !ok || msg == "" {
		t.Errorf("final line = %v, want an error sentinel", last)
	}
}

func TestConversationPromptflow(t *testing.T) {
	flow := testutil.NewMockFlow(map[string]any{
		"id":        "run-1",
		"reply":     searchsafe.Encode("grounded answer"),
		"documents": []any{map[string]any{"title": "doc1"}},
	})
	defer flow.Close()

	graphMock := testutil.NewMockGraph([][]string{{"g1", "g2"}, {"g3"}})
	defer graphMock.Close()

	proxySrv := newTestProxy(t, &config.Config{
		UsePromptflow:                true,
		PromptflowEndpoint:           flow.URL(),
		PromptflowResponseTimeout:    5 * time.Second,
		PromptflowRequestFieldName:   "query",
		PromptflowResponseFieldName:  "reply",
		PromptflowCitationsFieldName: "documents",
		PermittedGroupsColumn:        "permitted_groups",
		GraphEndpoint:                graphMock.URL(),
	})
	defer proxySrv.Close()

	req, _ := http.NewRequest(http.MethodPost, proxySrv.URL+"/conversation",
		strings.NewReader(`{"messages":[{"role":"user","content":"first"},{"role":"assistant","content":"one"},{"role":"user","content":"what next?"}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ms-Token-Aad-Access-Token", "user-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope["id"] != "run-1" {
		t.Errorf("id = %v", envelope["id"])
	}
	choices := envelope["choices"].([]any)
	msgs := choices[0].(map[string]any)["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	if got := msgs[0].(map[string]any); got["role"] != "assistant" || got["content"] != "grounded answer" {
		t.Errorf("assistant message = %v", got)
	}

	// The flow received the encoded query, the prior turns, and the group
	// filter built from all directory pages.
	if flow.LastRequest == nil {
		t.Fatal("flow did not receive a request")
	}
	if flow.LastRequest["query"] != searchsafe.Encode("what next?") {
		t.Errorf("query = %v", flow.LastRequest["query"])
	}
	history := flow.LastRequest["chat_history"].([]any)
	if len(history) != 1 {
		t.Errorf("chat_history = %v", flow.LastRequest["chat_history"])
	}
	wantFilter := "permitted_groups/any(g:search.in(g, 'g1, g2, g3'))"
	if flow.LastRequest["filter"] != wantFilter {
		t.Errorf("filter = %v, want %q", flow.LastRequest["filter"], wantFilter)
	}
	if graphMock.LastToken != "bearer user-token" {
		t.Errorf("graph token = %q", graphMock.LastToken)
	}
}

func TestConversationPromptflowTimeout(t *testing.T) {
	flow := testutil.NewMockFlow(map[string]any{"id": "run-1", "reply": "late"})
	flow.Delay = 300 * time.Millisecond
	defer flow.Close()

	proxySrv := newTestProxy(t, &config.Config{
		UsePromptflow:                true,
		PromptflowEndpoint:           flow.URL(),
		PromptflowResponseTimeout:    30 * time.Millisecond,
		PromptflowRequestFieldName:   "query",
		PromptflowResponseFieldName:  "reply",
		PromptflowCitationsFieldName: "documents",
	})
	defer proxySrv.Close()

	resp := postConversation(t, proxySrv.URL, `{"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope["error"] != promptflow.TimeoutErrorMessage {
		t.Errorf("error = %v", envelope["error"])
	}
	if len(envelope) != 1 {
		t.Errorf("expected error to be the only key, got %v", envelope)
	}
}

func TestConversationEmptyMessages(t *testing.T) {
	mock := testutil.NewMockChatBackend("x", testMessageID, testRequestID)
	defer mock.Close()

	proxySrv := newTestProxy(t, &config.Config{
		OpenAIBaseURL:    mock.URL() + "/v1",
		AzureOpenAIKey:   "test-key",
		AzureOpenAIModel: "gpt-4",
	})
	defer proxySrv.Close()

	resp := postConversation(t, proxySrv.URL, `{"messages":[]}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}
