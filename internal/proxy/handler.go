package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/chatbridge/chatbridge/internal/aoai"
	"github.com/chatbridge/chatbridge/internal/chat"
	"github.com/chatbridge/chatbridge/internal/config"
	apierrors "github.com/chatbridge/chatbridge/internal/errors"
	"github.com/chatbridge/chatbridge/internal/graph"
	"github.com/chatbridge/chatbridge/internal/httputil"
	"github.com/chatbridge/chatbridge/internal/ndjson"
	"github.com/chatbridge/chatbridge/internal/promptflow"
)

// conversationHandler routes a conversation either to the chat-completion
// backend (streaming NDJSON or a single JSON envelope) or to the promptflow
// endpoint, and writes back the normalized envelope.
type conversationHandler struct {
	cfg       *config.Config
	backend   *aoai.Client
	flow      *promptflow.Client
	directory *graph.Client
}

func newConversationHandler(cfg *config.Config) *conversationHandler {
	h := &conversationHandler{
		cfg:       cfg,
		backend:   aoai.NewClient(cfg),
		directory: graph.NewClient(cfg.GraphEndpoint, cfg.PermittedGroupsColumn),
	}
	if cfg.UsePromptflow {
		h.flow = promptflow.NewClient(cfg.PromptflowEndpoint, cfg.PromptflowAPIKey, cfg.PromptflowResponseTimeout)
	}
	return h
}

func (h *conversationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chat.ConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		apierrors.WriteJSONError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	if h.cfg.UsePromptflow {
		h.servePromptflow(w, r, &req)
		return
	}
	if req.Stream {
		h.serveStream(w, r, &req)
		return
	}
	h.serveBlocking(w, r, &req)
}

func (h *conversationHandler) serveBlocking(w http.ResponseWriter, r *http.Request, req *chat.ConversationRequest) {
	completion, requestID, err := h.backend.SendBlocking(r.Context(), req.Messages)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, chat.FormatNonStreamingResponse(completion, req.HistoryMetadata, requestID))
}

func (h *conversationHandler) serveStream(w http.ResponseWriter, r *http.Request, req *chat.ConversationRequest) {
	results, requestID, err := h.backend.SendStreaming(r.Context(), req.Messages)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	events := make(chan ndjson.Event, 16)
	go func() {
		defer close(events)
		for res := range results {
			if res.Err != nil {
				events <- ndjson.Event{Err: res.Err}
				return
			}
			events <- ndjson.Event{Payload: chat.FormatStreamResponse(res.Chunk, req.HistoryMetadata, requestID)}
		}
	}()

	httputil.SetNDJSONHeaders(w)
	if err := ndjson.WriteTo(w, ndjson.Format(events)); err != nil {
		slog.Error("failed to write response stream", "error", err)
	}
}

func (h *conversationHandler) servePromptflow(w http.ResponseWriter, r *http.Request, req *chat.ConversationRequest) {
	filter := ""
	if h.cfg.PermittedGroupsColumn != "" {
		if token := httputil.UserAccessToken(r); token != "" {
			filter = h.directory.GenerateFilterString(r.Context(), token)
		}
	}

	body := promptflow.BuildRequest(req.Messages, h.cfg.PromptflowRequestFieldName, h.cfg.PromptflowResponseFieldName, filter)
	completion, err := h.flow.Invoke(r.Context(), body)
	if err != nil {
		// Failure is expressed as data: the formatter turns a nil completion
		// into the user-visible timeout payload.
		slog.Error("promptflow request failed", "error", err)
		completion = nil
	}

	envelope := promptflow.FormatNonStreamingResponse(
		completion,
		req.HistoryMetadata,
		h.cfg.PromptflowResponseFieldName,
		h.cfg.PromptflowCitationsFieldName,
		uuid.NewString(),
	)
	writeJSON(w, envelope)
}

func writeJSON(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout") {
		apierrors.WriteJSONError(w, http.StatusGatewayTimeout, "upstream timeout")
		return
	}
	apierrors.WriteJSONError(w, http.StatusBadGateway, "upstream error: "+msg)
}
