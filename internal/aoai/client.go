// Package aoai wraps the Azure OpenAI chat-completions API behind the shim's
// typed completion shapes.
package aoai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/chatbridge/chatbridge/internal/chat"
	"github.com/chatbridge/chatbridge/internal/config"
)

// requestIDHeader is the gateway request id forwarded to the UI envelope.
const requestIDHeader = "apim-request-id"

// Client sends chat-completion requests to an Azure OpenAI deployment or any
// OpenAI-compatible endpoint.
type Client struct {
	client *openai.Client
	model  string
	stop   []string
}

// StreamResult is one element of a streaming completion: either a chunk or
// the error that ended the stream.
type StreamResult struct {
	Chunk *chat.Chunk
	Err   error
}

// NewClient constructs a Client from configuration. An Azure endpoint takes
// precedence; otherwise the standard OpenAI config is used, optionally with
// a base-URL override.
func NewClient(cfg *config.Config) *Client {
	var clientCfg openai.ClientConfig
	if cfg.AzureOpenAIEndpoint != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
	} else {
		clientCfg = openai.DefaultConfig(cfg.AzureOpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAIBaseURL
		}
	}
	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.AzureOpenAIModel,
		stop:   cfg.AzureOpenAIStopSequence,
	}
}

// SendBlocking performs a non-streaming completion and returns the converted
// completion plus the gateway request id header.
func (c *Client) SendBlocking(ctx context.Context, messages []chat.HistoryMessage) (*chat.Completion, string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages))
	if err != nil {
		return nil, "", fmt.Errorf("chat completion: %w", err)
	}

	completion := &chat.Completion{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		Object:  resp.Object,
	}
	for _, choice := range resp.Choices {
		completion.Choices = append(completion.Choices, chat.Choice{
			Message: &chat.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
		})
	}
	return completion, resp.Header().Get(requestIDHeader), nil
}

// SendStreaming performs a streaming completion. The returned channel yields
// converted chunks in arrival order and is closed when the stream ends; a
// stream error is delivered as the final element.
func (c *Client) SendStreaming(ctx context.Context, messages []chat.HistoryMessage) (<-chan StreamResult, string, error) {
	req := c.buildRequest(messages)
	req.Stream = true

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("chat completion stream: %w", err)
	}

	out := make(chan StreamResult, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- StreamResult{Err: err}
				return
			}
			out <- StreamResult{Chunk: convertChunk(resp)}
		}
	}()
	return out, stream.Header().Get(requestIDHeader), nil
}

func (c *Client) buildRequest(messages []chat.HistoryMessage) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		Stop:     c.stop,
	}
}

func convertChunk(resp openai.ChatCompletionStreamResponse) *chat.Chunk {
	chunk := &chat.Chunk{
		ID:      resp.ID,
		Model:   resp.Model,
		Created: resp.Created,
		Object:  resp.Object,
	}
	for _, choice := range resp.Choices {
		chunk.Choices = append(chunk.Choices, chat.ChunkChoice{
			Delta: &chat.Message{
				Role:    choice.Delta.Role,
				Content: choice.Delta.Content,
			},
		})
	}
	return chunk
}
